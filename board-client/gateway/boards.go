package gateway

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard/board-client/notice"
	"taskboard/domain"
)

// AddBoard creates a board owned by the current user and adds it to the
// board list.
func (g *Gateway) AddBoard(ctx context.Context, title string, style domain.Style) (*domain.Board, error) {
	m, ctx := newMutationMetrics(ctx, g.tracer, g.opts.Logger, "addBoard", "")
	b, err := func() (*domain.Board, error) {
		now := g.opts.Now().UnixMilli()
		b := &domain.Board{
			Title:     title,
			Style:     style,
			CreatedAt: now,
			Members:   []domain.Member{},
			Labels:    []domain.Label{},
			Groups:    []domain.Group{},
		}
		if u := g.opts.User; u != nil {
			creator := *u
			b.CreatedBy = &creator
			b.Members = append(b.Members, creator)
		}
		b.Activities = []domain.Activity{
			g.newActivity(domain.VerbCreateBoard, "created this board", now),
			g.newActivity(domain.VerbAddBoard, "added this board to", now),
		}
		pctx, cancel := g.persistCtx(ctx)
		start := time.Now()
		resp, err := g.persist.SaveBoard(pctx, b)
		cancel()
		m.ObservePersist(time.Since(start))
		if err != nil {
			m.SetErrorStage("persist")
			g.opts.Notices.Publish(notice.Error("Cannot add board"))
			return nil, fmt.Errorf("add board: %w: %w", domain.ErrPersistence, err)
		}
		g.store.AddBoard(resp)
		g.opts.Notices.Publish(notice.Info(fmt.Sprintf("Board added (id: %s)", resp.ID)))
		return resp, nil
	}()
	if b != nil {
		m.boardID = b.ID
	}
	m.Log(err)
	return b, err
}

// RemoveBoard deletes a board and drops it from the store.
func (g *Gateway) RemoveBoard(ctx context.Context, boardID string) error {
	m, ctx := newMutationMetrics(ctx, g.tracer, g.opts.Logger, "removeBoard", boardID)
	pctx, cancel := g.persistCtx(ctx)
	start := time.Now()
	err := g.persist.RemoveBoard(pctx, boardID)
	cancel()
	m.ObservePersist(time.Since(start))
	if err != nil {
		m.SetErrorStage("persist")
		g.opts.Notices.Publish(notice.Error("Cannot remove board"))
		err = fmt.Errorf("remove board %s: %w: %w", boardID, domain.ErrPersistence, err)
		m.Log(err)
		return err
	}
	g.store.RemoveBoard(boardID)
	g.opts.Notices.Publish(notice.Info("Board removed"))
	m.Log(nil)
	return nil
}

// UpdateBoardFields applies a board-scoped change. The board must be open
// or present in the board list.
func (g *Gateway) UpdateBoardFields(ctx context.Context, boardID string, change domain.Change) (*domain.Board, error) {
	m, ctx := newMutationMetrics(ctx, g.tracer, g.opts.Logger, "board:"+change.Key, boardID)
	b, err := func() (*domain.Board, error) {
		cur := g.known(boardID)
		if cur == nil {
			m.SetErrorStage("validate")
			return nil, domain.BoardNotFound(boardID)
		}
		if err := domain.ApplyChange(cur.Clone(), "", "", change); err != nil {
			m.SetErrorStage("validate")
			return nil, err
		}
		t := g.ticket()
		pctx, cancel := g.persistCtx(ctx)
		start := time.Now()
		resp, err := g.persist.UpdateBoard(pctx, boardID, "", "", change)
		cancel()
		m.ObservePersist(time.Since(start))
		if err != nil {
			m.SetErrorStage("persist")
			return nil, g.persistFailed("update board", err)
		}
		domain.Normalize(resp)
		if _, err := g.open(boardID); err != nil {
			g.store.AddBoard(resp)
			return resp, nil
		}
		view, written := g.commit(t, resp)
		m.SetDiscarded(!written)
		return view, nil
	}()
	m.Log(err)
	return b, err
}

// ToggleStar flips the starred flag of a listed or open board.
func (g *Gateway) ToggleStar(ctx context.Context, boardID string) (*domain.Board, error) {
	cur := g.known(boardID)
	if cur == nil {
		return nil, domain.BoardNotFound(boardID)
	}
	change, err := domain.NewChange(domain.KeyStarred, !cur.IsStarred)
	if err != nil {
		return nil, err
	}
	return g.UpdateBoardFields(ctx, boardID, change)
}

// known returns the open board or the listed board with the id.
func (g *Gateway) known(boardID string) *domain.Board {
	if b, err := g.open(boardID); err == nil {
		return b
	}
	for _, b := range g.store.Boards() {
		if b.ID == boardID {
			return b
		}
	}
	return nil
}

func (g *Gateway) newActivity(verb, text string, at int64) domain.Activity {
	a := domain.Activity{ID: g.opts.NewID(), Verb: verb, Text: text, CreatedAt: at}
	if u := g.opts.User; u != nil {
		by := *u
		a.By = &by
	}
	return a
}

// appendActivity records an activity for a mutation that already succeeded.
// A failure is logged and does not fail the mutation.
func (g *Gateway) appendActivity(ctx context.Context, req domain.ActivityRequest) {
	if u := g.opts.User; u != nil && req.By == nil {
		by := *u
		req.By = &by
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = g.opts.NewID()
	}
	pctx, cancel := g.persistCtx(ctx)
	defer cancel()
	if err := g.persist.AppendActivity(pctx, req); err != nil {
		g.opts.Logger.WithFields(log.Fields{"board": req.BoardID, "verb": req.Verb}).WithError(err).Warn("append activity failed")
	}
}
