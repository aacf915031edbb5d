// Package gateway is the client write path. Every change goes to the board
// API first; only the board it answers with is written to the store.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"taskboard/board-client/notice"
	"taskboard/board-client/snapshot"
	"taskboard/domain"
)

const DefaultTimeout = 15 * time.Second

const tracerName = "taskboard/gateway"

// Persistence is the board API as seen by the client.
type Persistence interface {
	QueryBoards(ctx context.Context, filter domain.BoardFilter) ([]domain.Board, error)
	GetBoard(ctx context.Context, id string, filter domain.TaskFilter) (*domain.Board, error)
	SaveBoard(ctx context.Context, b *domain.Board) (*domain.Board, error)
	RemoveBoard(ctx context.Context, id string) error
	UpdateBoard(ctx context.Context, boardID, groupID, taskID string, change domain.Change) (*domain.Board, error)
	AppendActivity(ctx context.Context, req domain.ActivityRequest) error
}

// Options configures a Gateway. Store listeners may run while the gateway
// holds its write lock, so a listener must not call a gateway method
// synchronously. Start a goroutine instead.
type Options struct {
	// Timeout bounds each persistence call.
	Timeout time.Duration
	Logger  *log.Logger
	// User is the actor recorded on activities and new boards.
	User    *domain.Member
	Notices *notice.Broker
	NewID   func() string
	Now     func() time.Time
}

// Gateway applies user intents to the open board.
type Gateway struct {
	store   *snapshot.Store
	persist Persistence
	opts    Options
	tracer  trace.Tracer

	// writeMu serializes sequenced store writes with the check that admits
	// them. It is held while store listeners run.
	writeMu sync.Mutex

	// mu guards the response sequencing below. Every request takes a
	// ticket when issued; a response is written only when its ticket is
	// newer than the last one written for that board.
	mu       sync.Mutex
	tickets  uint64
	applied  map[string]uint64
	openSeq  uint64
	filters  map[string]domain.TaskFilter
	listSeq  uint64
	listDone uint64
}

// New returns a Gateway writing to store and persisting through persist.
func New(store *snapshot.Store, persist Persistence, opts Options) *Gateway {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Gateway{
		store:   store,
		persist: persist,
		opts:    opts,
		tracer:  otel.Tracer(tracerName),
		applied: map[string]uint64{},
		filters: map[string]domain.TaskFilter{},
	}
}

// Store returns the store the gateway writes to.
func (g *Gateway) Store() *snapshot.Store { return g.store }

func (g *Gateway) ticket() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tickets++
	return g.tickets
}

// commit writes an authoritative board into the store unless a response to
// a newer request for the same board has already been written. The board is
// narrowed to the filter it was opened with first. commit returns that view
// and whether it was written.
func (g *Gateway) commit(ticket uint64, b *domain.Board) (*domain.Board, bool) {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	g.mu.Lock()
	last := g.applied[b.ID]
	view := g.filters[b.ID].Apply(b)
	g.mu.Unlock()
	if ticket <= last {
		g.opts.Logger.WithFields(log.Fields{"board": b.ID, "ticket": ticket, "applied": last}).Debug("discarding stale board response")
		return view, false
	}
	if !g.store.ApplyPatch(b.ID, func(cur *domain.Board) { *cur = *view.Clone() }) {
		return view, false
	}
	g.mu.Lock()
	g.applied[b.ID] = ticket
	g.mu.Unlock()
	return view, true
}

// filter returns the task filter boardID was last opened with.
func (g *Gateway) filter(boardID string) domain.TaskFilter {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.filters[boardID]
}

// open resolves the open board and checks it is boardID.
func (g *Gateway) open(boardID string) (*domain.Board, error) {
	b := g.store.Board()
	if b == nil || b.ID != boardID {
		return nil, domain.BoardNotFound(boardID)
	}
	return b, nil
}

func (g *Gateway) persistCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.opts.Timeout)
}

func (g *Gateway) persistFailed(op string, err error) error {
	g.opts.Notices.Publish(notice.Error("Could not save changes"))
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}

// LoadBoards replaces the board list. A response to an older call is dropped.
func (g *Gateway) LoadBoards(ctx context.Context, filter domain.BoardFilter) ([]*domain.Board, error) {
	g.mu.Lock()
	g.listSeq++
	seq := g.listSeq
	g.mu.Unlock()

	m, ctx := newMutationMetrics(ctx, g.tracer, g.opts.Logger, "loadBoards", "")
	pctx, cancel := g.persistCtx(ctx)
	start := time.Now()
	list, err := g.persist.QueryBoards(pctx, filter)
	cancel()
	m.ObservePersist(time.Since(start))
	if err != nil {
		m.SetErrorStage("persist")
		err = fmt.Errorf("load boards: %w: %w", domain.ErrPersistence, err)
		m.Log(err)
		return nil, err
	}

	g.writeMu.Lock()
	g.mu.Lock()
	fresh := seq > g.listDone
	if fresh {
		g.listDone = seq
	}
	g.mu.Unlock()
	if fresh {
		g.store.SetBoards(list)
	}
	g.writeMu.Unlock()
	m.Log(nil)
	return g.store.Boards(), nil
}

// LoadBoard opens a board, discarding the previously open one. When several
// loads overlap only the last one issued is opened.
func (g *Gateway) LoadBoard(ctx context.Context, boardID string, filter domain.TaskFilter) (*domain.Board, error) {
	t := g.ticket()
	g.mu.Lock()
	g.openSeq = t
	g.filters[boardID] = filter
	g.mu.Unlock()

	m, ctx := newMutationMetrics(ctx, g.tracer, g.opts.Logger, "loadBoard", boardID)
	pctx, cancel := g.persistCtx(ctx)
	start := time.Now()
	b, err := g.persist.GetBoard(pctx, boardID, filter)
	cancel()
	m.ObservePersist(time.Since(start))
	if err != nil {
		m.SetErrorStage("persist")
		err = fmt.Errorf("load board %s: %w: %w", boardID, domain.ErrPersistence, err)
		m.Log(err)
		return nil, err
	}
	domain.Normalize(b)

	g.writeMu.Lock()
	g.mu.Lock()
	latest := t == g.openSeq && t > g.applied[b.ID]
	if latest {
		g.applied[b.ID] = t
	}
	g.mu.Unlock()
	if latest {
		g.store.SetBoard(b)
	}
	g.writeMu.Unlock()
	m.Log(nil)
	return g.store.Board(), nil
}

// Reload re-fetches the open board with its last filter. It is the read
// path used by reconciliation.
func (g *Gateway) Reload(ctx context.Context, boardID string) error {
	t := g.ticket()
	g.mu.Lock()
	filter := g.filters[boardID]
	g.mu.Unlock()

	m, ctx := newMutationMetrics(ctx, g.tracer, g.opts.Logger, "reload", boardID)
	pctx, cancel := g.persistCtx(ctx)
	start := time.Now()
	b, err := g.persist.GetBoard(pctx, boardID, filter)
	cancel()
	m.ObservePersist(time.Since(start))
	if err != nil {
		m.SetErrorStage("persist")
		err = fmt.Errorf("reload board %s: %w", boardID, err)
		m.Log(err)
		return err
	}
	domain.Normalize(b)
	_, written := g.commit(t, b)
	m.SetDiscarded(!written)
	m.Log(nil)
	return nil
}
