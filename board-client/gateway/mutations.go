package gateway

import (
	"context"
	"fmt"
	"slices"
	"time"

	"taskboard/board-client/ordering"
	"taskboard/domain"
)

// ApplyFieldChange sends one {key, value} change for the board, a group
// (empty taskID) or a task. The change is applied to a scratch copy first so
// missing targets and bad values fail before any network call.
func (g *Gateway) ApplyFieldChange(ctx context.Context, boardID, groupID, taskID string, change domain.Change) (*domain.Board, error) {
	m, ctx := newMutationMetrics(ctx, g.tracer, g.opts.Logger, "change:"+change.Key, boardID)
	m.SetTarget(groupID, taskID)
	b, err := g.applyChange(ctx, m, boardID, groupID, taskID, change)
	m.Log(err)
	return b, err
}

func (g *Gateway) applyChange(ctx context.Context, m *mutationMetrics, boardID, groupID, taskID string, change domain.Change) (*domain.Board, error) {
	cur, err := g.open(boardID)
	if err != nil {
		m.SetErrorStage("validate")
		return nil, err
	}
	if err := domain.ApplyChange(cur.Clone(), groupID, taskID, change); err != nil {
		m.SetErrorStage("validate")
		return nil, err
	}
	t := g.ticket()
	pctx, cancel := g.persistCtx(ctx)
	start := time.Now()
	resp, err := g.persist.UpdateBoard(pctx, boardID, groupID, taskID, change)
	cancel()
	m.ObservePersist(time.Since(start))
	if err != nil {
		m.SetErrorStage("persist")
		return nil, g.persistFailed("update board", err)
	}
	domain.Normalize(resp)
	view, written := g.commit(t, resp)
	m.SetDiscarded(!written)
	return view, nil
}

// save runs a structural edit and persists the whole board. build is checked
// against cur first. While a task filter is active cur lacks the hidden
// tasks, so build is replayed on an unfiltered copy fetched from the API and
// that copy is saved. save returns the stored view and the saved board.
func (g *Gateway) save(ctx context.Context, m *mutationMetrics, cur *domain.Board, build func(*domain.Board) error) (view, saved *domain.Board, err error) {
	next := cur.Clone()
	if err := build(next); err != nil {
		m.SetErrorStage("validate")
		return nil, nil, err
	}
	t := g.ticket()
	if !g.filter(cur.ID).IsZero() {
		pctx, cancel := g.persistCtx(ctx)
		start := time.Now()
		full, err := g.persist.GetBoard(pctx, cur.ID, domain.TaskFilter{})
		cancel()
		m.ObservePersist(time.Since(start))
		if err != nil {
			m.SetErrorStage("persist")
			return nil, nil, g.persistFailed("load board", err)
		}
		domain.Normalize(full)
		if err := build(full); err != nil {
			m.SetErrorStage("validate")
			return nil, nil, err
		}
		next = full
	}
	pctx, cancel := g.persistCtx(ctx)
	start := time.Now()
	resp, err := g.persist.SaveBoard(pctx, next)
	cancel()
	m.ObservePersist(time.Since(start))
	if err != nil {
		m.SetErrorStage("persist")
		return nil, nil, g.persistFailed("save board", err)
	}
	domain.Normalize(resp)
	view, written := g.commit(t, resp)
	m.SetDiscarded(!written)
	return view, resp, nil
}

// slot is a drop point named by the tasks around it, so a move computed on
// a filtered board lands in the same place on the full one.
type slot struct {
	before, after string
	index         int
}

func slotFor(tasks []domain.Task, taskID string, index int) slot {
	rest := withoutTask(tasks, taskID)
	s := slot{index: max(0, min(index, len(rest)))}
	if s.index < len(rest) {
		s.before = rest[s.index].ID
	}
	if s.index > 0 {
		s.after = rest[s.index-1].ID
	}
	return s
}

// in resolves the slot to an index into tasks with taskID removed.
func (s slot) in(tasks []domain.Task, taskID string) int {
	rest := withoutTask(tasks, taskID)
	find := func(id string) int {
		return slices.IndexFunc(rest, func(t domain.Task) bool { return t.ID == id })
	}
	if s.before != "" {
		if i := find(s.before); i >= 0 {
			return i
		}
	}
	if s.after != "" {
		if i := find(s.after); i >= 0 {
			return i + 1
		}
	}
	return s.index
}

func withoutTask(tasks []domain.Task, taskID string) []domain.Task {
	return slices.DeleteFunc(slices.Clone(tasks), func(t domain.Task) bool { return t.ID == taskID })
}

// MoveTask places a task at index toIndex of group toGroupID, which may be
// the group it is already in.
func (g *Gateway) MoveTask(ctx context.Context, boardID, fromGroupID, taskID, toGroupID string, toIndex int) (*domain.Board, error) {
	m, ctx := newMutationMetrics(ctx, g.tracer, g.opts.Logger, "moveTask", boardID)
	m.SetTarget(toGroupID, taskID)
	b, err := g.moveTask(ctx, m, boardID, fromGroupID, taskID, toGroupID, toIndex)
	m.Log(err)
	return b, err
}

func (g *Gateway) moveTask(ctx context.Context, m *mutationMetrics, boardID, fromGroupID, taskID, toGroupID string, toIndex int) (*domain.Board, error) {
	cur, err := g.open(boardID)
	if err != nil {
		m.SetErrorStage("validate")
		return nil, err
	}
	src, _ := cur.FindGroup(fromGroupID)
	if src == nil {
		m.SetErrorStage("validate")
		return nil, domain.GroupNotFound(fromGroupID)
	}
	task, _ := src.FindTask(taskID)
	if task == nil {
		m.SetErrorStage("validate")
		return nil, domain.TaskNotFound(taskID)
	}
	dst, _ := cur.FindGroup(toGroupID)
	if dst == nil {
		m.SetErrorStage("validate")
		return nil, domain.GroupNotFound(toGroupID)
	}
	moved := *task
	drop := slotFor(dst.Tasks, taskID, toIndex)

	var renumbered bool
	resp, _, err := g.save(ctx, m, cur, func(next *domain.Board) error {
		src, _ := next.FindGroup(fromGroupID)
		if src == nil {
			return domain.GroupNotFound(fromGroupID)
		}
		dst, _ := next.FindGroup(toGroupID)
		if dst == nil {
			return domain.GroupNotFound(toGroupID)
		}
		_, from := src.FindTask(taskID)
		if from < 0 {
			return domain.TaskNotFound(taskID)
		}
		to := drop.in(dst.Tasks, taskID)
		if src == dst {
			src.Tasks, renumbered = ordering.Reorder(src.Tasks, from, to, ordering.TaskPosition)
		} else {
			src.Tasks, dst.Tasks, renumbered = ordering.Transfer(src.Tasks, dst.Tasks, from, to, ordering.TaskPosition)
		}
		return nil
	})
	m.SetRenumbered(renumbered)
	if err != nil {
		return nil, err
	}
	if fromGroupID != toGroupID {
		g.appendActivity(ctx, domain.ActivityRequest{
			BoardID: boardID,
			Verb:    domain.VerbMoveTask,
			Text:    fmt.Sprintf("moved %s from %s to %s", moved.Title, src.Title, dst.Title),
			Group:   &domain.Ref{ID: dst.ID, Title: dst.Title},
			Task:    &domain.Ref{ID: moved.ID, Title: moved.Title},
			Extra:   src.Title,
		})
	}
	return resp, nil
}

// MoveGroup places a group at index toIndex.
func (g *Gateway) MoveGroup(ctx context.Context, boardID, groupID string, toIndex int) (*domain.Board, error) {
	m, ctx := newMutationMetrics(ctx, g.tracer, g.opts.Logger, "moveGroup", boardID)
	m.SetTarget(groupID, "")
	b, err := func() (*domain.Board, error) {
		cur, err := g.open(boardID)
		if err != nil {
			m.SetErrorStage("validate")
			return nil, err
		}
		var renumbered bool
		view, _, err := g.save(ctx, m, cur, func(next *domain.Board) error {
			_, from := next.FindGroup(groupID)
			if from < 0 {
				return domain.GroupNotFound(groupID)
			}
			next.Groups, renumbered = ordering.Reorder(next.Groups, from, toIndex, ordering.GroupPosition)
			return nil
		})
		m.SetRenumbered(renumbered)
		return view, err
	}()
	m.Log(err)
	return b, err
}

// AddTask appends a new task to a group and returns the board and the task.
func (g *Gateway) AddTask(ctx context.Context, boardID, groupID, title string) (*domain.Board, *domain.Task, error) {
	m, ctx := newMutationMetrics(ctx, g.tracer, g.opts.Logger, "addTask", boardID)
	m.SetTarget(groupID, "")
	b, task, err := func() (*domain.Board, *domain.Task, error) {
		cur, err := g.open(boardID)
		if err != nil {
			m.SetErrorStage("validate")
			return nil, nil, err
		}
		grp, _ := cur.FindGroup(groupID)
		if grp == nil {
			m.SetErrorStage("validate")
			return nil, nil, domain.GroupNotFound(groupID)
		}
		task := domain.Task{ID: g.opts.NewID(), Title: title}
		view, resp, err := g.save(ctx, m, cur, func(next *domain.Board) error {
			grp, _ := next.FindGroup(groupID)
			if grp == nil {
				return domain.GroupNotFound(groupID)
			}
			task.Position = ordering.Next(grp.Tasks, ordering.TaskPosition)
			grp.Tasks = append(grp.Tasks, task)
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
		g.appendActivity(ctx, domain.ActivityRequest{
			BoardID:    boardID,
			Verb:       domain.VerbAddTask,
			Text:       fmt.Sprintf("added %s to %s", task.Title, grp.Title),
			Group:      &domain.Ref{ID: grp.ID, Title: grp.Title},
			Task:       &domain.Ref{ID: task.ID, Title: task.Title},
			TaskNumber: resp.TaskNumber(grp.ID, task.ID),
		})
		if saved, _ := resp.FindTask(grp.ID, task.ID); saved != nil {
			out := saved.Clone()
			return view, &out, nil
		}
		return view, &task, nil
	}()
	m.Log(err)
	return b, task, err
}

// AddGroup appends a new empty group to the board.
func (g *Gateway) AddGroup(ctx context.Context, boardID, title string) (*domain.Board, error) {
	m, ctx := newMutationMetrics(ctx, g.tracer, g.opts.Logger, "addGroup", boardID)
	b, err := func() (*domain.Board, error) {
		cur, err := g.open(boardID)
		if err != nil {
			m.SetErrorStage("validate")
			return nil, err
		}
		grp := domain.Group{ID: g.opts.NewID(), Title: title, Tasks: []domain.Task{}}
		view, _, err := g.save(ctx, m, cur, func(next *domain.Board) error {
			grp.Position = ordering.Next(next.Groups, ordering.GroupPosition)
			next.Groups = append(next.Groups, grp)
			return nil
		})
		if err != nil {
			return nil, err
		}
		g.appendActivity(ctx, domain.ActivityRequest{
			BoardID: boardID,
			Verb:    domain.VerbAddGroup,
			Text:    fmt.Sprintf("added list %s", grp.Title),
			Group:   &domain.Ref{ID: grp.ID, Title: grp.Title},
		})
		return view, nil
	}()
	m.Log(err)
	return b, err
}

// DeleteTask removes a task through the deleteTask sentinel change.
func (g *Gateway) DeleteTask(ctx context.Context, boardID, groupID, taskID string) (*domain.Board, error) {
	m, ctx := newMutationMetrics(ctx, g.tracer, g.opts.Logger, "deleteTask", boardID)
	m.SetTarget(groupID, taskID)
	b, err := func() (*domain.Board, error) {
		cur, err := g.open(boardID)
		if err != nil {
			m.SetErrorStage("validate")
			return nil, err
		}
		grp, _ := cur.FindGroup(groupID)
		if grp == nil {
			m.SetErrorStage("validate")
			return nil, domain.GroupNotFound(groupID)
		}
		task, _ := grp.FindTask(taskID)
		if task == nil {
			m.SetErrorStage("validate")
			return nil, domain.TaskNotFound(taskID)
		}
		number := cur.TaskNumber(groupID, taskID)
		resp, err := g.applyChange(ctx, m, boardID, groupID, taskID, domain.Change{Key: domain.KeyDeleteTask, Value: nullValue})
		if err != nil {
			return nil, err
		}
		g.appendActivity(ctx, domain.ActivityRequest{
			BoardID:    boardID,
			Verb:       domain.VerbDeleteTask,
			Group:      &domain.Ref{ID: grp.ID, Title: grp.Title},
			Task:       &domain.Ref{ID: task.ID, Title: task.Title},
			TaskNumber: number,
		})
		return resp, nil
	}()
	m.Log(err)
	return b, err
}

// DeleteGroup removes a group and every task in it through the deleteGroup
// sentinel change.
func (g *Gateway) DeleteGroup(ctx context.Context, boardID, groupID string) (*domain.Board, error) {
	m, ctx := newMutationMetrics(ctx, g.tracer, g.opts.Logger, "deleteGroup", boardID)
	m.SetTarget(groupID, "")
	b, err := func() (*domain.Board, error) {
		cur, err := g.open(boardID)
		if err != nil {
			m.SetErrorStage("validate")
			return nil, err
		}
		grp, _ := cur.FindGroup(groupID)
		if grp == nil {
			m.SetErrorStage("validate")
			return nil, domain.GroupNotFound(groupID)
		}
		resp, err := g.applyChange(ctx, m, boardID, groupID, "", domain.Change{Key: domain.KeyDeleteGroup, Value: nullValue})
		if err != nil {
			return nil, err
		}
		g.appendActivity(ctx, domain.ActivityRequest{
			BoardID: boardID,
			Verb:    domain.VerbDeleteGroup,
			Text:    fmt.Sprintf("deleted list %s", grp.Title),
			Group:   &domain.Ref{ID: grp.ID, Title: grp.Title},
		})
		return resp, nil
	}()
	m.Log(err)
	return b, err
}

// MoveChecklistItem reorders an item inside one checklist of a task.
func (g *Gateway) MoveChecklistItem(ctx context.Context, boardID, groupID, taskID, checklistID string, from, to int) (*domain.Board, error) {
	m, ctx := newMutationMetrics(ctx, g.tracer, g.opts.Logger, "moveChecklistItem", boardID)
	m.SetTarget(groupID, taskID)
	b, err := func() (*domain.Board, error) {
		cur, err := g.open(boardID)
		if err != nil {
			m.SetErrorStage("validate")
			return nil, err
		}
		task, _ := cur.FindTask(groupID, taskID)
		if task == nil {
			m.SetErrorStage("validate")
			return nil, domain.TaskNotFound(taskID)
		}
		lists := task.Clone().Checklists
		idx := slices.IndexFunc(lists, func(cl domain.Checklist) bool { return cl.ID == checklistID })
		if idx < 0 {
			m.SetErrorStage("validate")
			return nil, domain.ChecklistNotFound(checklistID)
		}
		if from < 0 || from >= len(lists[idx].Items) {
			m.SetErrorStage("validate")
			return nil, domain.ChecklistNotFound(fmt.Sprintf("%s item %d", checklistID, from))
		}
		var renumbered bool
		lists[idx].Items, renumbered = ordering.Reorder(lists[idx].Items, from, to, ordering.ItemPosition)
		m.SetRenumbered(renumbered)
		change, err := domain.NewChange(domain.KeyChecklists, lists)
		if err != nil {
			m.SetErrorStage("validate")
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidChange, err)
		}
		return g.applyChange(ctx, m, boardID, groupID, taskID, change)
	}()
	m.Log(err)
	return b, err
}

// ToggleTaskMember assigns a board member to a task or removes the
// assignment.
func (g *Gateway) ToggleTaskMember(ctx context.Context, boardID, groupID, taskID, memberID string) (*domain.Board, error) {
	cur, err := g.open(boardID)
	if err != nil {
		return nil, err
	}
	task, _ := cur.FindTask(groupID, taskID)
	if task == nil {
		return nil, domain.TaskNotFound(taskID)
	}
	if cur.FindMember(memberID) == nil {
		return nil, domain.MemberNotFound(memberID)
	}
	change, err := domain.NewChange(domain.KeyMembers, toggle(task.MemberIDs, memberID))
	if err != nil {
		return nil, err
	}
	return g.ApplyFieldChange(ctx, boardID, groupID, taskID, change)
}

// ToggleTaskLabel attaches a palette label to a task or detaches it.
func (g *Gateway) ToggleTaskLabel(ctx context.Context, boardID, groupID, taskID, labelID string) (*domain.Board, error) {
	cur, err := g.open(boardID)
	if err != nil {
		return nil, err
	}
	task, _ := cur.FindTask(groupID, taskID)
	if task == nil {
		return nil, domain.TaskNotFound(taskID)
	}
	if cur.FindLabel(labelID) == nil {
		return nil, domain.LabelNotFound(labelID)
	}
	change, err := domain.NewChange(domain.KeyLabels, toggle(task.LabelIDs, labelID))
	if err != nil {
		return nil, err
	}
	return g.ApplyFieldChange(ctx, boardID, groupID, taskID, change)
}

var nullValue = []byte("null")

func toggle(ids []string, id string) []string {
	if i := slices.Index(ids, id); i >= 0 {
		return slices.Delete(slices.Clone(ids), i, i+1)
	}
	return append(slices.Clone(ids), id)
}
