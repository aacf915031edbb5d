package gateway

import (
	"context"
	"errors"
	"sync"

	"taskboard/domain"
)

type fakePersistence struct {
	mu         sync.Mutex
	boards     map[string]*domain.Board
	activities []domain.ActivityRequest
	calls      int

	err         error
	activityErr error
	// gate, when set, is consulted before answering UpdateBoard. The call
	// waits until the returned channel is closed.
	gate func(change domain.Change) <-chan struct{}
	// onSave lets a test change the board the server answers with.
	onSave func(b *domain.Board)
	nextID int
}

func newFakePersistence(boards ...*domain.Board) *fakePersistence {
	f := &fakePersistence{boards: map[string]*domain.Board{}}
	for _, b := range boards {
		f.boards[b.ID] = b.Clone()
	}
	return f
}

func (f *fakePersistence) QueryBoards(ctx context.Context, filter domain.BoardFilter) ([]domain.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Board
	for _, b := range f.boards {
		if filter.Match(b) {
			out = append(out, *b.Clone())
		}
	}
	return out, nil
}

func (f *fakePersistence) GetBoard(ctx context.Context, id string, filter domain.TaskFilter) (*domain.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.boards[id]
	if !ok {
		return nil, domain.BoardNotFound(id)
	}
	return filter.Apply(b), nil
}

func (f *fakePersistence) SaveBoard(ctx context.Context, b *domain.Board) (*domain.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	saved := b.Clone()
	if saved.ID == "" {
		f.nextID++
		saved.ID = "srv-" + string(rune('0'+f.nextID))
	}
	if f.onSave != nil {
		f.onSave(saved)
	}
	f.boards[saved.ID] = saved
	return saved.Clone(), nil
}

func (f *fakePersistence) RemoveBoard(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	delete(f.boards, id)
	return nil
}

func (f *fakePersistence) UpdateBoard(ctx context.Context, boardID, groupID, taskID string, change domain.Change) (*domain.Board, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		if ch := gate(change); ch != nil {
			select {
			case <-ch:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.boards[boardID]
	if !ok {
		return nil, domain.BoardNotFound(boardID)
	}
	next := b.Clone()
	if err := domain.ApplyChange(next, groupID, taskID, change); err != nil {
		return nil, err
	}
	f.boards[boardID] = next
	return next.Clone(), nil
}

func (f *fakePersistence) AppendActivity(ctx context.Context, req domain.ActivityRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activityErr != nil {
		return f.activityErr
	}
	f.activities = append(f.activities, req)
	return nil
}

func (f *fakePersistence) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakePersistence) recorded() []domain.ActivityRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ActivityRequest(nil), f.activities...)
}

var errUnavailable = errors.New("service unavailable")
