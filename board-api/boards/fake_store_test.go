package boards

import (
	"context"
	"strconv"
	"sync"

	"taskboard/board-api/storage"
	"taskboard/domain"
)

type fakeStore struct {
	mu        sync.Mutex
	boards    map[string]domain.Board
	versions  map[string]int
	conflicts int
	replaces  int
}

func newFakeStore(boards ...domain.Board) *fakeStore {
	f := &fakeStore{boards: map[string]domain.Board{}, versions: map[string]int{}}
	for _, b := range boards {
		f.boards[b.ID] = *b.Clone()
		f.versions[b.ID] = 1
	}
	return f
}

func (f *fakeStore) List(ctx context.Context) ([]domain.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Board, 0, len(f.boards))
	for _, b := range f.boards {
		out = append(out, *b.Clone())
	}
	return out, nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (*storage.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.boards[id]
	if !ok {
		return nil, nil
	}
	return &storage.Record{Board: *b.Clone(), ETag: strconv.Itoa(f.versions[id])}, nil
}

func (f *fakeStore) Insert(ctx context.Context, b domain.Board) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.boards[b.ID]; ok {
		return "", domain.ErrConcurrencyConflict
	}
	f.boards[b.ID] = *b.Clone()
	f.versions[b.ID] = 1
	return "1", nil
}

// Replace fails the next f.conflicts calls as if another writer got there
// first, bumping the stored version each time.
func (f *fakeStore) Replace(ctx context.Context, b domain.Board, etag string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.boards[b.ID]; !ok {
		return "", domain.BoardNotFound(b.ID)
	}
	if f.conflicts > 0 {
		f.conflicts--
		f.versions[b.ID]++
		return "", domain.ErrConcurrencyConflict
	}
	if etag != strconv.Itoa(f.versions[b.ID]) {
		return "", domain.ErrConcurrencyConflict
	}
	f.replaces++
	f.versions[b.ID]++
	f.boards[b.ID] = *b.Clone()
	return strconv.Itoa(f.versions[b.ID]), nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.boards[id]; !ok {
		return domain.BoardNotFound(id)
	}
	delete(f.boards, id)
	return nil
}

func (f *fakeStore) board(id string) domain.Board {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.boards[id]
	return *b.Clone()
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *fakePublisher) Publish(ctx context.Context, ev domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) published() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Event(nil), p.events...)
}

type fakeQueue struct {
	reqs []domain.ActivityRequest
}

func (q *fakeQueue) Enqueue(ctx context.Context, req domain.ActivityRequest) error {
	q.reqs = append(q.reqs, req)
	return nil
}
