// Package snapshot holds the board state rendered by the client.
package snapshot

import (
	"sync"

	"taskboard/domain"
)

// Snapshot is an immutable view of the store taken right after a mutation.
type Snapshot struct {
	Version uint64
	Board   *domain.Board
	Boards  []*domain.Board
}

// Starred returns the starred subset of the board list.
func (s Snapshot) Starred() []*domain.Board {
	return starred(s.Boards)
}

// Listener receives one snapshot per successful mutation.
type Listener func(Snapshot)

// Store is the single source of truth for the open board and the board list.
//
// Published values are never modified in place. Every mutation builds a new
// value and swaps it in under the lock, so a pointer returned by Board or
// Boards stays a consistent view forever. Callers must treat returned boards
// as read-only.
type Store struct {
	mu      sync.Mutex
	board   *domain.Board
	boards  []*domain.Board
	version uint64

	// notifyMu is taken before mu is released so listeners observe
	// snapshots in version order.
	notifyMu  sync.Mutex
	listeners map[int]Listener
	nextID    int
}

// New returns an empty store.
func New() *Store {
	return &Store{listeners: map[int]Listener{}}
}

// Board returns the open board or nil.
func (s *Store) Board() *domain.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board
}

// Boards returns the board list.
func (s *Store) Boards() []*domain.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boards
}

// Starred returns the starred boards of the list.
func (s *Store) Starred() []*domain.Board {
	return starred(s.Boards())
}

// Version counts committed mutations.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Subscribe registers fn and returns a function removing it. Listeners run
// synchronously after the mutation and must not call back into the store.
func (s *Store) Subscribe(fn Listener) func() {
	s.notifyMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.notifyMu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.notifyMu.Lock()
			delete(s.listeners, id)
			s.notifyMu.Unlock()
		})
	}
}

// SetBoards replaces the board list.
func (s *Store) SetBoards(list []domain.Board) {
	boards := make([]*domain.Board, len(list))
	for i := range list {
		boards[i] = list[i].Clone()
	}
	s.mu.Lock()
	s.boards = boards
	s.commit()
}

// SetBoard replaces the open board wholesale. A nil board closes it.
func (s *Store) SetBoard(b *domain.Board) {
	s.mu.Lock()
	s.board = b.Clone()
	s.commit()
}

// ApplyPatch transforms a copy of the open board and publishes the result.
// It does nothing and returns false when boardID is not the open board.
func (s *Store) ApplyPatch(boardID string, patch func(*domain.Board)) bool {
	s.mu.Lock()
	if s.board == nil || s.board.ID != boardID {
		s.mu.Unlock()
		return false
	}
	next := s.board.Clone()
	patch(next)
	s.board = next
	s.boards = replaceListed(s.boards, next)
	s.commit()
	return true
}

// RemoveBoard drops a board from the list and closes it if it is open.
func (s *Store) RemoveBoard(id string) {
	s.mu.Lock()
	boards := make([]*domain.Board, 0, len(s.boards))
	for _, b := range s.boards {
		if b.ID != id {
			boards = append(boards, b)
		}
	}
	s.boards = boards
	if s.board != nil && s.board.ID == id {
		s.board = nil
	}
	s.commit()
}

// AddBoard appends a board to the list, replacing an entry with the same id.
func (s *Store) AddBoard(b *domain.Board) {
	c := b.Clone()
	s.mu.Lock()
	for i, old := range s.boards {
		if old.ID == c.ID {
			boards := append([]*domain.Board(nil), s.boards...)
			boards[i] = c
			s.boards = boards
			s.commit()
			return
		}
	}
	s.boards = append(append([]*domain.Board(nil), s.boards...), c)
	s.commit()
}

// commit bumps the version, releases mu and notifies listeners. Callers hold mu.
func (s *Store) commit() {
	s.version++
	snap := Snapshot{Version: s.version, Board: s.board, Boards: s.boards}
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()
	for _, fn := range s.listeners {
		fn(snap)
	}
}

// replaceListed swaps the list entry for b, keeping the list's summary of
// the board in step with the open copy.
func replaceListed(boards []*domain.Board, b *domain.Board) []*domain.Board {
	for i, old := range boards {
		if old.ID == b.ID {
			out := append([]*domain.Board(nil), boards...)
			out[i] = b
			return out
		}
	}
	return boards
}

func starred(boards []*domain.Board) []*domain.Board {
	var out []*domain.Board
	for _, b := range boards {
		if b.IsStarred {
			out = append(out, b)
		}
	}
	return out
}
