package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a referenced board, group, task, checklist,
	// member or label does not exist at mutation time.
	ErrNotFound = errors.New("not found")
	// ErrPersistence indicates the durable-write round trip failed.
	ErrPersistence = errors.New("persistence failure")
	// ErrReconciliation indicates a reload of the open board failed.
	ErrReconciliation = errors.New("reconciliation failure")
	// ErrConcurrencyConflict indicates that the underlying storage rejected an
	// update because a newer version of the board is already persisted.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrInvalidChange indicates a change envelope with an unknown key or a
	// value that does not decode for that key.
	ErrInvalidChange = errors.New("invalid change")
)

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func notFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// BoardNotFound reports a missing board.
func BoardNotFound(id string) error { return notFound("board", id) }

// GroupNotFound reports a missing group.
func GroupNotFound(id string) error { return notFound("group", id) }

// TaskNotFound reports a missing task.
func TaskNotFound(id string) error { return notFound("task", id) }

// ChecklistNotFound reports a missing checklist or checklist item.
func ChecklistNotFound(id string) error { return notFound("checklist", id) }

// MemberNotFound reports a member that is not on the board.
func MemberNotFound(id string) error { return notFound("member", id) }

// LabelNotFound reports a label missing from the board palette.
func LabelNotFound(id string) error { return notFound("label", id) }
