package domain

import (
	"slices"
	"strings"
)

// BoardFilter narrows the board list.
type BoardFilter struct {
	CreatedBy string `json:"createdBy,omitempty"`
	Title     string `json:"title,omitempty"`
}

// Match reports whether the board passes the filter. CreatedBy matches boards
// the user created or is a member of.
func (f BoardFilter) Match(b *Board) bool {
	if f.CreatedBy != "" && (b.CreatedBy == nil || b.CreatedBy.ID != f.CreatedBy) {
		if b.FindMember(f.CreatedBy) == nil {
			return false
		}
	}
	if f.Title != "" && !strings.Contains(strings.ToLower(b.Title), strings.ToLower(f.Title)) {
		return false
	}
	return true
}

// TaskFilter narrows the tasks returned with a board. The zero value
// matches everything.
type TaskFilter struct {
	Text      string   `json:"txt,omitempty"`
	LabelIDs  []string `json:"labelIds,omitempty"`
	MemberIDs []string `json:"memberIds,omitempty"`
}

func (f TaskFilter) IsZero() bool {
	return f.Text == "" && len(f.LabelIDs) == 0 && len(f.MemberIDs) == 0
}

// Match reports whether a task passes every criterion of the filter.
func (f TaskFilter) Match(t *Task) bool {
	if f.Text != "" {
		txt := strings.ToLower(f.Text)
		if !strings.Contains(strings.ToLower(t.Title), txt) && !strings.Contains(strings.ToLower(t.Description), txt) {
			return false
		}
	}
	if len(f.LabelIDs) > 0 && !slices.ContainsFunc(t.LabelIDs, func(id string) bool { return slices.Contains(f.LabelIDs, id) }) {
		return false
	}
	if len(f.MemberIDs) > 0 && !slices.ContainsFunc(t.MemberIDs, func(id string) bool { return slices.Contains(f.MemberIDs, id) }) {
		return false
	}
	return true
}

// Apply returns a copy of the board holding only the matching tasks. Groups
// are kept even when all their tasks are filtered out.
func (f TaskFilter) Apply(b *Board) *Board {
	out := b.Clone()
	if f.IsZero() {
		return out
	}
	for i := range out.Groups {
		out.Groups[i].Tasks = slices.DeleteFunc(out.Groups[i].Tasks, func(t Task) bool { return !f.Match(&t) })
	}
	return out
}
