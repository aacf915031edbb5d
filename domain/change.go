package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Change keys understood by ApplyChange.
const (
	KeyTitle       = "title"
	KeyDescription = "description"
	KeyDueDate     = "dueDate"
	KeyCover       = "cover"
	KeyChecklists  = "checklists"
	KeyAttachments = "attachments"
	KeyMembers     = "members"
	KeyLabels      = "labels"
	KeyPosition    = "position"
	KeyStyle       = "style"
	KeyStarred     = "isStarred"

	// KeyDeleteTask and KeyDeleteGroup are sentinel keys: the value is null
	// and the addressed task or group is removed.
	KeyDeleteTask  = "deleteTask"
	KeyDeleteGroup = "deleteGroup"
)

// Change is the {key, value} envelope carried by a field edit or a sentinel
// delete. Value holds the JSON encoding of the new value.
type Change struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// ChangeRequest addresses a change inside a board. It is the body of the
// board change endpoint.
type ChangeRequest struct {
	GroupID string `json:"groupId,omitempty"`
	TaskID  string `json:"taskId,omitempty"`
	Change
}

// NewChange encodes v as the value of a change to key.
func NewChange(key string, v any) (Change, error) {
	if v == nil {
		return Change{Key: key, Value: json.RawMessage("null")}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Change{}, fmt.Errorf("encode %s: %w", key, err)
	}
	return Change{Key: key, Value: data}, nil
}

// IsNull reports whether the change carries no value.
func (c Change) IsNull() bool {
	return len(c.Value) == 0 || string(c.Value) == "null"
}

func (c Change) decode(out any) error {
	if c.IsNull() {
		return nil
	}
	if err := json.Unmarshal(c.Value, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidChange, c.Key, err)
	}
	return nil
}

// ApplyChange applies c to b in place. An empty groupID addresses the board
// itself, an empty taskID addresses the group.
func ApplyChange(b *Board, groupID, taskID string, c Change) error {
	switch {
	case groupID == "" && taskID == "":
		return applyBoardChange(b, c)
	case taskID == "":
		return applyGroupChange(b, groupID, c)
	default:
		return applyTaskChange(b, groupID, taskID, c)
	}
}

func applyBoardChange(b *Board, c Change) error {
	switch c.Key {
	case KeyTitle:
		return c.decode(&b.Title)
	case KeyStyle:
		var s Style
		if err := c.decode(&s); err != nil {
			return err
		}
		b.Style = s
	case KeyStarred:
		return c.decode(&b.IsStarred)
	case KeyMembers:
		var members []Member
		if err := c.decode(&members); err != nil {
			return err
		}
		b.Members = members
	case KeyLabels:
		var labels []Label
		if err := c.decode(&labels); err != nil {
			return err
		}
		b.Labels = labels
	default:
		return fmt.Errorf("%w: unknown board key %q", ErrInvalidChange, c.Key)
	}
	return nil
}

func applyGroupChange(b *Board, groupID string, c Change) error {
	g, idx := b.FindGroup(groupID)
	if g == nil {
		return GroupNotFound(groupID)
	}
	switch c.Key {
	case KeyTitle:
		return c.decode(&g.Title)
	case KeyPosition:
		if err := c.decode(&g.Position); err != nil {
			return err
		}
		SortGroups(b)
	case KeyDeleteGroup:
		b.Groups = slices.Delete(b.Groups, idx, idx+1)
	default:
		return fmt.Errorf("%w: unknown group key %q", ErrInvalidChange, c.Key)
	}
	return nil
}

func applyTaskChange(b *Board, groupID, taskID string, c Change) error {
	g, _ := b.FindGroup(groupID)
	if g == nil {
		return GroupNotFound(groupID)
	}
	t, idx := g.FindTask(taskID)
	if t == nil {
		return TaskNotFound(taskID)
	}
	switch c.Key {
	case KeyTitle:
		return c.decode(&t.Title)
	case KeyDescription:
		var s string
		if err := c.decode(&s); err != nil {
			return err
		}
		t.Description = s
	case KeyDueDate:
		var due *time.Time
		if err := c.decode(&due); err != nil {
			return err
		}
		t.DueDate = due
	case KeyCover:
		var cover *Cover
		if err := c.decode(&cover); err != nil {
			return err
		}
		t.Cover = cover
	case KeyChecklists:
		var lists []Checklist
		if err := c.decode(&lists); err != nil {
			return err
		}
		for i := range lists {
			SortChecklistItems(&lists[i])
		}
		t.Checklists = lists
	case KeyAttachments:
		var files []Attachment
		if err := c.decode(&files); err != nil {
			return err
		}
		t.Attachments = files
	case KeyMembers:
		var ids []string
		if err := c.decode(&ids); err != nil {
			return err
		}
		if err := checkAdded(ids, t.MemberIDs, func(id string) bool { return b.FindMember(id) != nil }, MemberNotFound); err != nil {
			return err
		}
		t.MemberIDs = ids
	case KeyLabels:
		var ids []string
		if err := c.decode(&ids); err != nil {
			return err
		}
		if err := checkAdded(ids, t.LabelIDs, func(id string) bool { return b.FindLabel(id) != nil }, LabelNotFound); err != nil {
			return err
		}
		t.LabelIDs = ids
	case KeyPosition:
		if err := c.decode(&t.Position); err != nil {
			return err
		}
		SortTasks(g)
	case KeyDeleteTask:
		g.Tasks = slices.Delete(g.Tasks, idx, idx+1)
	default:
		return fmt.Errorf("%w: unknown task key %q", ErrInvalidChange, c.Key)
	}
	return nil
}

// checkAdded rejects ids absent from cur that the board does not know.
// References the task already holds may dangle; they are hidden when
// rendered and kept in storage.
func checkAdded(ids, cur []string, known func(string) bool, notFound func(string) error) error {
	for _, id := range ids {
		if !slices.Contains(cur, id) && !known(id) {
			return notFound(id)
		}
	}
	return nil
}

// SortGroups orders groups by position. Equal positions keep their current
// relative order.
func SortGroups(b *Board) {
	slices.SortStableFunc(b.Groups, func(x, y Group) int { return comparePositions(x.Position, y.Position) })
}

// SortTasks orders a group's tasks by position, stable on ties.
func SortTasks(g *Group) {
	slices.SortStableFunc(g.Tasks, func(x, y Task) int { return comparePositions(x.Position, y.Position) })
}

// SortChecklistItems orders a checklist's items by position, stable on ties.
func SortChecklistItems(cl *Checklist) {
	slices.SortStableFunc(cl.Items, func(x, y ChecklistItem) int { return comparePositions(x.Position, y.Position) })
}

// Normalize sorts every sibling collection of the board.
func Normalize(b *Board) {
	SortGroups(b)
	for i := range b.Groups {
		SortTasks(&b.Groups[i])
		for j := range b.Groups[i].Tasks {
			for k := range b.Groups[i].Tasks[j].Checklists {
				SortChecklistItems(&b.Groups[i].Tasks[j].Checklists[k])
			}
		}
	}
}

func comparePositions(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
