package domain

import (
	"errors"
	"testing"
	"time"
)

func sampleBoard() *Board {
	return &Board{
		ID:      "b1",
		Title:   "Roadmap",
		Members: []Member{{ID: "u1", Fullname: "Ada"}, {ID: "u2", Fullname: "Linus"}},
		Labels:  []Label{{ID: "l1", Title: "bug", Color: "red"}},
		Groups: []Group{
			{ID: "g1", Title: "Todo", Position: 1024, Tasks: []Task{
				{ID: "t1", Title: "one", Position: 1024},
				{ID: "t2", Title: "two", Position: 2048},
				{ID: "t3", Title: "three", Position: 3072},
			}},
			{ID: "g2", Title: "Done", Position: 2048, Tasks: []Task{
				{ID: "t4", Title: "four", Position: 1024},
			}},
		},
	}
}

func mustChange(t *testing.T, key string, v any) Change {
	t.Helper()
	c, err := NewChange(key, v)
	if err != nil {
		t.Fatalf("new change: %v", err)
	}
	return c
}

func TestApplyChangeTaskTitle(t *testing.T) {
	b := sampleBoard()
	if err := ApplyChange(b, "g1", "t2", mustChange(t, KeyTitle, "renamed")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	task, _ := b.FindTask("g1", "t2")
	if task.Title != "renamed" {
		t.Fatalf("expected renamed, got %q", task.Title)
	}
	other, _ := b.FindTask("g1", "t1")
	if other.Title != "one" {
		t.Fatalf("sibling modified: %q", other.Title)
	}
}

func TestApplyChangeDueDateNullClears(t *testing.T) {
	b := sampleBoard()
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := ApplyChange(b, "g1", "t1", mustChange(t, KeyDueDate, due)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	task, _ := b.FindTask("g1", "t1")
	if task.DueDate == nil || !task.DueDate.Equal(due) {
		t.Fatalf("unexpected due date %v", task.DueDate)
	}
	if err := ApplyChange(b, "g1", "t1", mustChange(t, KeyDueDate, nil)); err != nil {
		t.Fatalf("apply null: %v", err)
	}
	if task.DueDate != nil {
		t.Fatalf("expected due date cleared, got %v", task.DueDate)
	}
}

func TestApplyChangePositionResorts(t *testing.T) {
	b := sampleBoard()
	if err := ApplyChange(b, "g1", "t3", mustChange(t, KeyPosition, 512.0)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	g, _ := b.FindGroup("g1")
	got := []string{g.Tasks[0].ID, g.Tasks[1].ID, g.Tasks[2].ID}
	want := []string{"t3", "t1", "t2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order %v, want %v", got, want)
		}
	}
}

func TestApplyChangeGroupPosition(t *testing.T) {
	b := sampleBoard()
	if err := ApplyChange(b, "g2", "", mustChange(t, KeyPosition, 10.0)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if b.Groups[0].ID != "g2" {
		t.Fatalf("expected g2 first, got %s", b.Groups[0].ID)
	}
}

func TestApplyChangeDeleteSentinels(t *testing.T) {
	b := sampleBoard()
	if err := ApplyChange(b, "g1", "t2", Change{Key: KeyDeleteTask}); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if task, _ := b.FindTask("g1", "t2"); task != nil {
		t.Fatalf("task still present")
	}
	if n := len(b.Groups[0].Tasks); n != 2 {
		t.Fatalf("expected 2 tasks, got %d", n)
	}
	if err := ApplyChange(b, "g2", "", Change{Key: KeyDeleteGroup}); err != nil {
		t.Fatalf("delete group: %v", err)
	}
	if g, _ := b.FindGroup("g2"); g != nil {
		t.Fatalf("group still present")
	}
}

func TestApplyChangeMembersMustBeOnBoard(t *testing.T) {
	b := sampleBoard()
	err := ApplyChange(b, "g1", "t1", mustChange(t, KeyMembers, []string{"u1", "ghost"}))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	task, _ := b.FindTask("g1", "t1")
	if len(task.MemberIDs) != 0 {
		t.Fatalf("members changed on failure: %v", task.MemberIDs)
	}
	if err := ApplyChange(b, "g1", "t1", mustChange(t, KeyLabels, []string{"l1"})); err != nil {
		t.Fatalf("labels: %v", err)
	}
	if len(task.LabelIDs) != 1 {
		t.Fatalf("expected one label, got %v", task.LabelIDs)
	}
}

func TestApplyChangeKeepsDanglingReferences(t *testing.T) {
	b := sampleBoard()
	task, _ := b.FindTask("g1", "t1")
	task.LabelIDs = []string{"gone"}
	task.MemberIDs = []string{"left"}
	if err := ApplyChange(b, "g1", "t1", mustChange(t, KeyLabels, []string{"gone", "l1"})); err != nil {
		t.Fatalf("labels: %v", err)
	}
	if err := ApplyChange(b, "g1", "t1", mustChange(t, KeyMembers, []string{"left", "u2"})); err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(task.LabelIDs) != 2 || len(task.MemberIDs) != 2 {
		t.Fatalf("unexpected refs %v %v", task.LabelIDs, task.MemberIDs)
	}
	err := ApplyChange(b, "g1", "t1", mustChange(t, KeyLabels, []string{"gone", "l1", "other"}))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected new unknown label rejected, got %v", err)
	}
}

func TestApplyChangeBoardScope(t *testing.T) {
	b := sampleBoard()
	if err := ApplyChange(b, "", "", mustChange(t, KeyStarred, true)); err != nil {
		t.Fatalf("star: %v", err)
	}
	if !b.IsStarred {
		t.Fatalf("expected starred")
	}
	if err := ApplyChange(b, "", "", mustChange(t, KeyStyle, Style{BackgroundColor: "#fff"})); err != nil {
		t.Fatalf("style: %v", err)
	}
	if b.Style.BackgroundColor != "#fff" {
		t.Fatalf("style not applied: %+v", b.Style)
	}
}

func TestApplyChangeErrors(t *testing.T) {
	cases := []struct {
		name    string
		group   string
		task    string
		change  Change
		wantErr error
	}{
		{"missing group", "nope", "t1", Change{Key: KeyTitle, Value: []byte(`"x"`)}, ErrNotFound},
		{"missing task", "g1", "nope", Change{Key: KeyTitle, Value: []byte(`"x"`)}, ErrNotFound},
		{"unknown task key", "g1", "t1", Change{Key: "color", Value: []byte(`"x"`)}, ErrInvalidChange},
		{"unknown board key", "", "", Change{Key: "owner", Value: []byte(`"x"`)}, ErrInvalidChange},
		{"bad value", "g1", "t1", Change{Key: KeyPosition, Value: []byte(`"high"`)}, ErrInvalidChange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ApplyChange(sampleBoard(), tc.group, tc.task, tc.change)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}
