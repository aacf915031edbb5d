package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"taskboard/domain"
)

func printBoardList(w io.Writer, boards []*domain.Board) {
	for _, b := range boards {
		star := " "
		if b.IsStarred {
			star = "*"
		}
		fmt.Fprintf(w, "%s %s  %s\n", star, b.ID, b.Title)
	}
}

func printBoard(w io.Writer, b *domain.Board) {
	if b == nil {
		return
	}
	fmt.Fprintf(w, "%s  %s\n", b.ID, b.Title)
	for _, g := range b.Groups {
		fmt.Fprintf(w, "\n[%s] %s (%d)\n", g.ID, g.Title, len(g.Tasks))
		for i := range g.Tasks {
			fmt.Fprintf(w, "  %s\n", taskLine(b, &g.Tasks[i]))
		}
	}
}

func taskLine(b *domain.Board, t *domain.Task) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s  %s", t.ID, t.Title)
	if labels := b.TaskLabels(t); len(labels) > 0 {
		names := make([]string, len(labels))
		for i, l := range labels {
			names[i] = l.Title
		}
		fmt.Fprintf(&sb, "  [%s]", strings.Join(names, ", "))
	}
	if members := b.TaskMembers(t); len(members) > 0 {
		names := make([]string, len(members))
		for i, m := range members {
			names[i] = initials(m.Fullname)
		}
		fmt.Fprintf(&sb, "  @%s", strings.Join(names, " @"))
	}
	if checked, total := t.ChecklistProgress(); total > 0 {
		fmt.Fprintf(&sb, "  %d/%d", checked, total)
	}
	if t.DueDate != nil {
		fmt.Fprintf(&sb, "  due %s", t.DueDate.Format(time.DateOnly))
	}
	return sb.String()
}

func initials(name string) string {
	var out []rune
	for _, part := range strings.Fields(name) {
		out = append(out, []rune(strings.ToUpper(part))[0])
	}
	if len(out) == 0 {
		return "?"
	}
	return string(out)
}
