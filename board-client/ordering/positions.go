package ordering

import "taskboard/domain"

// Accessors for the board's sibling collections.
var (
	GroupPosition Position[domain.Group]         = func(g *domain.Group) *float64 { return &g.Position }
	TaskPosition  Position[domain.Task]          = func(t *domain.Task) *float64 { return &t.Position }
	ItemPosition  Position[domain.ChecklistItem] = func(i *domain.ChecklistItem) *float64 { return &i.Position }
)
