package domain

import "time"

// Board is the collaborative document: ordered groups of ordered tasks plus
// the member list, label palette and activity log they reference.
type Board struct {
	ID         string     `json:"_id,omitempty"`
	Title      string     `json:"title"`
	IsStarred  bool       `json:"isStarred"`
	Style      Style      `json:"style"`
	CreatedBy  *Member    `json:"createdBy,omitempty"`
	CreatedAt  int64      `json:"createdAt,omitempty"`
	Members    []Member   `json:"members"`
	Labels     []Label    `json:"labels"`
	Groups     []Group    `json:"groups"`
	Activities []Activity `json:"activities"`
}

// Style describes the board background.
type Style struct {
	BackgroundColor string `json:"backgroundColor,omitempty"`
	BackgroundImage string `json:"backgroundImage,omitempty"`
}

type Group struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Position float64 `json:"position"`
	Tasks    []Task  `json:"tasks"`
}

type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Position    float64      `json:"position"`
	Description string       `json:"description,omitempty"`
	DueDate     *time.Time   `json:"dueDate,omitempty"`
	Cover       *Cover       `json:"cover,omitempty"`
	Checklists  []Checklist  `json:"checklists,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	MemberIDs   []string     `json:"memberIds,omitempty"`
	LabelIDs    []string     `json:"labelIds,omitempty"`
}

type Cover struct {
	Color string `json:"color,omitempty"`
	Img   string `json:"img,omitempty"`
}

type Checklist struct {
	ID    string          `json:"id"`
	Title string          `json:"title"`
	Items []ChecklistItem `json:"items"`
}

type ChecklistItem struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	IsChecked bool    `json:"isChecked"`
	Position  float64 `json:"position"`
}

type Attachment struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	CreatedAt int64  `json:"createdAt,omitempty"`
}

// Member is a user referenced by the board and by task assignments. Color is
// the fallback avatar background when ImgURL is empty.
type Member struct {
	ID       string `json:"_id"`
	Fullname string `json:"fullname"`
	ImgURL   string `json:"imgUrl,omitempty"`
	Color    string `json:"color,omitempty"`
}

type Label struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Color string `json:"color"`
}

// Ref is the minimal copy of a group or task kept inside an Activity so the
// log stays readable after the target is deleted.
type Ref struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Activity is an immutable audit record.
type Activity struct {
	ID         string  `json:"id"`
	By         *Member `json:"byMember,omitempty"`
	Verb       string  `json:"verb"`
	Text       string  `json:"txt"`
	Group      *Ref    `json:"group,omitempty"`
	Task       *Ref    `json:"task,omitempty"`
	Extra      string  `json:"extra,omitempty"`
	TaskNumber int     `json:"taskNumber,omitempty"`
	CreatedAt  int64   `json:"createdAt"`
}

// FindGroup returns the group with the given id and its index.
func (b *Board) FindGroup(groupID string) (*Group, int) {
	for i := range b.Groups {
		if b.Groups[i].ID == groupID {
			return &b.Groups[i], i
		}
	}
	return nil, -1
}

// FindTask returns the task and its index inside the given group.
func (b *Board) FindTask(groupID, taskID string) (*Task, int) {
	g, _ := b.FindGroup(groupID)
	if g == nil {
		return nil, -1
	}
	return g.FindTask(taskID)
}

// LocateTask searches every group for the task.
func (b *Board) LocateTask(taskID string) (*Group, *Task) {
	for i := range b.Groups {
		if t, _ := b.Groups[i].FindTask(taskID); t != nil {
			return &b.Groups[i], t
		}
	}
	return nil, nil
}

func (g *Group) FindTask(taskID string) (*Task, int) {
	for i := range g.Tasks {
		if g.Tasks[i].ID == taskID {
			return &g.Tasks[i], i
		}
	}
	return nil, -1
}

func (b *Board) FindMember(memberID string) *Member {
	for i := range b.Members {
		if b.Members[i].ID == memberID {
			return &b.Members[i]
		}
	}
	return nil
}

func (b *Board) FindLabel(labelID string) *Label {
	for i := range b.Labels {
		if b.Labels[i].ID == labelID {
			return &b.Labels[i]
		}
	}
	return nil
}

// TaskMembers resolves a task's member references against the board.
// References to members no longer on the board are skipped.
func (b *Board) TaskMembers(t *Task) []Member {
	out := make([]Member, 0, len(t.MemberIDs))
	for _, id := range t.MemberIDs {
		if m := b.FindMember(id); m != nil {
			out = append(out, *m)
		}
	}
	return out
}

// TaskLabels resolves a task's label references against the palette.
func (b *Board) TaskLabels(t *Task) []Label {
	out := make([]Label, 0, len(t.LabelIDs))
	for _, id := range t.LabelIDs {
		if l := b.FindLabel(id); l != nil {
			out = append(out, *l)
		}
	}
	return out
}

// TaskNumber is the 1-based ordinal of a task when every group's tasks are
// laid end to end in board order. Zero when the task is missing.
func (b *Board) TaskNumber(groupID, taskID string) int {
	n := 0
	for _, g := range b.Groups {
		if g.ID != groupID {
			n += len(g.Tasks)
			continue
		}
		for i, t := range g.Tasks {
			if t.ID == taskID {
				return n + i + 1
			}
		}
		return 0
	}
	return 0
}

// ChecklistProgress returns the number of checked items and the total item
// count over all of the task's checklists.
func (t *Task) ChecklistProgress() (checked, total int) {
	for _, cl := range t.Checklists {
		for _, it := range cl.Items {
			total++
			if it.IsChecked {
				checked++
			}
		}
	}
	return checked, total
}

func (c *Checklist) FindItem(itemID string) (*ChecklistItem, int) {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return &c.Items[i], i
		}
	}
	return nil, -1
}

func (t *Task) FindChecklist(checklistID string) (*Checklist, int) {
	for i := range t.Checklists {
		if t.Checklists[i].ID == checklistID {
			return &t.Checklists[i], i
		}
	}
	return nil, -1
}

// Clone returns a deep copy of the board.
func (b *Board) Clone() *Board {
	if b == nil {
		return nil
	}
	out := *b
	if b.CreatedBy != nil {
		m := *b.CreatedBy
		out.CreatedBy = &m
	}
	out.Members = cloneSlice(b.Members)
	out.Labels = cloneSlice(b.Labels)
	out.Activities = make([]Activity, len(b.Activities))
	for i, a := range b.Activities {
		out.Activities[i] = a.clone()
	}
	out.Groups = make([]Group, len(b.Groups))
	for i := range b.Groups {
		out.Groups[i] = b.Groups[i].Clone()
	}
	return &out
}

func (g Group) Clone() Group {
	out := g
	out.Tasks = make([]Task, len(g.Tasks))
	for i := range g.Tasks {
		out.Tasks[i] = g.Tasks[i].Clone()
	}
	return out
}

func (t Task) Clone() Task {
	out := t
	if t.DueDate != nil {
		d := *t.DueDate
		out.DueDate = &d
	}
	if t.Cover != nil {
		c := *t.Cover
		out.Cover = &c
	}
	if t.Checklists != nil {
		out.Checklists = make([]Checklist, len(t.Checklists))
		for i, cl := range t.Checklists {
			cl.Items = cloneSlice(cl.Items)
			out.Checklists[i] = cl
		}
	}
	out.Attachments = cloneSlice(t.Attachments)
	out.MemberIDs = cloneSlice(t.MemberIDs)
	out.LabelIDs = cloneSlice(t.LabelIDs)
	return out
}

func (a Activity) clone() Activity {
	out := a
	if a.By != nil {
		m := *a.By
		out.By = &m
	}
	if a.Group != nil {
		r := *a.Group
		out.Group = &r
	}
	if a.Task != nil {
		r := *a.Task
		out.Task = &r
	}
	return out
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
