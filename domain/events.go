package domain

const (
	// EventJoinBoard is emitted by a client opening a board.
	EventJoinBoard = "joinBoard"
	// EventLeaveBoard is emitted by a client closing a board.
	EventLeaveBoard = "leaveBoard"
	// EventGroupsUpdated signals that a board's groups or tasks changed.
	EventGroupsUpdated = "groups-updated"
	// EventActivitiesUpdated signals that a board's activity log grew.
	EventActivitiesUpdated = "activities-updated"
)

// Activity verbs.
const (
	VerbCreateBoard = "createBoard"
	VerbAddBoard    = "addBoard"
	VerbAddGroup    = "addGroup"
	VerbDeleteGroup = "deleteGroup"
	VerbAddTask     = "addTask"
	VerbDeleteTask  = "deleteTask"
	VerbMoveTask    = "moveTask"
	VerbMoveGroup   = "moveGroup"
)

// BoardTopic is the pub/sub topic carrying a board's change signals.
func BoardTopic(boardID string) string {
	return "board:" + boardID
}

// Event is the wire message published on a board topic. It carries no delta;
// receivers re-fetch the board.
type Event struct {
	Name    string `json:"event"`
	BoardID string `json:"boardId"`
	Actor   string `json:"actor,omitempty"`
}

// JoinPayload is the body of the joinBoard and leaveBoard emits.
type JoinPayload struct {
	BoardID string  `json:"boardId"`
	User    *Member `json:"user,omitempty"`
}

// ActivityRequest asks the persistence layer to append one Activity to a
// board's log. The server assigns the id and timestamp.
type ActivityRequest struct {
	BoardID        string  `json:"boardId"`
	Text           string  `json:"txt"`
	Verb           string  `json:"verb"`
	By             *Member `json:"byMember,omitempty"`
	Group          *Ref    `json:"group,omitempty"`
	Task           *Ref    `json:"task,omitempty"`
	Extra          string  `json:"extra,omitempty"`
	TaskNumber     int     `json:"taskNumber,omitempty"`
	IdempotencyKey string  `json:"idempotencyKey,omitempty"`
}

// Activity builds the log entry for the request.
func (r ActivityRequest) Activity(id string, createdAt int64) Activity {
	a := Activity{
		ID:         id,
		Verb:       r.Verb,
		Text:       r.Text,
		Extra:      r.Extra,
		TaskNumber: r.TaskNumber,
		CreatedAt:  createdAt,
	}
	if r.By != nil {
		m := *r.By
		a.By = &m
	}
	if r.Group != nil {
		g := *r.Group
		a.Group = &g
	}
	if r.Task != nil {
		t := *r.Task
		a.Task = &t
	}
	return a
}
