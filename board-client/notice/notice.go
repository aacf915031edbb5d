// Package notice carries user-facing notifications from the engine to the
// rendering layer.
package notice

import "sync"

type Kind int

const (
	Success Kind = iota
	Failure
	// ShowTask asks the rendering layer to open a task preview.
	ShowTask
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Failure:
		return "error"
	case ShowTask:
		return "show-task"
	}
	return "unknown"
}

type Notice struct {
	Kind    Kind
	Text    string
	BoardID string
	GroupID string
	TaskID  string
}

func Info(text string) Notice { return Notice{Kind: Success, Text: text} }

func Error(text string) Notice { return Notice{Kind: Failure, Text: text} }

func OpenTask(boardID, groupID, taskID string) Notice {
	return Notice{Kind: ShowTask, BoardID: boardID, GroupID: groupID, TaskID: taskID}
}

// Broker fans notices out to subscribers without blocking the publisher. A
// subscriber whose buffer is full misses the notice.
type Broker struct {
	mu   sync.Mutex
	subs map[chan Notice]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[chan Notice]struct{})}
}

// Subscribe returns a channel buffered to size and a function that removes
// and closes it.
func (b *Broker) Subscribe(size int) (<-chan Notice, func()) {
	if size < 1 {
		size = 1
	}
	ch := make(chan Notice, size)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers n to every subscriber with room and returns how many
// subscribers dropped it.
func (b *Broker) Publish(n Notice) (dropped int) {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- n:
		default:
			dropped++
		}
	}
	return dropped
}
