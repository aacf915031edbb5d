// Package boards implements the board operations behind the board API.
package boards

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"taskboard/board-api/storage"
	"taskboard/domain"
)

// DefaultMaxRetries bounds the read-modify-write loop on version conflicts.
const DefaultMaxRetries = 8

// Publisher announces board changes to watching clients.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// ActivityQueue hands activity appends to the activity updater.
type ActivityQueue interface {
	Enqueue(ctx context.Context, req domain.ActivityRequest) error
}

type Options struct {
	MaxRetries int
	Logger     *log.Logger
	NewID      func() string
	Now        func() time.Time
}

// Service applies board writes with optimistic concurrency and publishes a
// change signal after each successful write.
type Service struct {
	repo  storage.Repository
	pub   Publisher
	queue ActivityQueue
	opts  Options
}

// New creates a Service. pub and queue may be nil: without a publisher no
// signals are sent, without a queue activities are recorded inline.
func New(repo storage.Repository, pub Publisher, queue ActivityQueue, opts Options) *Service {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{repo: repo, pub: pub, queue: queue, opts: opts}
}

func (s *Service) List(ctx context.Context, filter domain.BoardFilter) ([]domain.Board, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Board, 0, len(all))
	for i := range all {
		if filter.Match(&all[i]) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// Get returns the board with the tasks that pass filter.
func (s *Service) Get(ctx context.Context, id string, filter domain.TaskFilter) (*domain.Board, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.BoardNotFound(id)
	}
	domain.Normalize(&rec.Board)
	return filter.Apply(&rec.Board), nil
}

func (s *Service) Create(ctx context.Context, b domain.Board) (*domain.Board, error) {
	out := b.Clone()
	if out.ID == "" {
		out.ID = s.opts.NewID()
	}
	if out.CreatedAt == 0 {
		out.CreatedAt = s.opts.Now().UnixMilli()
	}
	s.assignIDs(out)
	domain.Normalize(out)
	if _, err := s.repo.Insert(ctx, *out); err != nil {
		return nil, fmt.Errorf("create board: %w", err)
	}
	s.opts.Logger.WithFields(log.Fields{"board": out.ID, "title": out.Title}).Info("board created")
	return out, nil
}

// Replace stores the client's copy of the board. The activity log and the
// creation stamp always come from the stored board.
func (s *Service) Replace(ctx context.Context, b domain.Board, actor string) (*domain.Board, error) {
	incoming := b.Clone()
	s.assignIDs(incoming)
	out, err := s.update(ctx, b.ID, func(cur *domain.Board) error {
		next := incoming.Clone()
		next.Activities = cur.Activities
		next.CreatedBy = cur.CreatedBy
		next.CreatedAt = cur.CreatedAt
		*cur = *next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, domain.EventGroupsUpdated, out.ID, actor)
	return out, nil
}

// ApplyChange applies one {key, value} change to the stored board.
func (s *Service) ApplyChange(ctx context.Context, boardID string, req domain.ChangeRequest, actor string) (*domain.Board, error) {
	out, err := s.update(ctx, boardID, func(cur *domain.Board) error {
		return domain.ApplyChange(cur, req.GroupID, req.TaskID, req.Change)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, domain.EventGroupsUpdated, boardID, actor)
	return out, nil
}

func (s *Service) Remove(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.opts.Logger.WithField("board", id).Info("board removed")
	return nil
}

// QueueActivity hands the append to the activity updater. The request gets an
// idempotency key when it has none so a redelivered message is recorded once.
func (s *Service) QueueActivity(ctx context.Context, req domain.ActivityRequest) error {
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = s.opts.NewID()
	}
	if s.queue == nil {
		_, err := s.RecordActivity(ctx, req)
		return err
	}
	if err := s.queue.Enqueue(ctx, req); err != nil {
		return fmt.Errorf("enqueue activity: %w", err)
	}
	return nil
}

var errDuplicateActivity = errors.New("activity already recorded")

// RecordActivity prepends the activity to the board's log. It reports false
// when an activity with the same idempotency key is already there.
func (s *Service) RecordActivity(ctx context.Context, req domain.ActivityRequest) (bool, error) {
	id := req.IdempotencyKey
	if id == "" {
		id = s.opts.NewID()
	}
	at := s.opts.Now().UnixMilli()
	_, err := s.update(ctx, req.BoardID, func(cur *domain.Board) error {
		if slices.ContainsFunc(cur.Activities, func(a domain.Activity) bool { return a.ID == id }) {
			return errDuplicateActivity
		}
		cur.Activities = slices.Insert(cur.Activities, 0, req.Activity(id, at))
		return nil
	})
	if errors.Is(err, errDuplicateActivity) {
		s.opts.Logger.WithFields(log.Fields{"board": req.BoardID, "activity": id}).Debug("duplicate activity skipped")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	actor := ""
	if req.By != nil {
		actor = req.By.ID
	}
	s.publish(ctx, domain.EventActivitiesUpdated, req.BoardID, actor)
	return true, nil
}

// update runs mutate against the latest stored board and writes the result
// conditioned on the version it read, retrying on conflicts.
func (s *Service) update(ctx context.Context, id string, mutate func(*domain.Board) error) (*domain.Board, error) {
	for attempt := 1; ; attempt++ {
		rec, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, domain.BoardNotFound(id)
		}
		b := rec.Board.Clone()
		b.ID = id
		if err := mutate(b); err != nil {
			return nil, err
		}
		domain.Normalize(b)
		if _, err := s.repo.Replace(ctx, *b, rec.ETag); err != nil {
			if !errors.Is(err, domain.ErrConcurrencyConflict) {
				return nil, err
			}
			if attempt >= s.opts.MaxRetries {
				return nil, fmt.Errorf("board %s: gave up after %d attempts: %w", id, attempt, err)
			}
			s.opts.Logger.WithFields(log.Fields{"board": id, "attempt": attempt}).Debug("board write conflict, retrying")
			continue
		}
		return b, nil
	}
}

func (s *Service) publish(ctx context.Context, event, boardID, actor string) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, domain.Event{Name: event, BoardID: boardID, Actor: actor}); err != nil {
		s.opts.Logger.WithError(err).WithFields(log.Fields{"board": boardID, "event": event}).Error("unable to publish board update")
	}
}

func (s *Service) assignIDs(b *domain.Board) {
	for i := range b.Groups {
		g := &b.Groups[i]
		if g.ID == "" {
			g.ID = s.opts.NewID()
		}
		for j := range g.Tasks {
			t := &g.Tasks[j]
			if t.ID == "" {
				t.ID = s.opts.NewID()
			}
			for k := range t.Checklists {
				cl := &t.Checklists[k]
				if cl.ID == "" {
					cl.ID = s.opts.NewID()
				}
				for n := range cl.Items {
					if cl.Items[n].ID == "" {
						cl.Items[n].ID = s.opts.NewID()
					}
				}
			}
		}
	}
	for i := range b.Activities {
		if b.Activities[i].ID == "" {
			b.Activities[i].ID = s.opts.NewID()
		}
	}
}
