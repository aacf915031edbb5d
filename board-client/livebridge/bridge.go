// Package livebridge turns remote change signals for the open board into
// debounced reloads.
package livebridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard/board-client/reconcile"
	"taskboard/domain"
)

const leaveTimeout = 5 * time.Second

type Handler func(domain.Event)

// EventChannel is a bidirectional pub/sub connection. On returns an id that
// Off uses to remove the handler.
type EventChannel interface {
	Emit(ctx context.Context, event string, payload any) error
	On(event string, h Handler) (uint64, error)
	Off(event string, id uint64)
}

// Reloader re-fetches a board into the store.
type Reloader interface {
	Reload(ctx context.Context, boardID string) error
}

// Events that make the open board stale.
var watched = []string{domain.EventGroupsUpdated, domain.EventActivitiesUpdated}

type Bridge struct {
	channel  EventChannel
	reloader Reloader
	opts     reconcile.Options
}

// New returns a Bridge. opts configures the scheduler of every session.
func New(channel EventChannel, reloader Reloader, opts reconcile.Options) *Bridge {
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	return &Bridge{channel: channel, reloader: reloader, opts: opts}
}

// Session is the live interest in one open board.
type Session struct {
	boardID   string
	user      *domain.Member
	channel   EventChannel
	scheduler *reconcile.Scheduler
	cancel    context.CancelFunc
	logger    log.FieldLogger

	mu       sync.Mutex
	handlers map[string]uint64
	once     sync.Once
}

// Open joins the board topic and subscribes to its change events. ctx
// bounds the session and every reload it issues. On error nothing stays
// subscribed.
func (b *Bridge) Open(ctx context.Context, boardID string, user *domain.Member) (*Session, error) {
	sctx, cancel := context.WithCancel(ctx)
	opts := b.opts
	opts.Logger = opts.Logger.WithField("board", boardID)
	s := &Session{
		boardID:  boardID,
		user:     user,
		channel:  b.channel,
		cancel:   cancel,
		logger:   opts.Logger,
		handlers: map[string]uint64{},
	}
	s.scheduler = reconcile.New(sctx, func(ctx context.Context) error {
		return b.reloader.Reload(ctx, boardID)
	}, opts)

	if err := b.channel.Emit(ctx, domain.EventJoinBoard, domain.JoinPayload{BoardID: boardID, User: user}); err != nil {
		s.scheduler.Stop()
		cancel()
		return nil, fmt.Errorf("join board %s: %w", boardID, err)
	}
	for _, name := range watched {
		id, err := b.channel.On(name, s.handle)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("subscribe %s for board %s: %w", name, boardID, err)
		}
		s.mu.Lock()
		s.handlers[name] = id
		s.mu.Unlock()
	}
	return s, nil
}

// Watch opens a session, runs fn and closes the session on every return
// path.
func (b *Bridge) Watch(ctx context.Context, boardID string, user *domain.Member, fn func(*Session) error) (err error) {
	s, err := b.Open(ctx, boardID, user)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.Close())
	}()
	return fn(s)
}

func (s *Session) handle(ev domain.Event) {
	if ev.BoardID != s.boardID {
		return
	}
	s.logger.WithField("event", ev.Name).Debug("remote board change")
	s.scheduler.Trigger()
}

func (s *Session) BoardID() string { return s.boardID }

// Pending reports whether a reload is waiting for its quiescence window.
func (s *Session) Pending() bool { return s.scheduler.State() == reconcile.Pending }

func (s *Session) Stats() reconcile.Stats { return s.scheduler.Stats() }

// Close unsubscribes, leaves the board topic and stops reloads. It is safe
// to call more than once; only the first call does anything.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		for name, id := range s.handlers {
			s.channel.Off(name, id)
		}
		s.handlers = map[string]uint64{}
		s.mu.Unlock()
		s.scheduler.Stop()
		s.cancel()

		ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		defer cancel()
		if lerr := s.channel.Emit(ctx, domain.EventLeaveBoard, domain.JoinPayload{BoardID: s.boardID, User: s.user}); lerr != nil {
			s.logger.WithError(lerr).Warn("leave board failed")
			err = fmt.Errorf("leave board %s: %w", s.boardID, lerr)
		}
	})
	return err
}
