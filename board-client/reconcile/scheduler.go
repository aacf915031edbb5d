// Package reconcile coalesces bursts of remote change signals into bounded
// full-board reloads.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

const (
	DefaultWindow  = 750 * time.Millisecond
	DefaultTimeout = 10 * time.Second
)

// ErrReloadTimeout settles a reload that did not return in time.
var ErrReloadTimeout = errors.New("reload timed out")

type State int

const (
	Idle State = iota
	Pending
	InFlight
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case InFlight:
		return "in-flight"
	}
	return "unknown"
}

// ReloadFunc fetches the board and writes it to the store.
type ReloadFunc func(ctx context.Context) error

type Options struct {
	// Window is the quiescence window. Triggers closer together than
	// Window collapse into one reload.
	Window time.Duration
	// Timeout bounds a single reload. A reload still running after Timeout
	// counts as failed and its eventual result is ignored.
	Timeout time.Duration
	Clock   Clock
	Logger  log.FieldLogger
	// OnFailure receives every reconciliation failure, wrapped in
	// domain.ErrReconciliation.
	OnFailure func(error)
}

type Stats struct {
	Triggers  uint64
	Coalesced uint64
	Reloads   uint64
	Failures  uint64
	Timeouts  uint64
}

// Scheduler is a timer-plus-flag state machine over {Idle, Pending,
// InFlight}. At most one reload runs at a time.
type Scheduler struct {
	reload ReloadFunc
	base   context.Context
	opts   Options

	mu      sync.Mutex
	state   State
	queued  bool
	stopped bool
	timer   Timer
	armID   uint64
	flight  uint64
	limit   Timer
	cancel  context.CancelFunc
	stats   Stats
}

// New returns an idle scheduler. Reloads run with contexts derived from ctx.
func New(ctx context.Context, reload ReloadFunc, opts Options) *Scheduler {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	return &Scheduler{reload: reload, base: ctx, opts: opts}
}

// Trigger records a change signal.
func (s *Scheduler) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stats.Triggers++
	switch s.state {
	case Idle:
		s.state = Pending
		s.arm()
	case Pending:
		s.stats.Coalesced++
		s.timer.Stop()
		s.arm()
	case InFlight:
		s.stats.Coalesced++
		s.queued = true
	}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Stop cancels any pending or running reload. Later triggers are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.limit != nil {
		s.limit.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.state = Idle
	s.queued = false
	s.flight++
}

// arm starts a fresh quiescence window. Callers hold mu.
func (s *Scheduler) arm() {
	s.armID++
	id := s.armID
	s.timer = s.opts.Clock.AfterFunc(s.opts.Window, func() { s.fire(id) })
}

func (s *Scheduler) fire(id uint64) {
	s.mu.Lock()
	if s.stopped || s.state != Pending || id != s.armID {
		s.mu.Unlock()
		return
	}
	s.state = InFlight
	s.flight++
	flight := s.flight
	s.stats.Reloads++
	ctx, cancel := context.WithCancel(s.base)
	s.cancel = cancel
	s.limit = s.opts.Clock.AfterFunc(s.opts.Timeout, func() { s.settle(flight, ErrReloadTimeout) })
	s.mu.Unlock()

	go func() {
		err := s.reload(ctx)
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		s.settle(flight, err)
	}()
}

// settle closes the flight. Only the first result for a flight counts.
func (s *Scheduler) settle(flight uint64, err error) {
	s.mu.Lock()
	if s.state != InFlight || flight != s.flight {
		s.mu.Unlock()
		return
	}
	s.limit.Stop()
	s.cancel()
	s.cancel = nil
	if err != nil {
		s.stats.Failures++
		if errors.Is(err, ErrReloadTimeout) {
			s.stats.Timeouts++
		}
	}
	if s.queued {
		s.queued = false
		s.state = Pending
		s.arm()
	} else {
		s.state = Idle
	}
	attempt := s.stats.Reloads
	s.mu.Unlock()

	if err == nil {
		return
	}
	failure := fmt.Errorf("%w: %w", domain.ErrReconciliation, err)
	s.opts.Logger.WithFields(log.Fields{"attempt": attempt, "error": err.Error()}).Error("board reconciliation failed")
	if s.opts.OnFailure != nil {
		s.opts.OnFailure(failure)
	}
}
