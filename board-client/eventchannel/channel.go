// Package eventchannel implements the board event channel on Redis pub/sub.
//
// Joining a board subscribes to its topic and records presence. Messages on
// the topic are domain.Event values; handlers registered with On receive
// those whose name matches.
package eventchannel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard/board-client/livebridge"
	"taskboard/domain"
)

const (
	DefaultPresenceTTL = time.Hour
	reconnectDelay     = time.Second
)

// PresenceKey is the set of members currently viewing a board.
func PresenceKey(boardID string) string {
	return domain.BoardTopic(boardID) + ":members"
}

type Channel struct {
	rc          *redis.Client
	logger      log.FieldLogger
	presenceTTL time.Duration

	mu       sync.Mutex
	handlers map[string]map[uint64]livebridge.Handler
	nextID   uint64
	boards   map[string]*boardSub
	wg       sync.WaitGroup
}

type boardSub struct {
	refs   int
	cancel context.CancelFunc
}

func New(rc *redis.Client, logger log.FieldLogger) *Channel {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Channel{
		rc:          rc,
		logger:      logger,
		presenceTTL: DefaultPresenceTTL,
		handlers:    map[string]map[uint64]livebridge.Handler{},
		boards:      map[string]*boardSub{},
	}
}

// Emit handles joinBoard and leaveBoard locally and publishes any other
// event on the board topic. payload is a domain.JoinPayload for the first
// two and a domain.Event otherwise.
func (c *Channel) Emit(ctx context.Context, event string, payload any) error {
	switch event {
	case domain.EventJoinBoard:
		p, ok := payload.(domain.JoinPayload)
		if !ok {
			return fmt.Errorf("%s: unexpected payload %T", event, payload)
		}
		return c.join(ctx, p)
	case domain.EventLeaveBoard:
		p, ok := payload.(domain.JoinPayload)
		if !ok {
			return fmt.Errorf("%s: unexpected payload %T", event, payload)
		}
		return c.leave(ctx, p)
	}
	ev, ok := payload.(domain.Event)
	if !ok {
		return fmt.Errorf("%s: unexpected payload %T", event, payload)
	}
	ev.Name = event
	return Publish(ctx, c.rc, ev)
}

// Publish sends a change signal to every client watching the board.
func Publish(ctx context.Context, rc *redis.Client, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return rc.Publish(ctx, domain.BoardTopic(ev.BoardID), data).Err()
}

func (c *Channel) On(event string, h livebridge.Handler) (uint64, error) {
	if h == nil {
		return 0, fmt.Errorf("nil handler for %s", event)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	if c.handlers[event] == nil {
		c.handlers[event] = map[uint64]livebridge.Handler{}
	}
	c.handlers[event][c.nextID] = h
	return c.nextID, nil
}

func (c *Channel) Off(event string, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers[event], id)
	if len(c.handlers[event]) == 0 {
		delete(c.handlers, event)
	}
}

// Members returns the ids of members present on a board.
func (c *Channel) Members(ctx context.Context, boardID string) ([]string, error) {
	return c.rc.SMembers(ctx, PresenceKey(boardID)).Result()
}

// Close stops every board subscription and waits for the read loops.
func (c *Channel) Close() {
	c.mu.Lock()
	for id, sub := range c.boards {
		sub.cancel()
		delete(c.boards, id)
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Channel) join(ctx context.Context, p domain.JoinPayload) error {
	if p.User != nil {
		key := PresenceKey(p.BoardID)
		pipe := c.rc.TxPipeline()
		pipe.SAdd(ctx, key, p.User.ID)
		pipe.Expire(ctx, key, c.presenceTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("record presence: %w", err)
		}
	}

	c.mu.Lock()
	if sub, ok := c.boards[p.BoardID]; ok {
		sub.refs++
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	loopCtx, cancel := context.WithCancel(context.Background())
	ps := c.rc.Subscribe(loopCtx, domain.BoardTopic(p.BoardID))
	if _, err := ps.Receive(ctx); err != nil {
		cancel()
		_ = ps.Close()
		return fmt.Errorf("subscribe %s: %w", domain.BoardTopic(p.BoardID), err)
	}

	c.mu.Lock()
	if sub, ok := c.boards[p.BoardID]; ok {
		// lost a race with a concurrent join
		sub.refs++
		c.mu.Unlock()
		cancel()
		_ = ps.Close()
		return nil
	}
	c.boards[p.BoardID] = &boardSub{refs: 1, cancel: cancel}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.readLoop(loopCtx, p.BoardID, ps)
	}()
	return nil
}

func (c *Channel) leave(ctx context.Context, p domain.JoinPayload) error {
	c.mu.Lock()
	if sub, ok := c.boards[p.BoardID]; ok {
		sub.refs--
		if sub.refs <= 0 {
			sub.cancel()
			delete(c.boards, p.BoardID)
		}
	}
	c.mu.Unlock()
	if p.User == nil {
		return nil
	}
	return c.rc.SRem(ctx, PresenceKey(p.BoardID), p.User.ID).Err()
}

// readLoop dispatches topic messages until ctx ends, resubscribing when the
// pub/sub channel closes underneath it.
func (c *Channel) readLoop(ctx context.Context, boardID string, ps *redis.PubSub) {
	logger := c.logger.WithField("board", boardID)
	topic := domain.BoardTopic(boardID)
	for {
		ch := ps.Channel()
	read:
		for {
			select {
			case <-ctx.Done():
				_ = ps.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break read
				}
				var ev domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Errorf("unable to parse board event: %v", err)
					continue
				}
				if ev.BoardID == "" {
					ev.BoardID = boardID
				}
				c.dispatch(ev)
			}
		}
		_ = ps.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("pubsub channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
		ps = c.rc.Subscribe(ctx, topic)
	}
}

func (c *Channel) dispatch(ev domain.Event) {
	c.mu.Lock()
	hs := make([]livebridge.Handler, 0, len(c.handlers[ev.Name]))
	for _, h := range c.handlers[ev.Name] {
		hs = append(hs, h)
	}
	c.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}
