package storage

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"taskboard/domain"
)

// Publisher announces board changes on the board's Redis topic.
type Publisher struct {
	rc *redis.Client
}

func NewPublisher(rc *redis.Client) *Publisher {
	return &Publisher{rc: rc}
}

func (p *Publisher) Publish(ctx context.Context, ev domain.Event) error {
	data, err := sonic.ConfigStd.Marshal(ev)
	if err != nil {
		return err
	}
	return p.rc.Publish(ctx, domain.BoardTopic(ev.BoardID), data).Err()
}
