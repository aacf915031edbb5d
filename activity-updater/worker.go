package main

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard/board-api/storage"
	"taskboard/domain"
)

// maxDequeueCount is how often a failing message is retried before it is
// dropped.
const maxDequeueCount = 5

type activityQueue interface {
	Dequeue(ctx context.Context) (*storage.Message, error)
	Delete(ctx context.Context, msg *storage.Message) error
}

type activityRecorder interface {
	RecordActivity(ctx context.Context, req domain.ActivityRequest) (bool, error)
}

// processMessage records one activity and reports whether the message is
// done with and may be deleted.
func processMessage(ctx context.Context, rec activityRecorder, msg *storage.Message) bool {
	logger := log.WithFields(log.Fields{"message": msg.ID, "dequeue_count": msg.DequeueCount})
	if msg.Err != nil {
		logger.WithError(msg.Err).Error("undecodable activity message")
		return true
	}
	logger = logger.WithFields(log.Fields{"board": msg.Request.BoardID, "verb": msg.Request.Verb})
	recorded, err := rec.RecordActivity(ctx, msg.Request)
	switch {
	case err == nil:
		if recorded {
			logger.Debug("activity recorded")
		}
		return true
	case errors.Is(err, domain.ErrNotFound):
		logger.WithError(err).Warn("activity for missing board dropped")
		return true
	case msg.DequeueCount >= maxDequeueCount:
		logger.WithError(err).Error("activity dropped after repeated failures")
		return true
	default:
		logger.WithError(err).Warn("activity not recorded, will retry")
		return false
	}
}

// run drains the queue until ctx is done. An empty queue or a receive error
// backs off for idle.
func run(ctx context.Context, q activityQueue, rec activityRecorder, idle time.Duration) {
	for ctx.Err() == nil {
		msg, err := q.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Error("receive")
			sleep(ctx, idle)
			continue
		}
		if msg == nil {
			sleep(ctx, idle)
			continue
		}
		if !processMessage(ctx, rec, msg) {
			continue
		}
		if err := q.Delete(ctx, msg); err != nil {
			log.WithError(err).WithField("message", msg.ID).Error("delete message")
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
