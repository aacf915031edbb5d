package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"taskboard/domain"
)

// ActivityQueue carries activity append requests from the board API to the
// activity updater.
type ActivityQueue struct {
	queue *azqueue.QueueClient
}

// Message is one dequeued activity request.
type Message struct {
	ID           string
	PopReceipt   string
	DequeueCount int64
	Request      domain.ActivityRequest
	// Err is set when the message text could not be decoded.
	Err error
}

func NewActivityQueue(connStr, name string) (*ActivityQueue, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Minute,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, &opts)
	if err != nil {
		return nil, err
	}
	return &ActivityQueue{queue: q}, nil
}

func (q *ActivityQueue) Enqueue(ctx context.Context, req domain.ActivityRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	_, err = q.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}

// Dequeue retrieves a single message, or nil when the queue is empty.
func (q *ActivityQueue) Dequeue(ctx context.Context) (*Message, error) {
	resp, err := q.queue.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	m := resp.Messages[0]
	if m.MessageID == nil || m.PopReceipt == nil {
		return nil, errors.New("dequeued message without id or receipt")
	}
	msg := &Message{ID: *m.MessageID, PopReceipt: *m.PopReceipt}
	if m.DequeueCount != nil {
		msg.DequeueCount = *m.DequeueCount
	}
	if m.MessageText == nil {
		msg.Err = errors.New("empty message")
		return msg, nil
	}
	msg.Err = json.Unmarshal([]byte(*m.MessageText), &msg.Request)
	return msg, nil
}

// Delete removes a processed message from the queue.
func (q *ActivityQueue) Delete(ctx context.Context, msg *Message) error {
	_, err := q.queue.DeleteMessage(ctx, msg.ID, msg.PopReceipt, nil)
	return err
}
