package outcomes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/arbiter/internal/validation"
)

// Queue is a FIFO of encoded events stored in a Redis list. Producers LPUSH
// and the worker BRPOPs, so the oldest event is served first.
type Queue struct {
	client redis.UniversalClient
	key    string
}

// NewQueue builds a queue over the list stored at key.
func NewQueue(client redis.UniversalClient, key string) *Queue {
	validation.AssertNotNil(client, "redis client")
	return &Queue{client: client, key: key}
}

// Key returns the Redis key of the list.
func (q *Queue) Key() string {
	return q.key
}

// Enqueue pushes an advance-created event.
func (q *Queue) Enqueue(ctx context.Context, runID, outcomeID string) error {
	msg, err := EncodeMessage(runID, outcomeID)
	if err != nil {
		return err
	}
	return q.push(ctx, msg)
}

func (q *Queue) push(ctx context.Context, msg string) error {
	if err := q.client.LPush(ctx, q.key, msg).Err(); err != nil {
		return fmt.Errorf("failed to enqueue outcome message: %w", err)
	}
	return nil
}

// Pop blocks up to timeout for the next raw message. ok is false when the
// timeout elapsed with an empty queue.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (msg string, ok bool, err error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to pop outcome message: %w", err)
	}
	// BRPOP replies with [key, value].
	if len(res) != 2 {
		return "", false, fmt.Errorf("unexpected BRPOP reply length %d", len(res))
	}
	return res[1], true, nil
}

// Len returns the number of queued messages.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
