package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aiwf/engine/common/logger"
)

const (
	streamPrefix  = "wf.q."
	consumerGroup = "workers"
	readBlock     = 5 * time.Second
	claimMinIdle  = 30 * time.Second
)

// RedisStreamQueue implements Queue on Redis Streams with consumer groups.
// Unacknowledged messages are reclaimed with XAUTOCLAIM, which gives
// at-least-once delivery with crash recovery. Redelivery is bounded by
// maxRetries and messages older than maxAge are dropped.
type RedisStreamQueue struct {
	redis      *redis.Client
	log        *logger.Logger
	maxRetries int
	maxAge     time.Duration
}

// NewRedisStreamQueue creates a Redis Streams backed queue.
func NewRedisStreamQueue(client *redis.Client, log *logger.Logger, maxRetries int, maxAge time.Duration) *RedisStreamQueue {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &RedisStreamQueue{
		redis:      client,
		log:        log,
		maxRetries: maxRetries,
		maxAge:     maxAge,
	}
}

func streamName(queueName string) string {
	return streamPrefix + queueName
}

// Publish appends a message to the queue's stream.
func (q *RedisStreamQueue) Publish(ctx context.Context, queueName string, body []byte) error {
	err := q.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName(queueName),
		Values: map[string]any{
			"body":        string(body),
			"enqueued_at": time.Now().UnixMilli(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to queue %s: %w", queueName, err)
	}
	return nil
}

// Subscribe starts concurrency consumer goroutines reading from the
// queue's stream via a shared consumer group.
func (q *RedisStreamQueue) Subscribe(ctx context.Context, queueName string, concurrency int, h Handler) error {
	stream := streamName(queueName)

	err := q.redis.XGroupCreateMkStream(ctx, stream, consumerGroup, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("failed to create consumer group for %s: %w", queueName, err)
	}

	if concurrency < 1 {
		concurrency = 1
	}
	for i := 0; i < concurrency; i++ {
		consumerName := fmt.Sprintf("%s_worker_%s", queueName, uuid.New().String()[:8])
		go q.consumeLoop(ctx, queueName, stream, consumerName, h)
	}

	return nil
}

func (q *RedisStreamQueue) consumeLoop(ctx context.Context, queueName, stream, consumer string, h Handler) {
	q.log.Info("queue consumer starting", "queue", queueName, "consumer", consumer)

	for {
		select {
		case <-ctx.Done():
			q.log.Info("queue consumer stopping", "queue", queueName, "consumer", consumer)
			return
		default:
			if err := q.processNext(ctx, queueName, stream, consumer, h); err != nil && ctx.Err() == nil {
				q.log.Error("failed to process message", "queue", queueName, "error", err)
				time.Sleep(1 * time.Second) // Back off on error
			}
		}
	}
}

// processNext handles one message: reclaimed pending messages take priority
// over fresh reads so crashed deliveries are retried promptly.
func (q *RedisStreamQueue) processNext(ctx context.Context, queueName, stream, consumer string, h Handler) error {
	msg, attempts, ok, err := q.claimPending(ctx, stream, consumer)
	if err != nil {
		return err
	}
	if !ok {
		msg, ok, err = q.readFresh(ctx, stream, consumer)
		if err != nil || !ok {
			return err
		}
		attempts = 1
	}

	return q.handleMessage(ctx, queueName, stream, msg, attempts, h)
}

// claimPending picks up a message another consumer read but never acked.
func (q *RedisStreamQueue) claimPending(ctx context.Context, stream, consumer string) (redis.XMessage, int, bool, error) {
	msgs, _, err := q.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    consumerGroup,
		Consumer: consumer,
		MinIdle:  claimMinIdle,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil && err != redis.Nil {
		return redis.XMessage{}, 0, false, fmt.Errorf("XAUTOCLAIM error: %w", err)
	}
	if len(msgs) == 0 {
		return redis.XMessage{}, 0, false, nil
	}

	msg := msgs[0]
	attempts := 2
	pending, err := q.redis.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  consumerGroup,
		Start:  msg.ID,
		End:    msg.ID,
		Count:  1,
	}).Result()
	if err == nil && len(pending) == 1 {
		attempts = int(pending[0].RetryCount)
	}

	return msg, attempts, true, nil
}

func (q *RedisStreamQueue) readFresh(ctx context.Context, stream, consumer string) (redis.XMessage, bool, error) {
	streams, err := q.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    consumerGroup,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    1,
		Block:    readBlock,
	}).Result()
	if err == redis.Nil {
		return redis.XMessage{}, false, nil
	}
	if err != nil {
		return redis.XMessage{}, false, fmt.Errorf("XREADGROUP error: %w", err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return redis.XMessage{}, false, nil
	}
	return streams[0].Messages[0], true, nil
}

func (q *RedisStreamQueue) handleMessage(ctx context.Context, queueName, stream string, msg redis.XMessage, attempts int, h Handler) error {
	body, ok := msg.Values["body"].(string)
	if !ok {
		q.log.Error("message missing body field", "queue", queueName, "message_id", msg.ID)
		return q.ack(ctx, stream, msg.ID)
	}

	if q.expired(msg) {
		q.log.Warn("dropping expired message",
			"queue", queueName,
			"message_id", msg.ID,
			"max_age", q.maxAge)
		return q.ack(ctx, stream, msg.ID)
	}

	d := Delivery{
		Body:        []byte(body),
		Attempts:    attempts,
		MaxAttempts: q.maxRetries,
	}

	if err := h(ctx, d); err != nil {
		if d.Final() {
			q.log.Error("dropping message after retries exhausted",
				"queue", queueName,
				"message_id", msg.ID,
				"attempts", attempts,
				"error", err)
			return q.ack(ctx, stream, msg.ID)
		}
		q.log.Warn("message handler failed, leaving pending for redelivery",
			"queue", queueName,
			"message_id", msg.ID,
			"attempts", attempts,
			"error", err)
		return nil
	}

	return q.ack(ctx, stream, msg.ID)
}

func (q *RedisStreamQueue) expired(msg redis.XMessage) bool {
	if q.maxAge <= 0 {
		return false
	}
	raw, ok := msg.Values["enqueued_at"].(string)
	if !ok {
		return false
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	return time.Since(time.UnixMilli(millis)) > q.maxAge
}

func (q *RedisStreamQueue) ack(ctx context.Context, stream, msgID string) error {
	if err := q.redis.XAck(ctx, stream, consumerGroup, msgID).Err(); err != nil {
		return fmt.Errorf("failed to ACK message %s: %w", msgID, err)
	}
	return nil
}

// Close is a no-op; the underlying Redis client is owned by the caller.
func (q *RedisStreamQueue) Close() error {
	return nil
}
