package queue

import (
	"context"
	"sync"

	"github.com/aiwf/engine/common/logger"
)

// MemoryQueue is an in-process queue used by tests and single-node
// deployments. It mirrors the broker contract: at-least-once delivery with
// bounded redelivery on handler error.
type MemoryQueue struct {
	topics     map[string]chan *memMessage
	mu         sync.RWMutex
	log        *logger.Logger
	maxRetries int
	wg         sync.WaitGroup
	closed     bool
}

type memMessage struct {
	body     []byte
	attempts int
}

// NewMemoryQueue creates a new in-memory queue. maxRetries bounds
// redeliveries per message.
func NewMemoryQueue(log *logger.Logger, maxRetries int) *MemoryQueue {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &MemoryQueue{
		topics:     make(map[string]chan *memMessage),
		log:        log,
		maxRetries: maxRetries,
	}
}

func (q *MemoryQueue) channel(queueName string) chan *memMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch, exists := q.topics[queueName]
	if !exists {
		ch = make(chan *memMessage, 1024)
		q.topics[queueName] = ch
	}
	return ch
}

// Publish enqueues a message.
func (q *MemoryQueue) Publish(ctx context.Context, queueName string, body []byte) error {
	select {
	case q.channel(queueName) <- &memMessage{body: body, attempts: 0}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe starts concurrency consumer goroutines for the queue.
func (q *MemoryQueue) Subscribe(ctx context.Context, queueName string, concurrency int, h Handler) error {
	if concurrency < 1 {
		concurrency = 1
	}
	ch := q.channel(queueName)

	for i := 0; i < concurrency; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-ch:
					if !ok {
						return
					}
					q.deliver(ctx, queueName, ch, msg, h)
				}
			}
		}()
	}

	return nil
}

func (q *MemoryQueue) deliver(ctx context.Context, queueName string, ch chan *memMessage, msg *memMessage, h Handler) {
	msg.attempts++
	d := Delivery{
		Body:        msg.body,
		Attempts:    msg.attempts,
		MaxAttempts: q.maxRetries,
	}

	if err := h(ctx, d); err != nil {
		if msg.attempts >= q.maxRetries {
			q.log.Error("dropping message after retries exhausted",
				"queue", queueName,
				"attempts", msg.attempts,
				"error", err)
			return
		}
		q.log.Warn("message handler failed, requeueing",
			"queue", queueName,
			"attempts", msg.attempts,
			"error", err)
		select {
		case ch <- msg:
		case <-ctx.Done():
		}
	}
}

// Drain blocks until all subscriber goroutines have stopped. Useful in
// tests after cancelling the subscribe context.
func (q *MemoryQueue) Drain() {
	q.wg.Wait()
}

// Close closes the queue.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	for name, ch := range q.topics {
		close(ch)
		q.log.Debug("closed queue", "queue", name)
	}
	return nil
}
