package queue

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Memory is an in-process queue for single-binary deployments and tests.
// Publish never blocks: when the buffer is full the hint is dropped and the
// due-row sweep picks the message up instead.
type Memory struct {
	mu     sync.RWMutex
	ch     chan Job
	closed bool
}

// NewMemory creates a Memory queue with the given buffer size.
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 1024
	}
	return &Memory{ch: make(chan Job, size)}
}

// Publish enqueues j if there is room.
func (m *Memory) Publish(ctx context.Context, j Job) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	select {
	case m.ch <- j:
	default:
		log.Ctx(ctx).Warn().Str("outbox_id", j.OutboxID).Msg("memory queue full, dropping hint")
	}
	return nil
}

// Consume runs h for each job until ctx is done or the queue is closed.
func (m *Memory) Consume(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j, ok := <-m.ch:
			if !ok {
				return nil
			}
			if err := h(ctx, j); err != nil {
				log.Ctx(ctx).Warn().Err(err).
					Str("workspace_id", j.WorkspaceID).
					Str("outbox_id", j.OutboxID).
					Msg("job handler failed")
			}
		}
	}
}

// Len reports buffered jobs.
func (m *Memory) Len() int { return len(m.ch) }

// Close stops accepting jobs and ends Consume once drained.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.ch)
	}
	return nil
}
