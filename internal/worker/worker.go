// Package worker runs the background side of delivery: it drains outbox rows
// named by queue notifications, sweeps for due rows the notifications missed,
// requeues rows stuck in processing, and resumes running campaigns.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-wa-inbox/internal/queue"
	"github.com/tbourn/go-wa-inbox/internal/services"
)

// Consumer delivers queue jobs to a handler until ctx ends.
type Consumer interface {
	Consume(ctx context.Context, h queue.Handler) error
}

// Worker ties the dispatcher and campaign service to a notification queue
// and a sweep ticker.
type Worker struct {
	Dispatcher *services.Dispatcher
	Campaigns  *services.Campaigns // optional
	Queue      Consumer            // optional; sweeps alone still deliver

	Interval     time.Duration
	Batch        int
	ReclaimAfter time.Duration
}

// Run blocks until ctx is cancelled. A consumer failure ends Run with that
// error; sweep failures are logged and retried on the next tick.
func (w *Worker) Run(ctx context.Context) error {
	interval := w.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		consErr error
	)
	if w.Queue != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := w.Queue.Consume(ctx, w.HandleJob)
			if err != nil && !errors.Is(err, context.Canceled) {
				consErr = err
				cancel()
			}
		}()
	}

	log.Ctx(ctx).Info().Dur("interval", interval).Int("batch", w.Batch).Msg("worker started")

	t := time.NewTicker(interval)
	defer t.Stop()

	w.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			log.Info().Msg("worker stopped")
			return consErr
		case <-t.C:
			w.Sweep(ctx)
		}
	}
}

// HandleJob drains the outbox row a notification points at. Rows that were
// already claimed or finished are not an error: the hint was stale.
func (w *Worker) HandleJob(ctx context.Context, j queue.Job) error {
	m, err := w.Dispatcher.DrainOne(ctx, j.WorkspaceID, j.OutboxID)
	switch {
	case errors.Is(err, services.ErrAlreadyClaimed), errors.Is(err, services.ErrOutboxNotFound):
		log.Ctx(ctx).Debug().Str("outbox_id", j.OutboxID).Msg("stale outbox hint")
		return nil
	case errors.Is(err, services.ErrProviderSendFailed), errors.Is(err, services.ErrMaxAttemptsExceeded):
		// the attempt is recorded on the row; retries come from the sweep
		log.Ctx(ctx).Warn().Err(err).
			Str("workspace_id", j.WorkspaceID).
			Str("outbox_id", j.OutboxID).
			Msg("outbox send failed")
		return nil
	case err != nil:
		return err
	}
	log.Ctx(ctx).Debug().
		Str("workspace_id", m.WorkspaceID).
		Str("outbox_id", m.ID).
		Str("status", m.Status).
		Msg("outbox row drained")
	return nil
}

// Sweep runs one maintenance pass: reclaim stale claims, drain due rows,
// then resume running campaigns.
func (w *Worker) Sweep(ctx context.Context) {
	l := log.Ctx(ctx)

	if w.ReclaimAfter > 0 {
		if _, err := w.Dispatcher.ReclaimStale(ctx, w.ReclaimAfter); err != nil {
			l.Error().Err(err).Msg("reclaim stale outbox rows")
		}
	}

	batch := w.Batch
	if batch <= 0 {
		batch = 100
	}
	st, err := w.Dispatcher.DrainDue(ctx, batch)
	if err != nil {
		l.Error().Err(err).Msg("drain due outbox rows")
	} else if st.Due > 0 {
		l.Info().Int("due", st.Due).Int("sent", st.Sent).Int("retried", st.Retried).
			Int("failed", st.Failed).Int("skipped", st.Skipped).Msg("drain pass")
	}

	if w.Campaigns != nil {
		n, err := w.Campaigns.ResumeRunning(ctx, batch)
		if err != nil {
			l.Error().Err(err).Msg("resume running campaigns")
		} else if n > 0 {
			l.Info().Int("enqueued", n).Msg("resumed campaign recipients")
		}
	}
}
