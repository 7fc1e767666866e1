package pipeline

import (
	"context"
	"time"

	"github.com/logflow-dev/logflow/internal/config"
	"github.com/logflow-dev/logflow/internal/model"
	"github.com/logflow-dev/logflow/internal/plugin"
)

// runBatcher accumulates processed events into batches and fans every
// completed batch out to each sink queue.
//
// A batch is emitted when it holds batch_size events or when batch_timeout
// has elapsed since its first event was accepted, whichever first. An empty
// timeout tick never emits. When the out queue closes, the final partial
// batch is flushed and the sink queues are closed.
func (p *Pipeline) runBatcher(ctx context.Context) {
	var (
		batch model.Batch
		timer = time.NewTimer(p.cfg.BatchTimeout.Std())
	)
	defer timer.Stop()

	// Park the timer until a first event arrives.
	if !timer.Stop() {
		<-timer.C
	}

	flush := func() {
		if len(batch) == 0 {
			return
		}
		p.dispatch(ctx, batch)
		batch = nil
	}

	defer func() {
		for _, ms := range p.sinks {
			close(ms.queue)
		}
	}()

	for {
		select {
		case ev, ok := <-p.outCh:
			if !ok {
				flush()
				return
			}

			if len(batch) == 0 {
				timer.Reset(p.cfg.BatchTimeout.Std())
			}
			batch = append(batch, ev)

			if len(batch) >= p.cfg.BatchSize {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				flush()
			}

		case <-timer.C:
			flush()

		case <-ctx.Done():
			flush()
			return
		}
	}
}

// dispatch offers one completed batch to every sink queue, applying the
// configured overflow policy per sink. The batch instance is shared
// read-only between sinks.
func (p *Pipeline) dispatch(ctx context.Context, batch model.Batch) {
	p.metrics.eventsProcessed.Add(uint64(len(batch)))

	for _, ms := range p.sinks {
		switch p.cfg.OverflowPolicy {
		case config.OverflowDropNew:
			select {
			case ms.queue <- batch:
			default:
				p.metrics.eventsDropped.Add(uint64(len(batch)))
			}

		case config.OverflowDropOldest:
			for {
				select {
				case ms.queue <- batch:
				default:
					select {
					case old := <-ms.queue:
						p.metrics.eventsDropped.Add(uint64(len(old)))
						continue
					default:
						// Raced with the sink draining; try again.
						continue
					}
				}
				break
			}

		default: // block
			select {
			case ms.queue <- batch:
			case <-ctx.Done():
				return
			}
		}
	}
}

// runSink drains one sink's queue, delivering batches in dispatch order.
func (p *Pipeline) runSink(ctx context.Context, ms *managedSink) {
	for batch := range ms.queue {
		p.writeWithRetry(ctx, ms, batch)
	}
}

// writeWithRetry delivers one batch with bounded exponential backoff.
// Retryable failures are retried up to the policy's attempt budget and the
// batch is then dropped; a fatal failure fails the whole pipeline.
func (p *Pipeline) writeWithRetry(ctx context.Context, ms *managedSink, batch model.Batch) {
	for attempt := 1; attempt <= p.retry.MaxAttempts; attempt++ {
		writeCtx, cancel := context.WithTimeout(ctx, p.cfg.WriteTimeout.Std())
		err := ms.sink.Write(writeCtx, batch)
		cancel()

		if err == nil {
			return
		}

		ms.writeErrors.Add(1)

		if plugin.IsFatal(err) {
			p.fail("sink " + ms.sink.Name() + ": " + err.Error())
			return
		}
		if ctx.Err() != nil {
			p.metrics.eventsDropped.Add(uint64(len(batch)))
			return
		}

		p.log.Warningf("sink %q write failed (attempt %d/%d): %v",
			ms.sink.Name(), attempt, p.retry.MaxAttempts, err)

		if attempt < p.retry.MaxAttempts {
			select {
			case <-time.After(p.retry.Delay(attempt)):
			case <-ctx.Done():
				p.metrics.eventsDropped.Add(uint64(len(batch)))
				return
			}
		}
	}

	p.metrics.eventsDropped.Add(uint64(len(batch)))
	p.log.Errorf("sink %q: dropping batch of %d events after %d attempts",
		ms.sink.Name(), len(batch), p.retry.MaxAttempts)
}
