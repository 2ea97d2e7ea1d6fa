package replay

import (
	"context"
	"log/slog"
	"time"

	"github.com/dogmatiq/batchlog/internal/fsm"
	"github.com/dogmatiq/batchlog/internal/messaging"
	"github.com/dogmatiq/batchlog/internal/signaling"
)

// DefaultInterval is the default delay between scheduled replay cycles.
const DefaultInterval = 60 * time.Second

// A Replayer runs replay cycles on a schedule and on demand.
//
// All cycles execute on the replayer's own goroutine, so at most one cycle is
// ever in progress. Ticks that would fire while a cycle is running are
// inherently coalesced, and on-demand requests queue until the running cycle
// completes.
type Replayer struct {
	// Engine performs the replay cycles.
	Engine *Engine

	// Interval is the delay between scheduled cycles. If it is non-positive,
	// DefaultInterval is used.
	Interval time.Duration

	// ReplayQueue is a queue of requests for an on-demand cycle. On-demand
	// cycles flush the journal first; scheduled cycles do not.
	ReplayQueue *messaging.ExchangeQueue[messaging.None, Result]

	// Shutdown signals the replayer to stop when it next becomes idle.
	Shutdown *signaling.Latch
}

// Run starts the replayer.
//
// It runs until ctx is canceled or the Shutdown latch is signaled.
func (r *Replayer) Run(ctx context.Context) error {
	return fsm.Start(ctx, r.idleState)
}

// idleState waits for the next scheduled tick or an on-demand request.
func (r *Replayer) idleState(ctx context.Context) fsm.Action {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fsm.Fail(ctx.Err())

	case <-r.Shutdown.Signaled():
		return fsm.Stop()

	case <-timer.C:
		return fsm.EnterState(r.scanState)

	case ex := <-r.ReplayQueue.Recv():
		return fsm.With(ex).EnterState(r.forcedScanState)
	}
}

// scanState runs a scheduled replay cycle.
//
// A store failure is logged and the replayer returns to idle; the next tick
// retries.
func (r *Replayer) scanState(ctx context.Context) fsm.Action {
	if _, err := r.Engine.Cycle(ctx, false); err != nil {
		if ctx.Err() != nil {
			return fsm.Fail(ctx.Err())
		}

		r.Engine.Logger.ErrorContext(
			ctx,
			"scheduled batch replay failed",
			slog.Any("error", err),
		)
	}

	return fsm.EnterState(r.idleState)
}

// forcedScanState runs an on-demand replay cycle with a forced flush and
// reports the outcome to the requester.
//
// The cycle runs under the replayer's context, not the requester's, so an
// impatient caller cannot abort a cycle that is already making progress.
func (r *Replayer) forcedScanState(
	ctx context.Context,
	ex messaging.Exchange[messaging.None, Result],
) fsm.Action {
	res, err := r.Engine.Cycle(ctx, true)
	if err != nil {
		ex.Err(err)

		if ctx.Err() != nil {
			return fsm.Fail(ctx.Err())
		}

		return fsm.EnterState(r.idleState)
	}

	ex.Ok(res)

	return fsm.EnterState(r.idleState)
}
