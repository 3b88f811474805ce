package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"ytcollector/internal/logger"
)

// ProcessFunc handles one channel job delivery.
type ProcessFunc func(ctx context.Context, jobID, runID int64)

// FinalizeFunc handles one finalizer attempt.
type FinalizeFunc func(ctx context.Context, runID int64)

// Local is an in-process Enqueuer backed by an ants goroutine pool. It
// serves embedded/single-process deployments and end-to-end tests, where a
// Redis broker would be overkill. Handlers run asynchronously, like broker
// deliveries, but without durability.
type Local struct {
	pool       *ants.Pool
	wg         sync.WaitGroup
	baseCtx    context.Context
	cancel     context.CancelFunc
	log        logger.Logger
	processFn  ProcessFunc
	finalizeFn FinalizeFunc
}

// NewLocal builds a Local queue running at most size handlers concurrently.
// Handlers must be registered with SetHandlers before the first enqueue.
func NewLocal(size int, log logger.Logger) (*Local, error) {
	if log == nil {
		log = logger.Nop()
	}
	pool, err := ants.NewPool(size,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p interface{}) {
			log.Error("local queue handler panicked", logger.F("panic", fmt.Sprint(p)))
		}))
	if err != nil {
		return nil, fmt.Errorf("queue: local pool: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Local{pool: pool, baseCtx: ctx, cancel: cancel, log: log}, nil
}

// SetHandlers registers the delivery targets.
func (l *Local) SetHandlers(process ProcessFunc, finalize FinalizeFunc) {
	l.processFn = process
	l.finalizeFn = finalize
}

func (l *Local) EnqueueProcessChannelJob(_ context.Context, jobID, runID int64) error {
	if l.processFn == nil {
		return fmt.Errorf("queue: no process handler registered")
	}
	if err := l.submit(func() { l.processFn(l.baseCtx, jobID, runID) }); err != nil {
		return fmt.Errorf("queue: submit job %d: %w", jobID, err)
	}
	return nil
}

func (l *Local) EnqueueFinalizeRun(_ context.Context, runID int64) error {
	if l.finalizeFn == nil {
		return fmt.Errorf("queue: no finalize handler registered")
	}
	if err := l.submit(func() { l.finalizeFn(l.baseCtx, runID) }); err != nil {
		return fmt.Errorf("queue: submit finalize for run %d: %w", runID, err)
	}
	return nil
}

// submit tracks fn on the wait group and hands it to the pool. Handlers
// enqueue follow-up work while still occupying a worker, so a saturated
// pool must not block: overflow runs on its own goroutine.
func (l *Local) submit(fn func()) error {
	l.wg.Add(1)
	run := func() {
		defer l.wg.Done()
		fn()
	}
	if err := l.pool.Submit(run); err != nil {
		if errors.Is(err, ants.ErrPoolOverload) {
			go run()
			return nil
		}
		l.wg.Done()
		return err
	}
	return nil
}

// Wait blocks until every submitted delivery, including ones enqueued by
// running handlers, has completed.
func (l *Local) Wait() { l.wg.Wait() }

// Close drains the pool and stops accepting work.
func (l *Local) Close() {
	l.wg.Wait()
	l.cancel()
	l.pool.Release()
}
