package pool

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/jirevwe/litepool/queue"
)

var (
	ErrWorkerPoolClosed = errors.New("worker pool is not active")
	ErrInvalidSize      = errors.New("worker pool size must be greater than zero")
	ErrNilJob           = errors.New("job must not be nil")
	ErrWorkerPanicked   = errors.New("job panicked")
)

type WorkerPool struct {
	// shared queue the workers consume from
	queue *queue.Queue

	// ordered by worker id
	workers []*Worker

	// ensure the pool can only be stopped once
	stop    sync.Once
	stopErr error

	// guards closed; Execute holds it for reading across the check and the
	// send, so no job is queued behind the terminate messages
	mu     sync.RWMutex
	closed bool

	log     *slog.Logger
	metrics *Metrics
}

// New creates a WorkerPool and starts its workers before returning.
// A nil log writes text to stdout; a nil metrics disables instrumentation.
func New(size int, log *slog.Logger, metrics *Metrics) (*WorkerPool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}

	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}

	p := &WorkerPool{
		queue:   queue.New(),
		workers: make([]*Worker, size),
		log:     log,
		metrics: metrics,
	}

	p.log.Info(fmt.Sprintf("starting worker pool with %d workers", size))
	for i := range p.workers {
		w := NewWorker(i, p.queue.Receiver(), p.log, p.metrics)
		p.workers[i] = w
		go w.Start()
	}
	p.metrics.setWorkers(size)

	return p, nil
}

// MustNew is like New but panics if size is not positive.
func MustNew(size int, log *slog.Logger, metrics *Metrics) *WorkerPool {
	p, err := New(size, log, metrics)
	if err != nil {
		panic(err)
	}
	return p
}

// Execute queues job and returns without waiting for it to run.
func (p *WorkerPool) Execute(job queue.Job) error {
	if job == nil {
		return ErrNilJob
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrWorkerPoolClosed
	}

	if err := p.queue.Send(queue.NewJob{Job: job}); err != nil {
		return fmt.Errorf("%w: %w", ErrWorkerPoolClosed, err)
	}

	p.metrics.jobSubmitted()
	return nil
}

// AddWork queues t. A non-nil error from t.Execute is passed to t.OnFailure
// on the worker that ran it.
func (p *WorkerPool) AddWork(t Task) error {
	if t == nil {
		return ErrNilJob
	}
	if f, ok := t.(TaskFunc); ok && f.Run == nil {
		return ErrNilJob
	}

	return p.Execute(func() {
		if err := t.Execute(); err != nil {
			p.metrics.taskFailed()
			t.OnFailure(err)
		}
	})
}

func (p *WorkerPool) Stop() error {
	p.stop.Do(func() {
		p.mu.Lock()
		p.closed = true

		p.log.Info("sending terminate message to all workers")
		for range p.workers {
			if err := p.queue.Send(queue.Terminate{}); err != nil {
				// every worker has already exited
				p.log.Warn(fmt.Sprintf("could not send terminate message: %s", err))
				break
			}
		}
		p.mu.Unlock()

		p.log.Info("shutting down all workers")
		errs := make([]error, 0, len(p.workers))
		for _, w := range p.workers {
			p.log.Info(fmt.Sprintf("shutting down worker %d", w.id))
			errs = append(errs, w.join())
		}
		p.metrics.setWorkers(0)

		p.stopErr = errors.Join(errs...)
		p.log.Info("worker pool has been stopped")
	})
	return p.stopErr
}

// Size returns the number of workers the pool was created with.
func (p *WorkerPool) Size() int {
	return len(p.workers)
}

// Pending returns the number of messages not yet picked up by a worker.
func (p *WorkerPool) Pending() int {
	return p.queue.Len()
}
