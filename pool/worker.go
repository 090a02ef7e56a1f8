package pool

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jirevwe/litepool/queue"
)

type Worker struct {
	// the worker id, 0-indexed in creation order
	id int

	// closed when the worker goroutine exits, set to nil once joined
	done chan struct{}

	// handle on the shared queue the worker consumes from
	receiver *queue.Receiver

	// value recovered from a job that panicked on this worker
	panicked any

	log     *slog.Logger
	metrics *Metrics
}

func NewWorker(id int, receiver *queue.Receiver, log *slog.Logger, metrics *Metrics) *Worker {
	return &Worker{
		id:       id,
		done:     make(chan struct{}),
		receiver: receiver,
		log:      log,
		metrics:  metrics,
	}
}

func (w *Worker) ID() int { return w.id }

func (w *Worker) Start() {
	w.log.Info(fmt.Sprintf("starting worker %d", w.id))

	defer func() {
		w.receiver.Release()
		w.log.Info(fmt.Sprintf("worker %d has been stopped", w.id))
		close(w.done)
	}()

	for {
		switch msg := w.receiver.Receive().(type) {
		case queue.NewJob:
			w.log.Debug(fmt.Sprintf("worker %d got a job; executing", w.id))
			if !w.run(msg.Job) {
				return
			}
		case queue.Terminate:
			w.log.Info(fmt.Sprintf("worker %d was told to terminate", w.id))
			return
		}
	}
}

// run executes job and reports whether the worker survived it.
func (w *Worker) run(job queue.Job) (ok bool) {
	start := time.Now()
	w.metrics.jobStarted()

	defer func() {
		if r := recover(); r != nil {
			w.panicked = r
			w.log.Error(fmt.Sprintf("worker %d died executing a job: %v", w.id, r))
			ok = false
		}
		w.metrics.jobFinished(time.Since(start), ok)
	}()

	job()
	return true
}

// join blocks until the worker has exited. Only the first call waits;
// later calls find the handle already taken and return nil.
func (w *Worker) join() error {
	if w.done == nil {
		return nil
	}

	<-w.done
	w.done = nil

	if w.panicked != nil {
		return fmt.Errorf("worker %d: %w: %v", w.id, ErrWorkerPanicked, w.panicked)
	}
	return nil
}
