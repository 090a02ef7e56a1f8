// Package pool runs jobs on a fixed set of worker goroutines.
//
// A WorkerPool spawns all of its workers when it is created. Workers pull
// jobs from one shared queue.Queue in FIFO order, so idle workers pick up
// the next job without a dispatcher. Stop sends one queue.Terminate per
// worker and then waits for each worker, in id order, to exit. Jobs that
// are already running or queued ahead of the terminate messages finish
// first.
//
// Once Stop has started, Execute and AddWork return ErrWorkerPoolClosed.
// A nil return from either means the job will run before its worker exits.
package pool

import "github.com/jirevwe/litepool/queue"

type Pool interface {
	// Execute queues job to run on one of the workers and returns immediately.
	// It is only valid before Stop() has been called.
	Execute(queue.Job) error

	// AddWork queues a task for the worker pool to process. Errors returned
	// from the task are handed to its OnFailure method on the worker.
	AddWork(Task) error

	// Stop waits for every worker to finish its current job and exit.
	// Calls after the first return the first call's result.
	Stop() error
}
