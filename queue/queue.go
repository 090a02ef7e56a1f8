// Package queue implements the unbounded FIFO that carries work from
// submitters to the workers of a pool.
//
// A Queue has one sending side, safe for any number of concurrent senders,
// and any number of Receiver handles that compete for messages. Every
// message is delivered to exactly one receiver, in the order it was sent.
package queue

import (
	"errors"
	"sync"
)

// ErrDisconnected is returned by Send once every receiver has been released.
var ErrDisconnected = errors.New("queue has no receivers")

// Job is a unit of work. It is run once, on whichever worker receives it.
type Job func()

// Message is either a NewJob or a Terminate.
type Message interface {
	message()
}

// NewJob carries one job to a worker.
type NewJob struct {
	Job Job
}

// Terminate tells the worker that receives it to stop.
type Terminate struct{}

func (NewJob) message()    {}
func (Terminate) message() {}

type Queue struct {
	mu    sync.Mutex
	ready *sync.Cond

	// pending messages, oldest first
	items []Message

	// live receiver handles
	receivers int

	// set once the last receiver is released
	disconnected bool
}

func New() *Queue {
	q := &Queue{}
	q.ready = sync.NewCond(&q.mu)
	return q
}

// Send appends msg to the queue. It never blocks on consumers.
func (q *Queue) Send(msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.disconnected {
		return ErrDisconnected
	}

	q.items = append(q.items, msg)
	q.ready.Signal()
	return nil
}

// Len returns the number of messages waiting to be received.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Receiver registers a new receiving handle.
func (q *Queue) Receiver() *Receiver {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.receivers++
	return &Receiver{q: q}
}

func (q *Queue) receive() Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		q.ready.Wait()
	}

	msg := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return msg
}

func (q *Queue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.receivers--
	if q.receivers == 0 {
		q.disconnected = true
		q.items = nil
	}
}

// Receiver is one consumer's handle on a Queue.
type Receiver struct {
	q    *Queue
	once sync.Once
}

// Receive blocks until a message is available and returns it. No other
// receiver will observe the same message.
func (r *Receiver) Receive() Message {
	return r.q.receive()
}

// Release drops the handle. Calling it more than once has no further effect.
func (r *Receiver) Release() {
	r.once.Do(r.q.release)
}
