package pool

import (
	"errors"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var slogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

var _ Pool = (*WorkerPool)(nil)

type TestTask struct {
	executeFunc    func() error
	wg             *sync.WaitGroup
	mFailure       *sync.Mutex
	failureHandled bool
}

func NewTestTask(executeFunc func() error, wg *sync.WaitGroup) *TestTask {
	return &TestTask{
		executeFunc: executeFunc,
		wg:          wg,
		mFailure:    &sync.Mutex{},
	}
}

func (t *TestTask) Execute() error {
	if t.wg != nil {
		defer t.wg.Done()
	}

	if t.executeFunc != nil {
		return t.executeFunc()
	}

	return nil
}

func (t *TestTask) OnFailure(e error) {
	t.mFailure.Lock()
	defer t.mFailure.Unlock()

	t.failureHandled = true
}

func (t *TestTask) hitFailureCase() bool {
	t.mFailure.Lock()
	defer t.mFailure.Unlock()

	return t.failureHandled
}

type counterTest struct {
	count int
	mu    *sync.Mutex
}

func NewCounterTest() *counterTest {
	return &counterTest{
		count: 0,
		mu:    &sync.Mutex{},
	}
}

func (c *counterTest) Inc() error {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
	return nil
}

func (c *counterTest) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func TestWorkerPool_ZeroSizeFails(t *testing.T) {
	before := runtime.NumGoroutine()
	p, err := New(0, slogger, nil)
	require.ErrorIs(t, err, ErrInvalidSize)
	require.Nil(t, p)
	require.LessOrEqual(t, runtime.NumGoroutine(), before)

	_, err = New(-3, slogger, nil)
	require.ErrorIs(t, err, ErrInvalidSize)

	require.Panics(t, func() {
		MustNew(0, slogger, nil)
	})
}

func TestWorkerPool_MultipleStopDontPanic(t *testing.T) {
	p, err := New(5, slogger, nil)
	require.NoError(t, err)
	require.Equal(t, 5, p.Size())

	// We're just checking to make sure multiple
	// calls to stop don't cause a panic
	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())
}

func TestWorkerPool_Work(t *testing.T) {
	var tasks []*TestTask
	wg := &sync.WaitGroup{}
	c := NewCounterTest()

	for i := 0; i < 20; i++ {
		wg.Add(1)
		tasks = append(tasks, NewTestTask(c.Inc, wg))
	}

	p := MustNew(5, slogger, nil)
	defer p.Stop()

	for _, j := range tasks {
		require.NoError(t, p.AddWork(j))
	}

	// we'll get a timeout failure if the tasks weren't processed
	wg.Wait()

	for taskNum, task := range tasks {
		if task.hitFailureCase() {
			t.Fatalf("error function called on task %d when it shouldn't be", taskNum)
		}
	}
	require.Equal(t, 20, c.Value())
}

func TestWorkerPool_TaskFailureCallsOnFailure(t *testing.T) {
	wg := &sync.WaitGroup{}
	wg.Add(1)
	task := NewTestTask(func() error { return errors.New("boom") }, wg)

	p := MustNew(1, slogger, nil)
	require.NoError(t, p.AddWork(task))
	require.NoError(t, p.Stop())

	require.True(t, task.hitFailureCase())
}

func TestWorkerPool_TaskFunc(t *testing.T) {
	p := MustNew(2, slogger, nil)

	failures := make(chan error, 1)
	var ran atomic.Bool
	require.NoError(t, p.AddWork(TaskFunc{Run: func() error {
		ran.Store(true)
		return nil
	}}))
	require.NoError(t, p.AddWork(TaskFunc{
		Run:    func() error { return errors.New("task failed") },
		Failed: func(err error) { failures <- err },
	}))
	// no Failed hook, the error is dropped
	require.NoError(t, p.AddWork(TaskFunc{Run: func() error { return errors.New("ignored") }}))

	require.NoError(t, p.Stop())

	require.True(t, ran.Load())
	require.EqualError(t, <-failures, "task failed")
}

func TestWorkerPool_AllWorkersRunConcurrently(t *testing.T) {
	const size = 4

	p := MustNew(size, slogger, nil)
	defer p.Stop()

	arrived := &sync.WaitGroup{}
	arrived.Add(size)
	release := make(chan struct{})

	for i := 0; i < size; i++ {
		require.NoError(t, p.Execute(func() {
			arrived.Done()
			<-release
		}))
	}

	allArrived := make(chan struct{})
	go func() {
		arrived.Wait()
		close(allArrived)
	}()

	select {
	case <-allArrived:
	case <-time.After(5 * time.Second):
		t.Fatal("not every worker picked up a blocking job")
	}
	require.Equal(t, 0, p.Pending())

	close(release)
}

func TestWorkerPool_EveryJobRunsExactlyOnce(t *testing.T) {
	const jobs = 500

	p := MustNew(7, slogger, nil)

	runs := make([]int32, jobs)
	for i := 0; i < jobs; i++ {
		i := i
		require.NoError(t, p.Execute(func() {
			atomic.AddInt32(&runs[i], 1)
		}))
	}

	require.NoError(t, p.Stop())

	for i := range runs {
		require.Equalf(t, int32(1), atomic.LoadInt32(&runs[i]), "job %d", i)
	}
}

func TestWorkerPool_NoJobsThenStop(t *testing.T) {
	p := MustNew(3, slogger, nil)
	require.NoError(t, p.Stop())
	require.Equal(t, 0, p.Pending())
}

func TestWorkerPool_AtMostSizeJobsRunAtOnce(t *testing.T) {
	const size = 3
	const jobs = 12

	p := MustNew(size, slogger, nil)

	var running, peak int32
	for i := 0; i < jobs; i++ {
		require.NoError(t, p.Execute(func() {
			n := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&running, -1)
		}))
	}

	require.NoError(t, p.Stop())

	require.LessOrEqual(t, atomic.LoadInt32(&peak), int32(size))
	require.Equal(t, int32(size), atomic.LoadInt32(&peak))
}

func TestWorkerPool_StopWaitsForInFlightJob(t *testing.T) {
	p := MustNew(2, slogger, nil)

	started := make(chan struct{})
	var finished atomic.Bool
	require.NoError(t, p.Execute(func() {
		close(started)
		time.Sleep(200 * time.Millisecond)
		finished.Store(true)
	}))

	<-started
	begin := time.Now()
	require.NoError(t, p.Stop())

	require.GreaterOrEqual(t, time.Since(begin), 150*time.Millisecond)
	require.True(t, finished.Load())
}

func TestWorkerPool_ParallelSleepers(t *testing.T) {
	p := MustNew(4, slogger, nil)
	defer p.Stop()

	var mu sync.Mutex
	var log []int
	wg := &sync.WaitGroup{}

	begin := time.Now()
	for i := 0; i < 4; i++ {
		i := i
		wg.Add(1)
		require.NoError(t, p.Execute(func() {
			defer wg.Done()
			time.Sleep(100 * time.Millisecond)
			mu.Lock()
			log = append(log, i)
			mu.Unlock()
		}))
	}
	wg.Wait()
	elapsed := time.Since(begin)

	require.Len(t, log, 4)
	require.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	require.Less(t, elapsed, 300*time.Millisecond)
}

func TestWorkerPool_CounterAfterStop(t *testing.T) {
	p := MustNew(2, slogger, nil)
	c := NewCounterTest()

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Execute(func() { _ = c.Inc() }))
	}

	require.NoError(t, p.Stop())
	require.Equal(t, 5, c.Value())
}

func TestWorkerPool_ExecuteAfterStop(t *testing.T) {
	p := MustNew(2, slogger, nil)
	require.NoError(t, p.Stop())

	require.ErrorIs(t, p.Execute(func() {}), ErrWorkerPoolClosed)
	require.ErrorIs(t, p.AddWork(NewTestTask(nil, nil)), ErrWorkerPoolClosed)
}

func TestWorkerPool_NilJob(t *testing.T) {
	p := MustNew(1, slogger, nil)
	defer p.Stop()

	require.ErrorIs(t, p.Execute(nil), ErrNilJob)
	require.ErrorIs(t, p.AddWork(nil), ErrNilJob)
	require.ErrorIs(t, p.AddWork(TaskFunc{}), ErrNilJob)

	// the worker is still alive and the pool stops cleanly
	c := NewCounterTest()
	require.NoError(t, p.Execute(func() { _ = c.Inc() }))
	require.NoError(t, p.Stop())
	require.Equal(t, 1, c.Value())
}

func TestWorkerPool_PanickingJobIsContained(t *testing.T) {
	p := MustNew(2, slogger, nil)
	c := NewCounterTest()

	require.NoError(t, p.Execute(func() { panic("bad job") }))
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Execute(func() { _ = c.Inc() }))
	}

	err := p.Stop()
	require.ErrorIs(t, err, ErrWorkerPanicked)
	require.Contains(t, err.Error(), "bad job")
	require.Equal(t, 5, c.Value())

	// the recorded result is returned again
	require.ErrorIs(t, p.Stop(), ErrWorkerPanicked)
}

func TestWorkerPool_ProcessRemainingTasksAfterStop(t *testing.T) {
	p := MustNew(4, slogger, nil)
	c := NewCounterTest()

	wg := &sync.WaitGroup{}
	for i := 0; i < 60; i++ {
		wg.Add(1)
		require.NoError(t, p.AddWork(NewTestTask(c.Inc, wg)))
	}

	// Stop the worker pool, queued tasks sit ahead of the terminate messages
	require.NoError(t, p.Stop())

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-time.After(10 * time.Second):
		t.Fatal("queued tasks were abandoned by stop")
	case <-done:
	}
	require.Equal(t, 60, c.Value())
}

func TestWorkerPool_RaceConditionOnStop(t *testing.T) {
	p := MustNew(10, slogger, nil)
	c := NewCounterTest()

	var accepted atomic.Int32
	submitters := &sync.WaitGroup{}
	for i := 0; i < 60; i++ {
		submitters.Add(1)
		go func() {
			defer submitters.Done()
			err := p.Execute(func() { _ = c.Inc() })
			if err == nil {
				accepted.Add(1)
				return
			}
			assert.ErrorIs(t, err, ErrWorkerPoolClosed)
		}()
	}

	time.Sleep(time.Millisecond)

	stopped := make(chan error, 1)
	go func() {
		stopped <- p.Stop()
	}()

	select {
	case <-time.After(10 * time.Second):
		t.Fatal("failed because still hanging on Stop")
	case err := <-stopped:
		require.NoError(t, err)
	}

	submitters.Wait()
	// every accepted job ran before its worker exited
	require.Equal(t, int(accepted.Load()), c.Value())
}

func TestWorkerPool_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("litepool", reg)

	p := MustNew(3, slogger, m)
	require.Equal(t, float64(3), testutil.ToFloat64(m.Workers))

	wg := &sync.WaitGroup{}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		require.NoError(t, p.AddWork(NewTestTask(nil, wg)))
	}
	wg.Add(1)
	require.NoError(t, p.AddWork(NewTestTask(func() error { return errors.New("nope") }, wg)))
	require.NoError(t, p.Execute(func() { panic("metrics") }))

	require.ErrorIs(t, p.Stop(), ErrWorkerPanicked)

	require.Equal(t, float64(6), testutil.ToFloat64(m.JobsSubmitted))
	require.Equal(t, float64(5), testutil.ToFloat64(m.JobsCompleted))
	require.Equal(t, float64(1), testutil.ToFloat64(m.JobsPanicked))
	require.Equal(t, float64(1), testutil.ToFloat64(m.TasksFailed))
	require.Equal(t, float64(0), testutil.ToFloat64(m.BusyWorkers))
	require.Equal(t, float64(0), testutil.ToFloat64(m.Workers))
}
