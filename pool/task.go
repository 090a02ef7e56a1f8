package pool

// A Task is work with a failure hook. AddWork runs Execute on a worker and,
// when it returns an error, calls OnFailure on that same worker.
type Task interface {
	Execute() error
	OnFailure(error)
}

// TaskFunc adapts a function to Task. Run must be set. Errors go to Failed
// when it is set and are dropped otherwise.
type TaskFunc struct {
	Run    func() error
	Failed func(error)
}

func (t TaskFunc) Execute() error {
	return t.Run()
}

func (t TaskFunc) OnFailure(err error) {
	if t.Failed != nil {
		t.Failed(err)
	}
}
