package matching

import "sync"

// executor is a reusable bounded worker pool. It is created once with the
// matcher and reused across searches, so a search never pays pool-creation
// overhead. Tasks are pure functions writing only their own result slot, so
// no locking is needed around them.
type executor struct {
	tasks     chan func()
	closeOnce sync.Once
}

// newExecutor starts the given number of worker goroutines.
func newExecutor(workers int) *executor {
	if workers < 1 {
		workers = 1
	}

	e := &executor{tasks: make(chan func())}
	for i := 0; i < workers; i++ {
		go e.worker()
	}

	return e
}

func (e *executor) worker() {
	for task := range e.tasks {
		task()
	}
}

// submit blocks until a worker accepts the task. Tasks must never submit
// further tasks, or submitters could deadlock waiting on each other.
func (e *executor) submit(task func()) {
	e.tasks <- task
}

// close shuts the pool down. Idempotent.
func (e *executor) close() {
	e.closeOnce.Do(func() { close(e.tasks) })
}
