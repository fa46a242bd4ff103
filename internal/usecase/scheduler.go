package usecase

// Scheduler spawns a detached background task. The loader uses it to fire
// hierarchy prefetches without delaying the response that triggered them;
// tests substitute a synchronous implementation.
type Scheduler interface {
	Schedule(task func())
}

// GoroutineScheduler runs each task on its own goroutine.
type GoroutineScheduler struct{}

func (GoroutineScheduler) Schedule(task func()) {
	go task()
}
