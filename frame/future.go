package frame

// Future is GPU work that may not have completed yet.
type Future interface {
	// Done polls for completion without blocking.
	Done() bool
	// Wait blocks until the work has completed.
	Wait() error
	// CleanupFinished releases the bookkeeping of whatever part of the work has
	// already completed. It never blocks.
	CleanupFinished()
}

type nowFuture struct{}

func (nowFuture) Done() bool       { return true }
func (nowFuture) Wait() error      { return nil }
func (nowFuture) CleanupFinished() {}

// Now returns a future that is already complete.
func Now() Future {
	return nowFuture{}
}

// IsNow reports whether f is the already complete future returned by Now.
func IsNow(f Future) bool {
	_, ok := f.(nowFuture)
	return ok
}
