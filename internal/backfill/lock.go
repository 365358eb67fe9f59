package backfill

import "sync/atomic"

// RunLock is a non-blocking lock guarding a single backfill run at a time
type RunLock struct {
	state atomic.Int32 // 0 = idle, 1 = running
}

// TryAcquire returns false when a run already holds the lock
func (l *RunLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release must only be called by the holder
func (l *RunLock) Release() {
	l.state.Store(0)
}

// Running reports whether the lock is held
func (l *RunLock) Running() bool {
	return l.state.Load() == 1
}
