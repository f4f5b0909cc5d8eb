package thinker

import (
	"sync"
	"time"
)

// Flag is the monotonic completion latch shared by every agent of a run.
// There is no way to unset it: once a run starts winding down it stays
// wound down. The zero value is not usable; create one with NewFlag.
type Flag struct {
	once sync.Once
	done chan struct{}
}

// NewFlag creates an unset flag.
func NewFlag() *Flag {
	return &Flag{done: make(chan struct{})}
}

// Set marks the flag. Safe from any goroutine, any number of times; the
// first call wins.
func (f *Flag) Set() {
	f.once.Do(func() {
		close(f.done)
	})
}

// IsSet reports whether the flag has been set.
func (f *Flag) IsSet() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed once the flag is set, for select-based
// waits.
func (f *Flag) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the flag is set or the timeout elapses, and reports
// whether the flag is set. A timeout <= 0 waits indefinitely.
func (f *Flag) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		<-f.done
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
		return true
	case <-timer.C:
		// Both channels may be ready at once; report the flag, not the race.
		return f.IsSet()
	}
}
