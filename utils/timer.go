package utils

import (
	"sync"
	"time"
)

// Timer is a cancellable one-shot task runner. Arm replaces any armed
// task; Stop guarantees a stopped task never fires afterwards.
type Timer struct {
	sync.Mutex
	tm  *time.Timer
	gen uint64
}

// NewTimer create a timer.
func NewTimer() *Timer {
	return new(Timer)
}

// Arm schedule f to run after d, replacing any previously armed task.
func (t *Timer) Arm(d time.Duration, f func()) {
	t.Lock()
	if t.tm != nil {
		t.tm.Stop()
	}
	t.gen++
	gen := t.gen
	t.tm = time.AfterFunc(d, func() {
		t.Lock()
		if gen != t.gen {
			t.Unlock()
			return
		}
		t.tm = nil
		t.Unlock()
		f()
	})
	t.Unlock()
}

// Stop prevents any armed task from firing.
func (t *Timer) Stop() {
	t.Lock()
	t.gen++
	if t.tm != nil {
		t.tm.Stop()
		t.tm = nil
	}
	t.Unlock()
}
