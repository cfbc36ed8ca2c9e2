package utils

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTimerFires(t *testing.T) {
	var fired int32
	tm := NewTimer()
	tm.Arm(10*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}
}

func TestTimerStop(t *testing.T) {
	var fired int32
	tm := NewTimer()
	tm.Arm(20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	tm.Stop()
	time.Sleep(60 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Errorf("stopped timer fired %d times", fired)
	}
}

func TestTimerArmReplaces(t *testing.T) {
	var first, second int32
	tm := NewTimer()
	tm.Arm(20*time.Millisecond, func() { atomic.AddInt32(&first, 1) })
	tm.Arm(20*time.Millisecond, func() { atomic.AddInt32(&second, 1) })
	time.Sleep(60 * time.Millisecond)
	if atomic.LoadInt32(&first) != 0 {
		t.Error("replaced task still fired")
	}
	if atomic.LoadInt32(&second) != 1 {
		t.Error("replacement task did not fire")
	}
}

func TestTimerRearmAfterStop(t *testing.T) {
	var fired int32
	tm := NewTimer()
	tm.Arm(10*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	tm.Stop()
	tm.Arm(10*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 1 {
		t.Errorf("fired = %d, want exactly 1", fired)
	}
}
