package profile

import (
	"errors"
	"testing"
	"time"
)

func TestNewTimer(t *testing.T) {
	timer := NewTimer()
	if timer.start.IsZero() {
		t.Error("NewTimer() start time is zero")
	}
}

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(20 * time.Millisecond)
	d := timer.Duration()
	if d < 20*time.Millisecond {
		t.Errorf("Duration() = %v, want >= 20ms", d)
	}
}

func TestObserveOpDoesNotPanic(t *testing.T) {
	timer := NewTimer()
	timer.ObserveOp("put", nil)
	timer.ObserveOp("put", errors.New("test error"))
}
