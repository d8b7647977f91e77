package shutdown

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestShutdownWithTimeout(t *testing.T) {
	sd := NewShutdown(zerolog.Nop())

	quickCompleted := false
	slowCompleted := false

	sd.HookShutdownCallback("quick", func() {
		time.Sleep(50 * time.Millisecond)
		quickCompleted = true
	}, 1*time.Second)

	sd.HookShutdownCallback("slow", func() {
		time.Sleep(2 * time.Second)
		slowCompleted = true
	}, 100*time.Millisecond)

	sd.ShutdownNow()

	if !quickCompleted {
		t.Error("quick callback should have completed")
	}
	if slowCompleted {
		t.Error("slow callback should not have completed before its timeout")
	}
}

func TestShutdownWithoutTimeout(t *testing.T) {
	sd := NewShutdown(zerolog.Nop())

	completed := false
	sd.HookShutdownCallback("no-timeout", func() {
		time.Sleep(100 * time.Millisecond)
		completed = true
	}, 0)

	sd.ShutdownNow()

	if !completed {
		t.Error("callback without a timeout should have completed")
	}
}

func TestContextCancelledOnShutdown(t *testing.T) {
	sd := NewShutdown(zerolog.Nop())

	select {
	case <-sd.Context().Done():
		t.Fatal("context should not be cancelled before shutdown")
	default:
	}

	sd.ShutdownNow()

	select {
	case <-sd.Context().Done():
	default:
		t.Fatal("context should be cancelled after shutdown")
	}
}
