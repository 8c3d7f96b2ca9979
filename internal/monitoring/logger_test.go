package monitoring

import (
	"fmt"
	"sync"
	"testing"
)

func TestSetLogger(t *testing.T) {
	called := false
	original := SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	defer SetLogger(original)

	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// nil installs a no-op
	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestCapture(t *testing.T) {
	lines, restore := Capture()
	Logf("sample %d failed: %s", 3, "no echo")
	restore()

	got := lines.Lines()
	if len(got) != 1 || got[0] != "sample 3 failed: no echo" {
		t.Errorf("captured %q", got)
	}
	muted := SetLogger(nil)
	defer SetLogger(muted)
	Logf("after restore")
	if len(lines.Lines()) != 1 {
		t.Error("restore did not detach the capture")
	}
}

// Connection handlers and capture workers log from their own goroutines
// while a test holds the capture.
func TestCapture_ConcurrentWriters(t *testing.T) {
	lines, restore := Capture()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				Logf("writer %d line %d", g, i)
				_ = lines.Lines()
			}
		}()
	}
	// Swapping the logger while writers run must be safe too.
	prev := SetLogger(func(format string, v ...interface{}) { lines.add(fmt.Sprintf(format, v...)) })
	SetLogger(prev)
	wg.Wait()
	restore()

	if n := len(lines.Lines()); n != 400 {
		t.Errorf("captured %d lines, want 400", n)
	}
}
