package monitoring

import (
	"fmt"
	"log"
	"sync"
)

var (
	loggerMu sync.RWMutex
	logger   func(format string, v ...interface{}) = log.Printf
)

// Logf is the package-level diagnostic logger used by the sensor libraries
// (ranging, report, capture, supervisor, aggregator). It defaults to
// log.Printf; SetLogger or Capture replace it. Safe for concurrent use.
func Logf(format string, v ...interface{}) {
	loggerMu.RLock()
	f := logger
	loggerMu.RUnlock()
	f(format, v...)
}

// SetLogger replaces the package logger and returns the previous one.
// Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) (previous func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	loggerMu.Lock()
	defer loggerMu.Unlock()
	previous = logger
	logger = f
	return previous
}

// CapturedLines collects formatted log lines. Safe for concurrent use.
type CapturedLines struct {
	mu    sync.Mutex
	lines []string
}

func (c *CapturedLines) add(line string) {
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
}

// Lines returns a copy of the lines captured so far.
func (c *CapturedLines) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// Capture redirects Logf into the returned buffer until restore is called.
// It is meant for tests asserting on emitted diagnostics.
func Capture() (lines *CapturedLines, restore func()) {
	lines = &CapturedLines{}
	original := SetLogger(func(format string, v ...interface{}) {
		lines.add(fmt.Sprintf(format, v...))
	})
	return lines, func() { SetLogger(original) }
}
