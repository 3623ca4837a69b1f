// Package monitoring carries the diagnostic logger and Prometheus
// collectors shared by the ingest packages.
package monitoring

import (
	"fmt"
	"log"
	"sync"
)

// Logf is the diagnostic logger used by the ingest packages. It writes
// through the standard log package unless replaced with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger installs f as Logf. A nil f discards everything.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	Logf = f
}

// Mute discards log output until the returned function is called.
func Mute() (restore func()) {
	prev := Logf
	SetLogger(nil)
	return func() { Logf = prev }
}

// Prefixed returns a logger that tags every line with "[name] ". It looks
// Logf up on each call, so a later SetLogger still applies.
func Prefixed(name string) func(format string, v ...interface{}) {
	prefix := "[" + name + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}

// Recorder keeps formatted log lines in memory.
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

// Record installs a Recorder as Logf. The returned function puts the
// previous logger back.
func Record() (*Recorder, func()) {
	prev := Logf
	r := &Recorder{}
	SetLogger(r.logf)
	return r, func() { Logf = prev }
}

func (r *Recorder) logf(format string, v ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, v...))
}

// Lines returns a copy of everything logged so far.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}
