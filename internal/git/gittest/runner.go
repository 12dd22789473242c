// Package gittest provides a scripted git.CommandRunner for unit tests.
package gittest

import (
	"context"
	"strings"
	"sync"

	"github.com/randalmurphal/wtsync/internal/git"
)

// Call is one recorded command invocation.
type Call struct {
	Dir  string
	Args []string
}

// Line returns the git arguments joined by spaces, without leading
// "-c key=value" pairs.
func (c Call) Line() string {
	return strings.Join(stripConfig(c.Args), " ")
}

type response struct {
	out string
	err error
}

// Runner answers commands from registered responses and records every call.
// Unmatched commands succeed with empty output.
type Runner struct {
	mu        sync.Mutex
	calls     []Call
	responses map[string][]response
}

// New returns an empty Runner.
func New() *Runner {
	return &Runner{responses: make(map[string][]response)}
}

// On registers a response for commands whose Line starts with prefix. The
// longest matching prefix wins. Registering the same prefix more than once
// queues the responses; the last one repeats once the queue drains.
func (r *Runner) On(prefix, out string, err error) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[prefix] = append(r.responses[prefix], response{out: out, err: err})
	return r
}

// Run implements git.CommandRunner.
func (r *Runner) Run(_ context.Context, dir, _ string, args ...string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := Call{Dir: dir, Args: append([]string(nil), args...)}
	r.calls = append(r.calls, call)

	line := call.Line()
	best := ""
	found := false
	for prefix := range r.responses {
		if strings.HasPrefix(line, prefix) && (!found || len(prefix) > len(best)) {
			best, found = prefix, true
		}
	}
	if !found {
		return "", nil
	}
	queue := r.responses[best]
	resp := queue[0]
	if len(queue) > 1 {
		r.responses[best] = queue[1:]
	}
	if resp.err != nil {
		return resp.out, resp.err
	}
	return resp.out, nil
}

// Calls returns a copy of the recorded calls.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Count returns how many calls started with prefix.
func (r *Runner) Count(prefix string) int {
	n := 0
	for _, c := range r.Calls() {
		if strings.HasPrefix(c.Line(), prefix) {
			n++
		}
	}
	return n
}

// Called reports whether any call started with prefix.
func (r *Runner) Called(prefix string) bool {
	return r.Count(prefix) > 0
}

// Fail builds the error ExecRunner returns for a non-zero exit.
func Fail(output string, exitCode int) error {
	return &git.CommandError{Command: "git", Output: output, ExitCode: exitCode}
}

func stripConfig(args []string) []string {
	for len(args) >= 2 && args[0] == "-c" {
		args = args[2:]
	}
	return args
}
