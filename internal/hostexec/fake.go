package hostexec

import (
	"context"
	"strings"
	"sync"
)

// FakeRunner records every command and answers through Handler. It is meant
// for tests of code that shells out.
type FakeRunner struct {
	Handler func(command string) (string, error)

	mu    sync.Mutex
	calls []string
}

func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	command := strings.Join(append([]string{name}, args...), " ")
	f.mu.Lock()
	f.calls = append(f.calls, command)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.Handler == nil {
		return "", nil
	}
	return f.Handler(command)
}

// Calls returns the commands run so far, joined with single spaces.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
