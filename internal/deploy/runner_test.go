package deploy

import (
	"context"
	"strings"
	"sync"
)

// fakeRunner scripts external commands for tests: failures and outputs are
// matched by command-line prefix, and every invocation is recorded.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	failOn  map[string]error
	outputs map[string]string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		failOn:  map[string]error{},
		outputs: map[string]string{},
	}
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	line := commandLine(name, args)
	f.record(line)
	if err := f.failure(line); err != nil {
		return err
	}
	return nil
}

func (f *fakeRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	line := commandLine(name, args)
	f.record(line)
	if err := f.failure(line); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for prefix, out := range f.outputs {
		if strings.HasPrefix(line, prefix) {
			return out, nil
		}
	}
	// Defaults so tests only script the probes they care about.
	if name == "python3" {
		return "Python 3.11.2", nil
	}
	if name == "systemctl" && len(args) > 0 && args[0] == "is-active" {
		return "active", nil
	}
	return "", nil
}

func (f *fakeRunner) record(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, line)
}

func (f *fakeRunner) failure(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for prefix, err := range f.failOn {
		if strings.HasPrefix(line, prefix) {
			return err
		}
	}
	return nil
}

func (f *fakeRunner) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
