package deploy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Runner executes external commands. The exec-backed implementation streams
// tool output verbatim into the run's log sinks; tests substitute a
// scripted fake so scenarios run without root or a network.
type Runner interface {
	// Run executes the command, streaming combined output to the log
	// sinks, and returns an error on non-zero exit.
	Run(ctx context.Context, name string, args ...string) error
	// Output executes the command and returns its combined output.
	Output(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct {
	log *zap.Logger
	out io.Writer
}

// NewExecRunner returns the exec(2)-backed runner. out receives the
// verbatim output of every external tool; it is typically the multi-sink
// writer from NewRunLogger.
func NewExecRunner(log *zap.Logger, out io.Writer) Runner {
	if out == nil {
		out = io.Discard
	}
	return &execRunner{log: log, out: out}
}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) error {
	r.log.Info("exec", zap.String("cmd", commandLine(name, args)))
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = r.out
	cmd.Stderr = r.out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", commandLine(name, args), err)
	}
	return nil
}

func (r *execRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	out := strings.TrimSpace(buf.String())
	if err != nil {
		return out, fmt.Errorf("%s: %w", commandLine(name, args), err)
	}
	return out, nil
}

func commandLine(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}
