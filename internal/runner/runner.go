// Package runner executes the external SRA toolkit binaries.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scqc/internal/metrics"
)

// ErrNonZeroExit marks a child process that exited with a non-zero status.
var ErrNonZeroExit = errors.New("non-zero exit")

const defaultTail = 2048

// ExitError carries the exit code and the tail of combined output.
type ExitError struct {
	Program string
	Code    int
	Output  string
}

func (e *ExitError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s exited with code %d", e.Program, e.Code)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Program, e.Code, e.Output)
}

// Unwrap lets callers match ErrNonZeroExit.
func (e *ExitError) Unwrap() error {
	return ErrNonZeroExit
}

// Runner starts child processes.
type Runner interface {
	Run(ctx context.Context, program string, args []string) error
}

// Exec runs programs with os/exec. Success is solely exit code zero.
type Exec struct {
	logger *zap.Logger
	tail   int
}

// NewExec constructs an Exec runner.
func NewExec(logger *zap.Logger) *Exec {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exec{logger: logger.Named("runner"), tail: defaultTail}
}

// Run executes program with args and waits for it to exit.
func (e *Exec) Run(ctx context.Context, program string, args []string) error {
	// #nosec G204 -- program and args come from operator configuration and catalog accessions.
	cmd := exec.CommandContext(ctx, program, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	e.logger.Debug("starting process", zap.String("program", program), zap.Strings("args", args))
	err := cmd.Run()
	elapsed := time.Since(start)
	name := filepath.Base(program)
	if err == nil {
		metrics.ObserveToolRun(name, "ok", elapsed)
		e.logger.Debug("process finished",
			zap.String("program", program),
			zap.Duration("elapsed", elapsed),
		)
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		metrics.ObserveToolRun(name, "exit", elapsed)
		return &ExitError{
			Program: program,
			Code:    exitErr.ExitCode(),
			Output:  tail(output.String(), e.tail),
		}
	}
	metrics.ObserveToolRun(name, "error", elapsed)
	return fmt.Errorf("run %s: %w", program, err)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
