// Package runner executes one external tool invocation with the
// quiet-then-verbose policy: most runs succeed and their chatter is
// noise, so output is discarded on the first attempt and only shown on a
// failing re-run.
package runner

import (
	"context"
	"io"
	"os"
	"os/exec"

	"latexmk-emu/internal/logger"
	"latexmk-emu/internal/types"
)

// FailureFunc is invoked after both attempts of a run failed. It is the
// extension point for install-and-retry recovery: it may install packages
// and trigger another run, and its error becomes the run's error. A nil
// return means the failure was recovered.
type FailureFunc func() error

// Runner runs external tools in a fixed working directory.
type Runner interface {
	Run(ctx context.Context, tool string, args []string, onFailure FailureFunc) error
}

// ExecRunner is the production Runner backed by os/exec.
type ExecRunner struct {
	// Dir is the working directory for every invocation
	Dir string
	// Stdout and Stderr receive tool output on the verbose attempt;
	// they default to the process's own streams
	Stdout io.Writer
	Stderr io.Writer
}

// New creates an ExecRunner working in dir.
func New(dir string) *ExecRunner {
	return &ExecRunner{Dir: dir, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run executes tool with args. The first attempt discards output; on a
// non-zero exit the tool is re-run once with output attached so the user
// sees the native diagnostics. If the second attempt also fails,
// onFailure is invoked (lazily, only here) and its verdict is returned;
// with no callback the failing status is returned as an error.
func (r *ExecRunner) Run(ctx context.Context, tool string, args []string, onFailure FailureFunc) error {
	logger.Debug("running tool", logger.String("tool", tool), logger.Strings("args", args))

	if err := r.attempt(ctx, tool, args, true); err == nil {
		return nil
	}

	logger.Debug("quiet attempt failed, re-running with output", logger.String("tool", tool))
	err := r.attempt(ctx, tool, args, false)
	if err == nil {
		return nil
	}

	if onFailure != nil {
		return onFailure()
	}
	return err
}

func (r *ExecRunner) attempt(ctx context.Context, tool string, args []string, quiet bool) error {
	cmd := exec.CommandContext(ctx, tool, args...)
	cmd.Dir = r.Dir
	if quiet {
		cmd.Stdout = io.Discard
		cmd.Stderr = io.Discard
	} else {
		cmd.Stdout = r.Stdout
		cmd.Stderr = r.Stderr
	}

	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return types.NewAppError(types.ErrCompile, tool+" exited with an error", err)
		}
		return types.NewAppError(types.ErrCompile, "failed to start "+tool, err)
	}
	return nil
}
