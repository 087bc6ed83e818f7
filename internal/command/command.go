// Package command runs the privileged subprocesses actions are built from
// (useradd, systemctl, dscl, …) with context cancellation and stderr
// captured into the returned error.
package command

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Run executes program with args and returns stdout. A non-zero exit
// becomes an error carrying the command line and its stderr, which is
// usually the only useful part of a failed system tool invocation.
func Run(ctx context.Context, program string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("running command", "command", commandLine(program, args))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("`%s`: %w", commandLine(program, args), err)
		}
		return nil, fmt.Errorf("`%s`: %w: %s", commandLine(program, args), err, msg)
	}
	return stdout.Bytes(), nil
}

// Exists reports whether program resolves on PATH.
func Exists(program string) bool {
	_, err := exec.LookPath(program)
	return err == nil
}

func commandLine(program string, args []string) string {
	if len(args) == 0 {
		return program
	}
	return program + " " + strings.Join(args, " ")
}
