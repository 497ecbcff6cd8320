// Package shell runs user-entered commands with a deny-list guard and
// abort-aware execution, and expands fenced bash blocks found in generated
// text.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// ErrRestricted marks a command refused by the guard.
var ErrRestricted = errors.New("shell: command is restricted for security reasons")

// restrictedCommands are refused on any substring match.
var restrictedCommands = []string{
	"rm -rf /",
	"rm -rf /*",
	"rm -rf ~",
	"rm -rf ~/",
	"mkfs",
	"> /dev/sda",
	"dd if=/dev/zero of=/dev/sda",
	":(){ :|:& };:",
	"chmod -R 777 /",
	"> /dev/null; rm",
	"$(rm",
	"`rm",
}

// dangerousPatterns are refused unless an allow rule rescues them.
var dangerousPatterns = []string{
	"rm -rf",
	"mkfs",
	"dd if=/dev/zero",
	"chmod -R 777",
	":(){ ",
	"fork bomb",
	"wget",
	"curl",
}

// safeRmPattern allows rm -rf scoped to a relative path.
var safeRmPattern = regexp.MustCompile(`rm\s+-rf\s+(?:\./)?[a-zA-Z0-9_\-+.]+(?:/[a-zA-Z0-9_\-+.]+)*\s*$`)

// Safe reports whether the guard lets a command through.
func Safe(command string) bool {
	for _, r := range restrictedCommands {
		if strings.Contains(command, r) {
			return false
		}
	}
	for _, p := range dangerousPatterns {
		if strings.Contains(command, p) {
			if p == "rm -rf" && safeRmPattern.MatchString(command) {
				continue
			}
			return false
		}
	}
	return true
}

// Aborter is the read side of a cancellation flag.
type Aborter interface {
	Aborted() bool
}

// Runner executes guarded shell commands.
type Runner struct {
	// Dir is the working directory; empty means the process's cwd.
	Dir string
	// Timeout bounds a single command. Zero means no bound beyond ctx.
	Timeout time.Duration
}

// Run executes one command through sh -c and returns its formatted output:
// a timing header, stdout, and stderr if any. Context cancellation or a
// tripped abort token kills the process.
func (r *Runner) Run(ctx context.Context, abort Aborter, command string) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", errors.New("shell: empty command")
	}
	if !Safe(command) {
		return "", ErrRestricted
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	if abort != nil {
		watch, stop := context.WithCancel(ctx)
		defer stop()
		ctx = watch
		go func() {
			t := time.NewTicker(25 * time.Millisecond)
			defer t.Stop()
			for {
				select {
				case <-watch.Done():
					return
				case <-t.C:
					if abort.Aborted() {
						stop()
						return
					}
				}
			}
		}()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = r.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if abort != nil && abort.Aborted() {
		return "", context.Canceled
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	exitCode := 0
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			exitCode = ee.ExitCode()
		} else {
			return "", fmt.Errorf("shell: run %q: %w", command, err)
		}
	}
	return FormatOutput(exitCode, stdout.String(), stderr.String(), elapsed), nil
}

// FormatOutput renders a command result: compact metadata header, then
// stdout, then stderr.
func FormatOutput(exitCode int, stdout, stderr string, elapsed time.Duration) string {
	status := "✓"
	if exitCode != 0 {
		status = "✗"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[⏱ %.2fs | %s | exit %d]\n", elapsed.Seconds(), status, exitCode)
	if stdout != "" {
		b.WriteString(strings.TrimRight(stdout, "\n"))
		b.WriteString("\n")
	}
	if stderr != "" {
		if stdout != "" {
			b.WriteString("\n")
		}
		b.WriteString("STDERR:\n")
		b.WriteString(strings.TrimRight(stderr, "\n"))
		b.WriteString("\n")
	}
	if stdout == "" && stderr == "" {
		b.WriteString("(no output)\n")
	}
	return b.String()
}
