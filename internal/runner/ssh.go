package runner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/nanoclaw/ops/internal/plan"
	"github.com/nanoclaw/ops/internal/policy"
)

const (
	maxSSHStdout = 100000
	maxSSHStderr = 10000
)

func (e *Executor) execSSH(ctx context.Context, idx int, start time.Time, a plan.SSHAction) Result {
	if err := policy.CheckSSHCommand(a.Command); err != nil {
		e.record("blocked", "ssh", err.Error(), a.Target)
		return blocked(idx, err.Error())
	}

	addr, ok := e.hosts[a.Target]
	if !ok {
		r := blocked(idx, fmt.Sprintf("no configured address for host %q", a.Target))
		return r
	}

	timeout := time.Duration(e.cfg.SSHTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	strictHostKeys := e.cfg.SSHStrictHostKeys
	if strictHostKeys == "" {
		strictHostKeys = "accept-new"
	}

	args := []string{
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=" + strictHostKeys,
		"-o", "ConnectTimeout=10",
		"-o", "ServerAliveInterval=5",
		"-o", "ServerAliveCountMax=3",
		"-T", // no pty
		"-n", // no stdin
		addr,
		a.Command,
	}
	cmd := exec.CommandContext(runCtx, "ssh", args...)
	// Cancel sends SIGTERM first and only escalates to SIGKILL after
	// WaitDelay if the process hasn't exited, matching the terminate-then-
	// kill timeout behavior.
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	r := Result{
		ActionID:   idx,
		Status:     statusForExit(exitCode, runErr),
		Stdout:     truncateTail(stdout.String(), maxSSHStdout),
		Stderr:     truncateTail(stderr.String(), maxSSHStderr),
		ExitCode:   exitCode,
		ExecutedAt: start,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if runErr != nil && exitCode == -1 {
		r.ErrorText = runErr.Error()
	}
	e.record(r.Status, "ssh", "exit="+strconv.Itoa(exitCode), a.Command+"@"+a.Target)
	return r
}

func statusForExit(exitCode int, err error) string {
	if err != nil && exitCode == -1 {
		return "failed"
	}
	return "ok"
}

// truncateTail keeps the last n bytes of s, which is what spec.md means by
// "truncated from the tail": a command's most useful output is usually at
// the end, not the beginning.
func truncateTail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
