package run

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ErrTimeout indicates an external command exceeded its time budget and was
// killed.
var ErrTimeout = errors.New("external command timed out")

// Runner executes one external command and returns its combined output.
// The firmware tools this engine drives can hang indefinitely, so every call
// carries a timeout.
type Runner interface {
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) ([]byte, error)
}

// Exec runs commands on the local host. Each command gets its own process
// group so a timeout takes down the whole tree, not just the group leader.
type Exec struct{}

func (Exec) Run(ctx context.Context, timeout time.Duration, name string, args ...string) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return buf.Bytes(), fmt.Errorf("%s: %w", name, ErrTimeout)
	}
	return buf.Bytes(), err
}

// IsPermissionDenied reports whether tool output indicates missing privilege.
// The firmware tools exit non-zero with this text rather than a useful code.
func IsPermissionDenied(out []byte) bool {
	s := strings.ToLower(string(out))
	return strings.Contains(s, "permission denied") ||
		strings.Contains(s, "operation not permitted")
}
