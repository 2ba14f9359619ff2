package handoff

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// Supervise runs name in the foreground in its own process group and kills
// the group after timeout or when ctx is done. It returns the child's exit
// code, or -1 when the child was killed or never ran.
func Supervise(ctx context.Context, timeout time.Duration, name string, args []string, stdout, stderr io.Writer, logger *zap.Logger) (int, error) {
	log := logger.Named("watchdog").With(zap.String("program", name))
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	cmd := exec.Command(name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return -1, err
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-waitErr:
	case <-timer.C:
		log.Warn("Child exceeded its timeout, killing process group.", zap.Duration("timeout", timeout))
		_ = killGroup(cmd.Process.Pid)
		<-waitErr
		return -1, context.DeadlineExceeded
	case <-ctx.Done():
		log.Warn("Watchdog interrupted, killing process group.")
		_ = killGroup(cmd.Process.Pid)
		<-waitErr
		return -1, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}
