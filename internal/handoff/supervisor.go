// Package handoff launches the claim workflow for a validated identifier as a
// detached child process with captured output and a hard timeout.
package handoff

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xkilldash9x/claimgate/internal/config"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 5 * time.Minute
	watchdogMargin = 10 * time.Second
)

// Process is a launched claim child. Done is closed once the reaper has
// collected its exit status.
type Process struct {
	PID        int
	Identifier string
	StdoutPath string
	StderrPath string
	StartedAt  time.Time

	done     chan struct{}
	err      error
	timedOut atomic.Bool

	// mu orders the timeout kill against the reaper. Once exited is set the
	// PID may be reused and the group is never signaled.
	mu     sync.Mutex
	exited bool
}

// Done is closed when the child has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// Err is the child's exit error. It is only meaningful after Done.
func (p *Process) Err() error {
	<-p.done
	return p.err
}

// TimedOut reports whether the supervisor killed the child.
func (p *Process) TimedOut() bool { return p.timedOut.Load() }

func (p *Process) markExited() {
	p.mu.Lock()
	p.exited = true
	p.mu.Unlock()
}

// expire kills the child's process group unless the reaper already collected
// the child. It reports whether kill was called.
func (p *Process) expire(kill func(pid int) error) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return false, nil
	}
	p.timedOut.Store(true)
	return true, kill(p.PID)
}

// Wait blocks until the child exits or ctx is done. It never kills the child.
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Supervisor spawns and time-bounds claim children.
type Supervisor struct {
	cfg    config.HandoffConfig
	logger *zap.Logger

	now        func() time.Time
	command    func(name string, args ...string) *exec.Cmd
	executable func() (string, error)

	reapers sync.WaitGroup
}

// NewSupervisor returns a supervisor for cfg.
func NewSupervisor(cfg config.HandoffConfig, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		cfg:        cfg,
		logger:     logger.Named("handoff"),
		now:        time.Now,
		command:    exec.Command,
		executable: os.Executable,
	}
}

// Handoff starts the claim workflow with (identifier, displayName) and
// returns without waiting for it. ctx only gates the launch; the child
// outlives it.
func (s *Supervisor) Handoff(ctx context.Context, identifier, displayName string) (*Process, error) {
	log := s.logger.With(zap.String("identifier", identifier))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entry, err := ResolveEntryPoint(s.cfg.Candidates, s.cfg.Interpreter)
	if err != nil {
		log.Error("Claim handoff failed: no entry point.", zap.Strings("candidates", s.cfg.Candidates), zap.Error(err))
		return nil, err
	}
	name, args, err := s.commandLine(entry, identifier, displayName)
	if err != nil {
		log.Error("Claim handoff failed: cannot build command.", zap.Error(err))
		return nil, err
	}

	started := s.now()
	stdout, stderr, err := s.openLogs(identifier, started)
	if err != nil {
		log.Error("Claim handoff failed: cannot open log files.", zap.Error(err))
		return nil, err
	}

	cmd := s.command(name, args...)
	cmd.Stdin = nil
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	detach(cmd)

	startErr := cmd.Start()
	// The child holds its own descriptors now.
	_ = stdout.Close()
	_ = stderr.Close()
	if startErr != nil {
		log.Error("Claim handoff failed: spawn error.", zap.String("entry_point", entry.Path), zap.Error(startErr))
		return nil, fmt.Errorf("failed to start claim process: %w", startErr)
	}

	p := &Process{
		PID:        cmd.Process.Pid,
		Identifier: identifier,
		StdoutPath: stdout.Name(),
		StderrPath: stderr.Name(),
		StartedAt:  started,
		done:       make(chan struct{}),
	}
	log = log.With(zap.Int("pid", p.PID))

	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if s.cfg.Watchdog {
		// The watchdog kills the entry point's group itself; this timer
		// only catches a watchdog that hangs.
		timeout += watchdogMargin
	}
	timer := time.AfterFunc(timeout, func() {
		killed, err := p.expire(killGroup)
		if !killed {
			return
		}
		log.Warn("Claim process exceeded its timeout, killing process group.", zap.Duration("timeout", timeout))
		if err != nil {
			log.Error("Failed to kill claim process group.", zap.Error(err))
		}
	})

	s.reapers.Add(1)
	go func() {
		defer s.reapers.Done()
		err := cmd.Wait()
		p.markExited()
		timer.Stop()
		p.err = err
		close(p.done)

		fields := []zap.Field{zap.Duration("elapsed", time.Since(started)), zap.Bool("timed_out", p.TimedOut())}
		if err != nil {
			log.Warn("Claim process exited with error.", append(fields, zap.Error(err))...)
			return
		}
		log.Info("Claim process exited.", fields...)
	}()

	log.Info("Claim process launched.",
		zap.String("entry_point", entry.Path),
		zap.String("stdout", p.StdoutPath),
		zap.String("stderr", p.StderrPath),
		zap.Duration("timeout", timeout),
	)
	return p, nil
}

// Wait blocks until every reaper has finished or ctx is done.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.reapers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// commandLine builds the child's argv. With the watchdog enabled the child
// is this binary's supervise command wrapping the entry point, so the timeout
// survives the validator exiting.
func (s *Supervisor) commandLine(entry EntryPoint, identifier, displayName string) (string, []string, error) {
	name, args := entry.Command(identifier, displayName)
	if !s.cfg.Watchdog {
		return name, args, nil
	}
	self, err := s.executable()
	if err != nil {
		return "", nil, fmt.Errorf("failed to locate own executable: %w", err)
	}
	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	wrapped := append([]string{"supervise", "--timeout", timeout.String(), "--", name}, args...)
	return self, wrapped, nil
}

// openLogs creates the append-only stdout and stderr files for one launch.
func (s *Supervisor) openLogs(identifier string, ts time.Time) (*os.File, *os.File, error) {
	dir := s.cfg.LogDir
	if dir == "" {
		dir = "claim-logs"
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("failed to create claim log directory: %w", err)
	}
	base := filepath.Join(dir, fmt.Sprintf("%s_%d", identifier, ts.UnixMilli()))

	open := func(path string) (*os.File, error) {
		return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	}
	stdout, err := open(base + ".out.log")
	if err != nil {
		return nil, nil, err
	}
	stderr, err := open(base + ".err.log")
	if err != nil {
		_ = stdout.Close()
		return nil, nil, err
	}
	return stdout, stderr, nil
}
