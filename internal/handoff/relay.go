package handoff

import (
	"context"
	"fmt"
	"strings"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// ClassifyLine picks a log level for a line of child output by substring.
func ClassifyLine(line string) zapcore.Level {
	l := strings.ToLower(line)
	switch {
	case strings.Contains(l, "error"), strings.Contains(l, "fail"), strings.Contains(l, "exception"), strings.Contains(l, "fatal"):
		return zapcore.ErrorLevel
	case strings.Contains(l, "warn"):
		return zapcore.WarnLevel
	case strings.Contains(l, "debug"):
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// Relay follows both log files of p and re-emits their lines through logger
// until ctx is done, or until the child exits and the files are drained.
func Relay(ctx context.Context, p *Process, logger *zap.Logger) error {
	log := logger.Named("claim").With(zap.String("identifier", p.Identifier), zap.Int("pid", p.PID))

	g, gctx := errgroup.WithContext(ctx)
	for _, stream := range []struct{ name, path string }{
		{"stdout", p.StdoutPath},
		{"stderr", p.StderrPath},
	} {
		g.Go(func() error {
			return follow(gctx, stream.path, p.Done(), log.With(zap.String("stream", stream.name)))
		})
	}
	return g.Wait()
}

func follow(ctx context.Context, path string, exited <-chan struct{}, log *zap.Logger) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		MustExist: true,
		Poll:      true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to tail %s: %w", path, err)
	}

	// Stop and StopAtEOF block until the tailer returns, and the tailer
	// blocks on sending lines, so both run beside the read loop.
	stopping := false
	canceled := ctx.Done()
	for {
		select {
		case <-canceled:
			canceled, exited = nil, nil
			if !stopping {
				stopping = true
				go func() { _ = t.Stop() }()
			}
		case <-exited:
			exited = nil
			if !stopping {
				stopping = true
				go func() { _ = t.StopAtEOF() }()
			}
		case line, ok := <-t.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				log.Debug("Error reading claim log.", zap.Error(line.Err))
				continue
			}
			if ctx.Err() != nil || strings.TrimSpace(line.Text) == "" {
				continue
			}
			if ce := log.Check(ClassifyLine(line.Text), line.Text); ce != nil {
				ce.Write()
			}
		}
	}
}
