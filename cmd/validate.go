// -- cmd/validate.go --
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xkilldash9x/claimgate/api/schemas"
	"github.com/xkilldash9x/claimgate/internal/audit"
	"github.com/xkilldash9x/claimgate/internal/browser"
	"github.com/xkilldash9x/claimgate/internal/config"
	"github.com/xkilldash9x/claimgate/internal/decision"
	"github.com/xkilldash9x/claimgate/internal/discovery"
	"github.com/xkilldash9x/claimgate/internal/handoff"
	"github.com/xkilldash9x/claimgate/internal/interaction"
	"github.com/xkilldash9x/claimgate/internal/observability"
	"github.com/xkilldash9x/claimgate/internal/pipeline"
	"github.com/xkilldash9x/claimgate/internal/store"
	"go.uber.org/zap"
)

// browserSession is the part of browser.Session the command needs.
type browserSession interface {
	schemas.Page
	Close() error
}

// Swappable in tests.
var (
	openStore  = store.Open
	newBrowser = func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (browserSession, error) {
		s, err := browser.NewSession(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
)

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}
	logger := observability.GetLogger()
	identifier, displayName := strings.TrimSpace(args[0]), strings.TrimSpace(args[1])

	res, err := validateOnce(ctx, cfg, identifier, displayName, logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s reason=%s correlation_id=%s\n",
		identifier, res.Outcome.Effective, res.Outcome.Reason, res.Attempt.CorrelationID)

	if res.Process != nil {
		awaitGrace(ctx, cfg.Handoff, res.Process, logger)
	}
	return nil
}

// validateOnce owns the store and browser for a single run. Both are released
// before it returns so the grace period runs without a browser attached.
func validateOnce(ctx context.Context, cfg *config.Config, identifier, displayName string, logger *zap.Logger) (*pipeline.Result, error) {
	repo, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open the audit store: %w", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Warn("Failed to close the audit store.", zap.Error(err))
		}
	}()

	session, err := newBrowser(ctx, cfg.Browser, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("Browser session did not close cleanly.", zap.Error(err))
		}
	}()

	shots := browser.NewScreenshotter(cfg.Artifacts.ScreenshotDir(), cfg.Target.Screenshots, logger)
	driver := interaction.NewDriver(session, discovery.NewEngine(cfg.Discovery, logger), shots, cfg, logger)

	var launcher pipeline.Launcher
	if cfg.Handoff.Enabled {
		launcher = handoff.NewSupervisor(cfg.Handoff, logger)
	}

	p := pipeline.New(driver, decision.NewPolicy(cfg.Policy), audit.NewRecorder(repo, cfg.Database.OpTimeout, logger), launcher, logger)
	return p.Run(ctx, identifier, displayName)
}

// awaitGrace keeps the validator alive for the exit grace period so the
// detached child is established, relaying its output when configured.
func awaitGrace(ctx context.Context, cfg config.HandoffConfig, p *handoff.Process, logger *zap.Logger) {
	if cfg.ExitGrace <= 0 {
		return
	}
	graceCtx, cancel := context.WithTimeout(ctx, cfg.ExitGrace)
	defer cancel()

	if cfg.RelayLogs {
		if err := handoff.Relay(graceCtx, p, logger); err != nil {
			logger.Warn("Claim log relay stopped.", zap.Error(err))
		}
		return
	}

	select {
	case <-p.Done():
	case <-graceCtx.Done():
	}
}
