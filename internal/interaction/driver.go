// Package interaction sequences the browser steps of one validation attempt
// and collects the evidence the decision policy consumes. It makes no
// decisions of its own.
package interaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/claimgate/api/schemas"
	"github.com/xkilldash9x/claimgate/internal/config"
	"github.com/xkilldash9x/claimgate/internal/discovery"
	"github.com/xkilldash9x/claimgate/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrNavigation    = errors.New("navigation failed")
	ErrNoInputFound  = errors.New("no identifier input found")
	ErrNoSubmitFound = errors.New("no submit action found")
)

// Screenshot checkpoints.
const (
	StageShopPage = "shop-page"
	StageIDEntry  = "id-entry"
	StageGoClick  = "go-click"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultStepTimeout       = 10 * time.Second
)

// Finder resolves page elements by role.
type Finder interface {
	Find(ctx context.Context, page schemas.Page, role discovery.Role, c discovery.Constraints) (*discovery.Match, error)
}

// Capturer writes checkpoint screenshots.
type Capturer interface {
	Capture(ctx context.Context, page schemas.Page, stage, identifier string) (string, error)
}

// Driver runs the navigate, reveal, fill, submit and settle sequence against
// a single page.
type Driver struct {
	page   schemas.Page
	finder Finder
	shots  Capturer
	logger *zap.Logger

	target        config.TargetConfig
	reveal        config.RevealConfig
	loginKeywords discovery.Keywords
	errorClasses  []string

	limiter *rate.Limiter
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewDriver wires a driver for page. shots may be nil.
func NewDriver(page schemas.Page, finder Finder, shots Capturer, cfg *config.Config, logger *zap.Logger) *Driver {
	limit := rate.Inf
	if cfg.Reveal.HoverRate > 0 {
		limit = rate.Limit(cfg.Reveal.HoverRate)
	}
	return &Driver{
		page:          page,
		finder:        finder,
		shots:         shots,
		logger:        logger.Named("interaction"),
		target:        cfg.Target,
		reveal:        cfg.Reveal,
		loginKeywords: discovery.NewKeywords(cfg.Discovery.LoginKeywords),
		errorClasses:  cfg.Policy.ErrorClasses,
		limiter:       rate.NewLimiter(limit, 1),
		now:           time.Now,
		sleep:         sleepCtx,
	}
}

// Run performs one attempt for identifier. The returned attempt is never nil;
// on error it holds whatever was collected before the failing step.
func (d *Driver) Run(ctx context.Context, identifier, displayName string) (*schemas.ValidationAttempt, error) {
	attempt := schemas.NewValidationAttempt(identifier, displayName, d.now())
	log := observability.WithAttempt(d.logger, attempt.CorrelationID, identifier)

	if err := d.run(ctx, attempt, log); err != nil {
		log.Error("Validation interaction failed.", zap.Error(err))
		return attempt, err
	}
	log.Info("Validation interaction complete.",
		zap.Bool("input_visible", attempt.Evidence.InputVisible),
		zap.Bool("error_styling", attempt.Evidence.ErrorStyling),
		zap.String("url", attempt.Evidence.CurrentURL),
	)
	return attempt, nil
}

func (d *Driver) run(ctx context.Context, attempt *schemas.ValidationAttempt, log *zap.Logger) error {
	// 1. Navigate and let late rendering finish.
	log.Info("Navigating to target.", observability.Stage("navigate"), zap.String("url", d.target.URL))
	navTimeout := d.target.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = defaultNavigationTimeout
	}
	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	err := d.page.Navigate(navCtx, d.target.URL)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNavigation, err)
	}
	if err := d.sleep(ctx, d.target.SettleDelay); err != nil {
		return err
	}
	d.checkpoint(ctx, attempt, StageShopPage, log)

	// 2. Expose the login surface if it is behind a hover menu or button.
	if err := d.revealLogin(ctx, log); err != nil {
		return fmt.Errorf("reveal login: %w", err)
	}

	// 3. Locate the identifier input.
	input, err := d.find(ctx, attempt, discovery.RoleIdentifierInput, discovery.Constraints{})
	if err != nil {
		if errors.Is(err, discovery.ErrNotFound) {
			return fmt.Errorf("%w: %w", ErrNoInputFound, err)
		}
		return fmt.Errorf("find identifier input: %w", err)
	}

	// 4. Fill it.
	log.Debug("Filling identifier.", observability.Stage("fill"), zap.String("element", input.Describe()))
	if err := d.step(ctx, func(ctx context.Context) error { return input.Fill(ctx, attempt.Identifier) }); err != nil {
		return fmt.Errorf("fill identifier: %w", err)
	}
	d.checkpoint(ctx, attempt, StageIDEntry, log)

	// 5. Submit.
	submit, err := d.find(ctx, attempt, discovery.RoleSubmitAction, discovery.Constraints{Anchor: input})
	if err != nil {
		if errors.Is(err, discovery.ErrNotFound) {
			return fmt.Errorf("%w: %w", ErrNoSubmitFound, err)
		}
		return fmt.Errorf("find submit action: %w", err)
	}
	log.Debug("Submitting.", observability.Stage("submit"), zap.String("element", submit.Describe()))
	if err := d.step(ctx, submit.Click); err != nil {
		return fmt.Errorf("click submit: %w", err)
	}

	// 6. Settle, capture, and collect evidence.
	if err := d.sleep(ctx, d.target.PostSubmitDelay); err != nil {
		return err
	}
	d.checkpoint(ctx, attempt, StageGoClick, log)

	evidence, err := d.collectEvidence(ctx, input, log)
	if err != nil {
		return fmt.Errorf("collect evidence: %w", err)
	}
	attempt.Evidence = evidence
	return nil
}

// find resolves role within one step timeout and records the strategy used.
func (d *Driver) find(ctx context.Context, attempt *schemas.ValidationAttempt, role discovery.Role, c discovery.Constraints) (schemas.Element, error) {
	stepCtx, cancel := context.WithTimeout(ctx, d.stepTimeout())
	defer cancel()
	match, err := d.finder.Find(stepCtx, d.page, role, c)
	if err != nil {
		return nil, err
	}
	attempt.Strategies[string(role)] = match.Strategy
	return match.Element, nil
}

// step runs fn under its own timeout.
func (d *Driver) step(ctx context.Context, fn func(ctx context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, d.stepTimeout())
	defer cancel()
	return fn(stepCtx)
}

func (d *Driver) stepTimeout() time.Duration {
	if d.target.StepTimeout > 0 {
		return d.target.StepTimeout
	}
	return defaultStepTimeout
}

// checkpoint captures a screenshot. Failures are logged only.
func (d *Driver) checkpoint(ctx context.Context, attempt *schemas.ValidationAttempt, stage string, log *zap.Logger) {
	if d.shots == nil {
		return
	}
	var path string
	err := d.step(ctx, func(ctx context.Context) error {
		var err error
		path, err = d.shots.Capture(ctx, d.page, stage, attempt.Identifier)
		return err
	})
	if err != nil {
		log.Warn("Screenshot failed.", observability.Stage(stage), zap.Error(err))
		return
	}
	if path != "" {
		attempt.Screenshots[stage] = path
	}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
