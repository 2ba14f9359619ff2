// internal/discovery/engine.go
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/claimgate/api/schemas"
	"github.com/xkilldash9x/claimgate/internal/config"
	"go.uber.org/zap"
)

// ErrNotFound is returned by Find once every strategy for a role failed.
var ErrNotFound = errors.New("element not found")

// Role names what the caller is looking for on the page.
type Role string

const (
	RoleIdentifierInput Role = "identifier-input"
	RoleSubmitAction    Role = "submit-action"
)

const defaultPerSelectorTimeout = 2 * time.Second

// Constraints narrow a search. Anchor is the already resolved identifier
// input and is required by the sibling and form strategies of RoleSubmitAction.
// Empty keyword lists fall back to the engine's configured lists.
type Constraints struct {
	Anchor      schemas.Element
	Affirmative []string
	Excluded    []string
}

// Strategy is one named lookup. Run returns (nil, nil) when it has no match;
// errors are reserved for failures worth logging.
type Strategy struct {
	Name string
	Run  func(ctx context.Context, s *Search) (schemas.Element, error)
}

// Match is a resolved element and the strategy that found it.
type Match struct {
	Element  schemas.Element
	Strategy string
}

// Engine tries the strategies registered for a role strictly in order and
// returns the first hit. It never mutates the page.
type Engine struct {
	logger      *zap.Logger
	timeout     time.Duration
	affirmative []string
	excluded    []string
	strategies  map[Role][]Strategy
}

// NewEngine builds an engine with the default strategy chains.
func NewEngine(cfg config.DiscoveryConfig, logger *zap.Logger) *Engine {
	timeout := cfg.PerSelectorTimeout
	if timeout <= 0 {
		timeout = defaultPerSelectorTimeout
	}
	return &Engine{
		logger:      logger.Named("discovery"),
		timeout:     timeout,
		affirmative: cfg.AffirmativeKeywords,
		excluded:    cfg.ExcludedKeywords,
		strategies: map[Role][]Strategy{
			RoleIdentifierInput: IdentifierInputStrategies(),
			RoleSubmitAction:    SubmitActionStrategies(),
		},
	}
}

// Strategies returns the ordered chain for role.
func (e *Engine) Strategies(role Role) []Strategy {
	return e.strategies[role]
}

// Find resolves role on page. Individual strategy failures are logged and
// skipped; only a canceled ctx or exhaustion of the chain is returned.
func (e *Engine) Find(ctx context.Context, page schemas.Page, role Role, c Constraints) (*Match, error) {
	chain, ok := e.strategies[role]
	if !ok {
		return nil, fmt.Errorf("unknown discovery role %q", role)
	}
	if len(c.Affirmative) == 0 {
		c.Affirmative = e.affirmative
	}
	if len(c.Excluded) == 0 {
		c.Excluded = e.excluded
	}

	search := &Search{
		Page:        page,
		Constraints: c,
		affirmative: NewKeywords(c.Affirmative),
		excluded:    NewKeywords(c.Excluded),
		timeout:     e.timeout,
		logger:      e.logger,
	}

	for _, strategy := range chain {
		el, err := strategy.Run(ctx, search)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err != nil {
			e.logger.Debug("Strategy failed.", zap.String("role", string(role)), zap.String("strategy", strategy.Name), zap.Error(err))
			continue
		}
		if el == nil {
			e.logger.Debug("Strategy found nothing.", zap.String("role", string(role)), zap.String("strategy", strategy.Name))
			continue
		}
		e.logger.Debug("Element resolved.",
			zap.String("role", string(role)),
			zap.String("strategy", strategy.Name),
			zap.String("element", el.Describe()),
		)
		return &Match{Element: el, Strategy: strategy.Name}, nil
	}
	return nil, fmt.Errorf("%w: %s after %d strategies", ErrNotFound, role, len(chain))
}
