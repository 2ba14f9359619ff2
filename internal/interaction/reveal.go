package interaction

import (
	"context"
	"strings"

	"github.com/xkilldash9x/claimgate/api/schemas"
	"github.com/xkilldash9x/claimgate/internal/discovery"
	"go.uber.org/zap"
)

// loginTriggerSelector casts a wide net; candidates are then filtered by text.
const loginTriggerSelector = `a, button, [role="button"], [class*="login"], [id*="login"], [class*="signin"], [class*="account"], [class*="user"]`

// maxTriggerLabel drops container elements whose text merely includes "login".
const maxTriggerLabel = 40

// revealLogin hovers, then clicks, login-ish triggers until the identifier
// input becomes visible. Not revealing anything is not an error: the input
// may be rendered inline or inside a modal that discovery searches anyway.
func (d *Driver) revealLogin(ctx context.Context, log *zap.Logger) error {
	if d.inputVisible(ctx) {
		log.Debug("Identifier input already visible.", zap.String("stage", "reveal"))
		return nil
	}

	candidates := d.loginCandidates(ctx)
	log.Debug("Login trigger candidates collected.", zap.Int("count", len(candidates)))

	for _, c := range candidates {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := d.step(ctx, c.Hover); err != nil {
			log.Debug("Hover failed.", zap.String("element", c.Describe()), zap.Error(err))
			continue
		}
		if err := d.sleep(ctx, d.reveal.HoverSettle); err != nil {
			return err
		}
		if d.inputVisible(ctx) {
			log.Info("Login surface revealed by hover.", zap.String("element", c.Describe()))
			return nil
		}
	}

	for _, c := range candidates {
		if !clickable(ctx, c) {
			continue
		}
		if err := d.step(ctx, c.Click); err != nil {
			log.Debug("Click failed.", zap.String("element", c.Describe()), zap.Error(err))
			continue
		}
		if err := d.sleep(ctx, d.reveal.ClickSettle); err != nil {
			return err
		}
		if d.inputVisible(ctx) {
			log.Info("Login surface revealed by click.", zap.String("element", c.Describe()))
			return nil
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	log.Warn("Login surface was not revealed; continuing with discovery.", zap.Int("candidates", len(candidates)))
	return nil
}

// inputVisible is the re-check after each reveal action.
func (d *Driver) inputVisible(ctx context.Context) bool {
	stepCtx, cancel := context.WithTimeout(ctx, d.stepTimeout())
	defer cancel()
	_, err := d.finder.Find(stepCtx, d.page, discovery.RoleIdentifierInput, discovery.Constraints{})
	return err == nil
}

// loginCandidates returns up to reveal.max_candidates visible elements whose
// caption, id or class names a login action.
func (d *Driver) loginCandidates(ctx context.Context) []schemas.Element {
	limit := d.reveal.MaxCandidates
	if limit <= 0 {
		return nil
	}

	stepCtx, cancel := context.WithTimeout(ctx, d.stepTimeout())
	defer cancel()
	els, err := d.page.QueryAll(stepCtx, loginTriggerSelector)
	if err != nil {
		d.logger.Debug("Login trigger query failed.", zap.Error(err))
		return nil
	}

	out := make([]schemas.Element, 0, limit)
	for _, el := range els {
		if len(out) >= limit || stepCtx.Err() != nil {
			break
		}
		if !d.looksLikeLogin(stepCtx, el) {
			continue
		}
		if visible, err := el.Visible(stepCtx); err != nil || !visible {
			continue
		}
		out = append(out, el)
	}
	return out
}

func (d *Driver) looksLikeLogin(ctx context.Context, el schemas.Element) bool {
	text, err := el.Text(ctx)
	if err != nil {
		return false
	}
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > maxTriggerLabel {
		return false
	}
	if _, ok := d.loginKeywords.Match(text); ok {
		return true
	}
	for _, attr := range []string{"aria-label", "title", "id", "class"} {
		v, _, err := el.Attribute(ctx, attr)
		if err != nil || v == "" {
			continue
		}
		// Keywords match on word boundaries, so "header-login-btn" qualifies.
		if _, ok := d.loginKeywords.Match(v); ok {
			return true
		}
	}
	return false
}

// clickable limits the click fallback to elements a user would click; hover
// candidates may also be plain containers.
func clickable(ctx context.Context, el schemas.Element) bool {
	switch el.Tag() {
	case "a", "button", "input":
		return true
	}
	role, _, err := el.Attribute(ctx, "role")
	return err == nil && strings.EqualFold(role, "button")
}
