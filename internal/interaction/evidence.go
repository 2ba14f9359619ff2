package interaction

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/xkilldash9x/claimgate/api/schemas"
	"github.com/xkilldash9x/claimgate/internal/discovery"
	"go.uber.org/zap"
)

// styleProperties are checked for an error tint on the identifier input.
var styleProperties = []string{"border-color", "border-top-color", "border-bottom-color", "outline-color", "color", "box-shadow"}

var (
	rgbPattern = regexp.MustCompile(`rgba?\(\s*(\d{1,3})\s*,\s*(\d{1,3})\s*,\s*(\d{1,3})`)
	hexPattern = regexp.MustCompile(`#([0-9a-f]{6}|[0-9a-f]{3})\b`)
)

// collectEvidence reads the post-submit state. Page text is only fetched
// while the input is still visible; a vanished input is already the strong
// positive signal.
func (d *Driver) collectEvidence(ctx context.Context, input schemas.Element, log *zap.Logger) (schemas.Evidence, error) {
	var ev schemas.Evidence

	visible, current, err := d.stillVisible(ctx, input)
	if err != nil {
		return ev, err
	}
	ev.InputVisible = visible

	stepCtx, cancel := context.WithTimeout(ctx, d.stepTimeout())
	defer cancel()

	ev.CurrentURL, err = d.page.URL(stepCtx)
	if err != nil {
		return ev, err
	}
	if !visible {
		return ev, nil
	}

	ev.PageContent, err = d.page.Text(stepCtx)
	if err != nil {
		return ev, err
	}
	ev.ErrorStyling = d.errorStyled(stepCtx, current, log)
	return ev, nil
}

// stillVisible checks the original handle and, if the page re-rendered it
// away, looks the input up again. It returns the live handle when visible.
func (d *Driver) stillVisible(ctx context.Context, input schemas.Element) (bool, schemas.Element, error) {
	stepCtx, cancel := context.WithTimeout(ctx, d.stepTimeout())
	defer cancel()

	visible, err := input.Visible(stepCtx)
	if err == nil {
		return visible, input, nil
	}
	if ctx.Err() != nil {
		return false, nil, ctx.Err()
	}

	match, err := d.finder.Find(stepCtx, d.page, discovery.RoleIdentifierInput, discovery.Constraints{})
	switch {
	case err == nil:
		return true, match.Element, nil
	case errors.Is(err, discovery.ErrNotFound):
		return false, nil, nil
	default:
		return false, nil, err
	}
}

// errorStyled reports whether the input is marked as invalid through ARIA,
// its class list or a red computed tint. Lookup failures count as unstyled.
func (d *Driver) errorStyled(ctx context.Context, el schemas.Element, log *zap.Logger) bool {
	if v, _, err := el.Attribute(ctx, "aria-invalid"); err == nil && strings.EqualFold(v, "true") {
		return true
	}

	if class, _, err := el.Attribute(ctx, "class"); err == nil {
		for _, c := range strings.Fields(strings.ToLower(class)) {
			for _, ec := range d.errorClasses {
				if ec != "" && strings.Contains(c, strings.ToLower(ec)) {
					return true
				}
			}
		}
	}

	style, err := el.ComputedStyle(ctx, styleProperties...)
	if err != nil {
		log.Debug("Computed style unavailable.", zap.Error(err))
		return false
	}
	for _, prop := range styleProperties {
		if reddish(style[prop]) {
			return true
		}
	}
	return false
}

// reddish reports whether a CSS color value is dominated by red, e.g. the
// rgb(220, 53, 69) most UI kits use for invalid fields.
func reddish(value string) bool {
	value = strings.ToLower(value)
	if value == "" {
		return false
	}
	if value == "red" || strings.HasPrefix(value, "red ") || strings.Contains(value, " red") {
		return true
	}
	for _, m := range rgbPattern.FindAllStringSubmatch(value, -1) {
		r, _ := strconv.Atoi(m[1])
		g, _ := strconv.Atoi(m[2])
		b, _ := strconv.Atoi(m[3])
		if isRed(r, g, b) {
			return true
		}
	}
	for _, m := range hexPattern.FindAllStringSubmatch(value, -1) {
		hex := m[1]
		if len(hex) == 3 {
			hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
		}
		n, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			continue
		}
		if isRed(int(n>>16&0xff), int(n>>8&0xff), int(n&0xff)) {
			return true
		}
	}
	return false
}

func isRed(r, g, b int) bool {
	return r >= 150 && g < 110 && b < 110 && r-g > 80
}
