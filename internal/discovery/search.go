package discovery

import (
	"context"
	"strings"
	"time"

	"github.com/xkilldash9x/claimgate/api/schemas"
	"go.uber.org/zap"
)

// Search is the read-only view of the page a strategy works against. Every
// query it issues is bounded by the per-selector timeout and never fails:
// errors are logged and yield an empty result.
type Search struct {
	Page        schemas.Page
	Constraints Constraints

	affirmative Keywords
	excluded    Keywords
	timeout     time.Duration
	logger      *zap.Logger
}

// All returns page-level matches for selector.
func (s *Search) All(ctx context.Context, selector string) []schemas.Element {
	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	els, err := s.Page.QueryAll(qctx, selector)
	if err != nil {
		s.logger.Debug("Selector failed.", zap.String("selector", selector), zap.Error(err))
		return nil
	}
	return els
}

// Under returns matches for selector inside root.
func (s *Search) Under(ctx context.Context, root schemas.Element, selector string) []schemas.Element {
	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	els, err := root.QueryAll(qctx, selector)
	if err != nil {
		s.logger.Debug("Scoped selector failed.", zap.String("selector", selector), zap.String("root", root.Describe()), zap.Error(err))
		return nil
	}
	return els
}

// Visible reports visibility, treating any error as hidden.
func (s *Search) Visible(ctx context.Context, el schemas.Element) bool {
	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ok, err := el.Visible(qctx)
	if err != nil {
		s.logger.Debug("Visibility check failed.", zap.String("element", el.Describe()), zap.Error(err))
		return false
	}
	return ok
}

// FirstVisible returns the first element in els that keep accepts and that is
// visible. keep may be nil.
func (s *Search) FirstVisible(ctx context.Context, els []schemas.Element, keep func(schemas.Element) bool) schemas.Element {
	for _, el := range els {
		if ctx.Err() != nil {
			return nil
		}
		if keep != nil && !keep(el) {
			continue
		}
		if s.Visible(ctx, el) {
			return el
		}
	}
	return nil
}

// Attr reads an attribute, returning "" on absence or error.
func (s *Search) Attr(ctx context.Context, el schemas.Element, name string) string {
	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	v, _, err := el.Attribute(qctx, name)
	if err != nil {
		return ""
	}
	return v
}

// Label is the user-facing caption of an element: its text (or value for
// form controls) plus aria-label and title, lower-cased.
func (s *Search) Label(ctx context.Context, el schemas.Element) string {
	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	parts := make([]string, 0, 4)
	if text, err := el.Text(qctx); err == nil {
		parts = append(parts, text)
	}
	for _, attr := range []string{"aria-label", "title", "value"} {
		if v := s.Attr(ctx, el, attr); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.ToLower(strings.Join(strings.Fields(strings.Join(parts, " ")), " "))
}

// Descriptor is Label plus the identifying attributes, used for exclusion
// checks where a provider name may only appear in a class or id.
func (s *Search) Descriptor(ctx context.Context, el schemas.Element) string {
	parts := []string{s.Label(ctx, el)}
	for _, attr := range []string{"id", "class", "name", "data-provider", "href"} {
		if v := s.Attr(ctx, el, attr); v != "" {
			parts = append(parts, strings.ToLower(v))
		}
	}
	return strings.Join(parts, " ")
}

// Affirmative reports whether the label matches an affirmative keyword.
func (s *Search) Affirmative(label string) bool {
	_, ok := s.affirmative.Match(label)
	return ok
}

// Excluded reports whether the descriptor matches an excluded keyword.
func (s *Search) Excluded(descriptor string) bool {
	_, ok := s.excluded.Match(descriptor)
	return ok
}
