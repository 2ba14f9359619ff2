package discovery

import (
	"context"
	"strings"

	"github.com/xkilldash9x/claimgate/api/schemas"
)

// -- Identifier input --

const (
	genericInputSelector = `input[type="text"], input[type="number"], input[type="tel"], input:not([type])`
	anyInputSelector     = `input`
	modalSelector        = `dialog, [role="dialog"], [aria-modal="true"], .modal, [class*="modal"], [class*="dialog"], [class*="popup"]`
)

// textLikeTypes are the input types an identifier can be typed into.
var textLikeTypes = map[string]bool{"": true, "text": true, "number": true, "tel": true, "search": true, "email": true}

// identifierTokens are attribute words that mark an identifier field.
var identifierTokens = map[string]bool{
	"id": true, "uid": true, "userid": true, "user": true, "username": true,
	"player": true, "playerid": true, "account": true, "accountid": true, "unique": true, "uniqueid": true,
}

// IdentifierInputStrategies is the ordered chain for RoleIdentifierInput.
func IdentifierInputStrategies() []Strategy {
	return []Strategy{
		{Name: "generic-input", Run: findGenericInput},
		{Name: "placeholder-pattern", Run: findByPlaceholder},
		{Name: "name-class-pattern", Run: findByNameOrClass},
		{Name: "modal-scoped", Run: findInModal},
	}
}

func (s *Search) textLike(ctx context.Context, el schemas.Element) bool {
	return el.Tag() == "input" && textLikeTypes[strings.ToLower(s.Attr(ctx, el, "type"))]
}

// findGenericInput takes the first visible plain text or number input that is
// not a site search box.
func findGenericInput(ctx context.Context, s *Search) (schemas.Element, error) {
	return s.FirstVisible(ctx, s.All(ctx, genericInputSelector), func(el schemas.Element) bool {
		for _, attr := range []string{"name", "id", "placeholder", "aria-label", "role"} {
			for _, tok := range tokens(s.Attr(ctx, el, attr)) {
				if tok == "search" || tok == "q" {
					return false
				}
			}
		}
		return true
	}), nil
}

func findByPlaceholder(ctx context.Context, s *Search) (schemas.Element, error) {
	return s.FirstVisible(ctx, s.All(ctx, `input[placeholder]`), func(el schemas.Element) bool {
		if !s.textLike(ctx, el) {
			return false
		}
		placeholder := strings.ToLower(s.Attr(ctx, el, "placeholder"))
		if strings.Contains(placeholder, "user") {
			return true
		}
		for _, tok := range tokens(placeholder) {
			if tok == "id" || tok == "uid" {
				return true
			}
		}
		return false
	}), nil
}

func findByNameOrClass(ctx context.Context, s *Search) (schemas.Element, error) {
	return s.FirstVisible(ctx, s.All(ctx, anyInputSelector), func(el schemas.Element) bool {
		if !s.textLike(ctx, el) {
			return false
		}
		for _, attr := range []string{"name", "id", "class"} {
			for _, tok := range tokens(s.Attr(ctx, el, attr)) {
				if identifierTokens[tok] {
					return true
				}
			}
		}
		return false
	}), nil
}

// findInModal searches only inside visible dialog containers, for login
// surfaces rendered as overlays.
func findInModal(ctx context.Context, s *Search) (schemas.Element, error) {
	for _, modal := range s.All(ctx, modalSelector) {
		if !s.Visible(ctx, modal) {
			continue
		}
		inputs := s.Under(ctx, modal, anyInputSelector)
		if el := s.FirstVisible(ctx, inputs, func(el schemas.Element) bool { return s.textLike(ctx, el) }); el != nil {
			return el, nil
		}
	}
	return nil, nil
}

// -- Submit action --

const (
	buttonSelector = `button, input[type="submit"], input[type="button"], input[type="image"], [role="button"]`
	// fallbackSelector widens buttonSelector to anchors styled as buttons.
	fallbackSelector = buttonSelector + `, a`
)

var primaryClassTokens = map[string]bool{
	"primary": true, "submit": true, "confirm": true, "cta": true, "go": true, "login": true,
}

// SubmitActionStrategies is the ordered chain for RoleSubmitAction.
func SubmitActionStrategies() []Strategy {
	return []Strategy{
		{Name: "adjacent-sibling", Run: findAdjacentButton},
		{Name: "primary-styled", Run: findPrimaryButton},
		{Name: "form-ancestor", Run: findFormButton},
		{Name: "global-fallback", Run: findAnyButton},
	}
}

func (s *Search) buttonLike(ctx context.Context, el schemas.Element) bool {
	switch el.Tag() {
	case "button":
		return true
	case "input":
		switch strings.ToLower(s.Attr(ctx, el, "type")) {
		case "submit", "button", "image":
			return true
		}
		return false
	}
	if strings.EqualFold(s.Attr(ctx, el, "role"), "button") {
		return true
	}
	if el.Tag() == "a" {
		for _, tok := range tokens(s.Attr(ctx, el, "class")) {
			if tok == "btn" || tok == "button" {
				return true
			}
		}
	}
	return false
}

func (s *Search) primaryStyled(ctx context.Context, el schemas.Element) bool {
	if strings.EqualFold(s.Attr(ctx, el, "type"), "submit") {
		return true
	}
	for _, tok := range tokens(s.Attr(ctx, el, "class")) {
		if primaryClassTokens[tok] {
			return true
		}
	}
	return false
}

// acceptable is the shared keyword gate for strategies 2-4.
func (s *Search) acceptable(ctx context.Context, el schemas.Element) bool {
	return s.Affirmative(s.Label(ctx, el)) && !s.Excluded(s.Descriptor(ctx, el))
}

// findAdjacentButton accepts the input's next element sibling when it is a
// button captioned with an affirmative keyword.
func findAdjacentButton(ctx context.Context, s *Search) (schemas.Element, error) {
	anchor := s.Constraints.Anchor
	if anchor == nil {
		return nil, nil
	}
	sibling, err := anchor.NextSibling(ctx)
	if err != nil || sibling == nil {
		return nil, err
	}
	if !s.buttonLike(ctx, sibling) || !s.Affirmative(s.Label(ctx, sibling)) {
		return nil, nil
	}
	if !s.Visible(ctx, sibling) {
		return nil, nil
	}
	return sibling, nil
}

// findPrimaryButton skips anything carrying an excluded keyword so a
// federated login "Go" button is never mistaken for the form submit.
func findPrimaryButton(ctx context.Context, s *Search) (schemas.Element, error) {
	return s.FirstVisible(ctx, s.All(ctx, buttonSelector), func(el schemas.Element) bool {
		return s.primaryStyled(ctx, el) && s.acceptable(ctx, el)
	}), nil
}

func findFormButton(ctx context.Context, s *Search) (schemas.Element, error) {
	anchor := s.Constraints.Anchor
	if anchor == nil {
		return nil, nil
	}
	form, err := anchor.FormAncestor(ctx)
	if err != nil || form == nil {
		return nil, err
	}
	return s.FirstVisible(ctx, s.Under(ctx, form, buttonSelector), func(el schemas.Element) bool {
		return s.acceptable(ctx, el)
	}), nil
}

// findAnyButton is the last resort: any visible button-like element with an
// affirmative caption, or an unlabeled submit input.
func findAnyButton(ctx context.Context, s *Search) (schemas.Element, error) {
	return s.FirstVisible(ctx, s.All(ctx, fallbackSelector), func(el schemas.Element) bool {
		if !s.buttonLike(ctx, el) {
			return false
		}
		if s.Excluded(s.Descriptor(ctx, el)) {
			return false
		}
		if s.Affirmative(s.Label(ctx, el)) {
			return true
		}
		return el.Tag() == "input" && strings.EqualFold(s.Attr(ctx, el, "type"), "submit")
	}), nil
}
