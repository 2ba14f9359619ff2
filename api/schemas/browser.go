package schemas

import (
	"context"
	"errors"
)

// -- Browser Capability Interfaces --

// ErrTargetUnreachable is wrapped by Page.Navigate when the page could not be
// reached at all (DNS, refused connection, no network). A navigation that
// merely timed out does not wrap it.
var ErrTargetUnreachable = errors.New("target unreachable")

// Page is the slice of a live browser tab the validation pipeline relies on.
// The production implementation drives Chrome over the DevTools protocol; tests
// use an in-memory document. Implementations must not mutate the page from any
// read-only method (QueryAll, URL, Text, Screenshot).
type Page interface {
	// Navigate loads the URL and returns once the navigation-complete event fired.
	// Network-level failures wrap ErrTargetUnreachable.
	Navigate(ctx context.Context, url string) error
	// QueryAll returns every element matching the CSS selector in document order.
	// An empty result is not an error.
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	// URL reports the current location of the top-level frame.
	URL(ctx context.Context) (string, error)
	// Text returns the text of every node in the document outside script,
	// style and noscript, including elements hidden with CSS. Pre-rendered
	// but hidden error templates therefore show up in it.
	Text(ctx context.Context) (string, error)
	// Screenshot captures the visible viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
}

// Element is a handle to a single DOM element of a Page. Handles can become
// detached when the page re-renders; methods then return an error and callers
// are expected to treat the element as gone.
type Element interface {
	// Tag is the lower-cased tag name, fixed when the handle was created.
	Tag() string
	// Describe is a short human readable label used for logging.
	Describe() string
	// Attribute reads the live value of an attribute.
	Attribute(ctx context.Context, name string) (string, bool, error)
	// Text returns the element's rendered text, or its value for form controls.
	Text(ctx context.Context) (string, error)
	// Visible reports whether the element is rendered and not hidden by styling.
	Visible(ctx context.Context) (bool, error)
	// ComputedStyle returns the computed values of the requested CSS properties.
	ComputedStyle(ctx context.Context, properties ...string) (map[string]string, error)
	// NextSibling returns the next element sibling in document order, or nil.
	NextSibling(ctx context.Context) (Element, error)
	// FormAncestor returns the closest enclosing <form>, or nil.
	FormAncestor(ctx context.Context) (Element, error)
	// QueryAll searches the element's subtree.
	QueryAll(ctx context.Context, selector string) ([]Element, error)

	// Hover moves the pointer over the element's center.
	Hover(ctx context.Context) error
	// Click performs a pointer click on the element's center.
	Click(ctx context.Context) error
	// Fill clears the control and types text into it.
	Fill(ctx context.Context, text string) error
}
