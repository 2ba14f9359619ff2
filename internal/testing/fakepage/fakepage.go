// Package fakepage is an in-memory schemas.Page over a goquery document, for
// exercising discovery and the interaction driver without a browser.
package fakepage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/xkilldash9x/claimgate/api/schemas"
	"github.com/xkilldash9x/claimgate/internal/browser"
	"golang.org/x/net/html"
)

// ErrDetached is returned by element methods once the document was replaced.
var ErrDetached = errors.New("element is detached from the document")

// Hook mutates the page in response to a pointer action.
type Hook func(p *Page)

type hook struct {
	selector string
	fn       Hook
}

// Page implements schemas.Page. It is not safe for concurrent use.
type Page struct {
	doc *goquery.Document
	url string

	hoverHooks []hook
	clickHooks []hook
	actions    []string

	// NavigateErr, when set, is returned by Navigate.
	NavigateErr error
	// OnNavigate, when set, replaces the document after a successful Navigate.
	OnNavigate Hook
	// QueryErrs injects errors for specific page-level selectors.
	QueryErrs map[string]error
	// ScreenshotErr, when set, is returned by Screenshot.
	ScreenshotErr error
}

var _ schemas.Page = (*Page)(nil)

// New parses markup into a page located at "about:blank".
func New(markup string) *Page {
	p := &Page{url: "about:blank", QueryErrs: map[string]error{}}
	p.SetHTML(markup)
	return p
}

// SetHTML replaces the whole document. Existing handles become detached.
func (p *Page) SetHTML(markup string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		panic(fmt.Sprintf("fakepage: bad markup: %v", err))
	}
	p.doc = doc
}

// SetURL changes the reported location.
func (p *Page) SetURL(u string) { p.url = u }

// Doc exposes the document so hooks can mutate it in place.
func (p *Page) Doc() *goquery.Document { return p.doc }

// OnHover registers fn to run when an element matching selector is hovered.
func (p *Page) OnHover(selector string, fn Hook) {
	p.hoverHooks = append(p.hoverHooks, hook{selector, fn})
}

// OnClick registers fn to run when an element matching selector is clicked.
func (p *Page) OnClick(selector string, fn Hook) {
	p.clickHooks = append(p.clickHooks, hook{selector, fn})
}

// Actions lists every mutating call in order, e.g. "click button#go".
func (p *Page) Actions() []string {
	return append([]string(nil), p.actions...)
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.actions = append(p.actions, "navigate "+url)
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.url = url
	if p.OnNavigate != nil {
		p.OnNavigate(p)
	}
	return nil
}

func (p *Page) QueryAll(ctx context.Context, selector string) ([]schemas.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.QueryErrs[selector]; err != nil {
		return nil, err
	}
	return p.wrap(p.doc.Find(selector)), nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	return p.url, ctx.Err()
}

func (p *Page) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	markup, err := goquery.OuterHtml(p.doc.Selection)
	if err != nil {
		return "", err
	}
	return browser.ExtractText(markup)
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.ScreenshotErr != nil {
		return nil, p.ScreenshotErr
	}
	return []byte("\x89PNG fake"), nil
}

func (p *Page) wrap(sel *goquery.Selection) []schemas.Element {
	out := make([]schemas.Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Element{page: p, sel: s})
	})
	return out
}

func (p *Page) attached(n *html.Node) bool {
	root := n
	for root.Parent != nil {
		root = root.Parent
	}
	return len(p.doc.Nodes) > 0 && root == p.doc.Nodes[0]
}

func (p *Page) fire(hooks []hook, s *goquery.Selection) {
	for _, h := range hooks {
		if s.Is(h.selector) {
			h.fn(p)
		}
	}
}
