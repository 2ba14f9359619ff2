package fakepage

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/xkilldash9x/claimgate/api/schemas"
)

// hiddenClasses are utility classes the fake treats as display:none.
var hiddenClasses = []string{"hidden", "d-none", "is-hidden"}

// Element implements schemas.Element over a single-node selection.
type Element struct {
	page *Page
	sel  *goquery.Selection
}

var _ schemas.Element = (*Element)(nil)

func (e *Element) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !e.page.attached(e.sel.Nodes[0]) {
		return ErrDetached
	}
	return nil
}

func (e *Element) Tag() string { return goquery.NodeName(e.sel) }

func (e *Element) Describe() string {
	d := e.Tag()
	if id, ok := e.sel.Attr("id"); ok && id != "" {
		d += "#" + id
	}
	if class := strings.Fields(e.sel.AttrOr("class", "")); len(class) > 0 {
		d += "." + strings.Join(class, ".")
	}
	return d
}

func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := e.check(ctx); err != nil {
		return "", false, err
	}
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	if err := e.check(ctx); err != nil {
		return "", err
	}
	switch e.Tag() {
	case "input", "textarea", "select":
		return e.sel.AttrOr("value", ""), nil
	}
	return strings.Join(strings.Fields(e.sel.Text()), " "), nil
}

func (e *Element) Visible(ctx context.Context) (bool, error) {
	if err := e.check(ctx); err != nil {
		return false, err
	}
	if e.Tag() == "input" && strings.EqualFold(e.sel.AttrOr("type", ""), "hidden") {
		return false, nil
	}
	for s := e.sel; s.Length() > 0; s = s.Parent() {
		if isHidden(s) {
			return false, nil
		}
	}
	return true, nil
}

func isHidden(s *goquery.Selection) bool {
	if _, ok := s.Attr("hidden"); ok {
		return true
	}
	style := parseStyle(s.AttrOr("style", ""))
	if style["display"] == "none" || style["visibility"] == "hidden" || style["opacity"] == "0" {
		return true
	}
	for _, c := range hiddenClasses {
		if s.HasClass(c) {
			return true
		}
	}
	return false
}

func (e *Element) ComputedStyle(ctx context.Context, properties ...string) (map[string]string, error) {
	if err := e.check(ctx); err != nil {
		return nil, err
	}
	declared := parseStyle(e.sel.AttrOr("style", ""))
	out := make(map[string]string, len(properties))
	for _, p := range properties {
		out[p] = declared[p]
	}
	return out, nil
}

// parseStyle reads an inline style attribute into lower-cased declarations.
func parseStyle(style string) map[string]string {
	out := map[string]string{}
	for _, decl := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(k))] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

func (e *Element) NextSibling(ctx context.Context) (schemas.Element, error) {
	if err := e.check(ctx); err != nil {
		return nil, err
	}
	next := e.sel.Next()
	if next.Length() == 0 {
		return nil, nil
	}
	return &Element{page: e.page, sel: next}, nil
}

func (e *Element) FormAncestor(ctx context.Context) (schemas.Element, error) {
	if err := e.check(ctx); err != nil {
		return nil, err
	}
	form := e.sel.Closest("form")
	if form.Length() == 0 {
		return nil, nil
	}
	return &Element{page: e.page, sel: form}, nil
}

func (e *Element) QueryAll(ctx context.Context, selector string) ([]schemas.Element, error) {
	if err := e.check(ctx); err != nil {
		return nil, err
	}
	return e.page.wrap(e.sel.Find(selector)), nil
}

func (e *Element) Hover(ctx context.Context) error {
	if err := e.check(ctx); err != nil {
		return err
	}
	e.page.actions = append(e.page.actions, "hover "+e.Describe())
	e.page.fire(e.page.hoverHooks, e.sel)
	return nil
}

func (e *Element) Click(ctx context.Context) error {
	if err := e.check(ctx); err != nil {
		return err
	}
	e.page.actions = append(e.page.actions, "click "+e.Describe())
	e.page.fire(e.page.clickHooks, e.sel)
	return nil
}

func (e *Element) Fill(ctx context.Context, text string) error {
	if err := e.check(ctx); err != nil {
		return err
	}
	e.sel.SetAttr("value", text)
	e.page.actions = append(e.page.actions, "fill "+e.Describe()+"="+text)
	return nil
}
