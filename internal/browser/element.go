package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/claimgate/api/schemas"
)

// ErrNoBox is returned when an element has no layout box to point at.
var ErrNoBox = errors.New("element has no content box")

// JS evaluated with `this` bound to the element.
const (
	jsText = `function() {
		if (this.tagName === 'INPUT' || this.tagName === 'TEXTAREA' || this.tagName === 'SELECT') {
			return this.value || '';
		}
		return (this.innerText || this.textContent || '').trim();
	}`

	// Mirrors what a user can see: attached, laid out and not styled away.
	jsVisible = `function() {
		if (!this.isConnected) return false;
		const s = window.getComputedStyle(this);
		if (s.display === 'none' || s.visibility === 'hidden' || s.visibility === 'collapse') return false;
		if (parseFloat(s.opacity) === 0) return false;
		const r = this.getBoundingClientRect();
		return r.width > 0 && r.height > 0;
	}`

	jsComputedStyle = `function(props) {
		const s = window.getComputedStyle(this);
		const out = {};
		for (const p of props) out[p] = s.getPropertyValue(p);
		return out;
	}`

	jsClear = `function() {
		this.value = '';
		this.dispatchEvent(new Event('input', { bubbles: true }));
	}`

	jsChanged = `function() {
		this.dispatchEvent(new Event('change', { bubbles: true }));
	}`

	jsNextSibling  = `function() { return this.nextElementSibling; }`
	jsFormAncestor = `function() { return this.closest('form'); }`
)

// element is a schemas.Element backed by a DevTools node id.
type element struct {
	session *Session
	node    *cdp.Node
}

var _ schemas.Element = (*element)(nil)

func (e *element) Tag() string { return strings.ToLower(e.node.NodeName) }

func (e *element) Describe() string {
	var b strings.Builder
	b.WriteString(e.Tag())
	if id := e.node.AttributeValue("id"); id != "" {
		b.WriteString("#" + id)
	}
	if class := strings.Fields(e.node.AttributeValue("class")); len(class) > 0 {
		b.WriteString("." + strings.Join(class, "."))
	}
	return b.String()
}

func (e *element) do(ctx context.Context, fn func(ctx context.Context) error) error {
	return e.session.run(ctx, chromedp.ActionFunc(fn))
}

func (e *element) call(ctx context.Context, fn string, res interface{}, args ...interface{}) error {
	return e.do(ctx, func(ctx context.Context) error {
		return callOnNode(ctx, e.node, fn, res, args...)
	})
}

// callOnNode runs fn with `this` bound to node and decodes its return value
// into res. The remote handle is released afterwards.
func callOnNode(ctx context.Context, node *cdp.Node, fn string, res interface{}, args ...interface{}) error {
	obj, err := dom.ResolveNode().WithNodeID(node.NodeID).Do(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

	bind := func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
		return p.WithObjectID(obj.ObjectID)
	}
	return chromedp.CallFunctionOn(fn, res, bind, args...).Do(ctx)
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	var attrs []string
	err := e.do(ctx, func(ctx context.Context) error {
		var err error
		attrs, err = dom.GetAttributes(e.node.NodeID).Do(ctx)
		return err
	})
	if err != nil {
		return "", false, fmt.Errorf("attributes of %s: %w", e.Describe(), err)
	}
	for i := 0; i+1 < len(attrs); i += 2 {
		if strings.EqualFold(attrs[i], name) {
			return attrs[i+1], true, nil
		}
	}
	return "", false, nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	var text string
	if err := e.call(ctx, jsText, &text); err != nil {
		return "", fmt.Errorf("text of %s: %w", e.Describe(), err)
	}
	return text, nil
}

func (e *element) Visible(ctx context.Context) (bool, error) {
	var visible bool
	if err := e.call(ctx, jsVisible, &visible); err != nil {
		return false, fmt.Errorf("visibility of %s: %w", e.Describe(), err)
	}
	return visible, nil
}

func (e *element) ComputedStyle(ctx context.Context, properties ...string) (map[string]string, error) {
	style := make(map[string]string, len(properties))
	if len(properties) == 0 {
		return style, nil
	}
	if err := e.call(ctx, jsComputedStyle, &style, properties); err != nil {
		return nil, fmt.Errorf("computed style of %s: %w", e.Describe(), err)
	}
	return style, nil
}

func (e *element) NextSibling(ctx context.Context) (schemas.Element, error) {
	return e.relative(ctx, jsNextSibling)
}

func (e *element) FormAncestor(ctx context.Context) (schemas.Element, error) {
	return e.relative(ctx, jsFormAncestor)
}

// relative evaluates fn on the element and turns the returned DOM node, if
// any, into a new handle.
func (e *element) relative(ctx context.Context, fn string) (schemas.Element, error) {
	var found *cdp.Node
	err := e.do(ctx, func(ctx context.Context) error {
		self, err := dom.ResolveNode().WithNodeID(e.node.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = runtime.ReleaseObject(self.ObjectID).Do(ctx) }()

		res, exc, err := runtime.CallFunctionOn(fn).WithObjectID(self.ObjectID).Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("script exception: %s", exc.Text)
		}
		if res == nil || res.ObjectID == "" || res.Subtype == runtime.SubtypeNull {
			return nil
		}
		defer func() { _ = runtime.ReleaseObject(res.ObjectID).Do(ctx) }()

		id, err := dom.RequestNode(res.ObjectID).Do(ctx)
		if err != nil {
			return err
		}
		described, err := dom.DescribeNode().WithNodeID(id).Do(ctx)
		if err != nil {
			return err
		}
		described.NodeID = id
		found = described
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve relative of %s: %w", e.Describe(), err)
	}
	if found == nil {
		return nil, nil
	}
	return &element{session: e.session, node: found}, nil
}

func (e *element) QueryAll(ctx context.Context, selector string) ([]schemas.Element, error) {
	var nodes []*cdp.Node
	err := e.session.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0), chromedp.FromNode(e.node)))
	if err != nil {
		return nil, fmt.Errorf("query %q under %s: %w", selector, e.Describe(), err)
	}
	return e.session.wrap(nodes), nil
}

// center scrolls the element into view and returns the middle of its first
// content quad in viewport coordinates.
func (e *element) center(ctx context.Context) (float64, float64, error) {
	if err := dom.ScrollIntoViewIfNeeded().WithNodeID(e.node.NodeID).Do(ctx); err != nil {
		return 0, 0, err
	}
	quads, err := dom.GetContentQuads().WithNodeID(e.node.NodeID).Do(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, q := range quads {
		if len(q) < 8 {
			continue
		}
		x := (q[0] + q[2] + q[4] + q[6]) / 4
		y := (q[1] + q[3] + q[5] + q[7]) / 4
		return x, y, nil
	}
	return 0, 0, ErrNoBox
}

func (e *element) Hover(ctx context.Context) error {
	err := e.do(ctx, func(ctx context.Context) error {
		x, y, err := e.center(ctx)
		if err != nil {
			return err
		}
		return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
	})
	if err != nil {
		return fmt.Errorf("hover %s: %w", e.Describe(), err)
	}
	return nil
}

func (e *element) Click(ctx context.Context) error {
	err := e.do(ctx, func(ctx context.Context) error {
		x, y, err := e.center(ctx)
		if err != nil {
			return err
		}
		return chromedp.MouseClickXY(x, y).Do(ctx)
	})
	if err != nil {
		return fmt.Errorf("click %s: %w", e.Describe(), err)
	}
	return nil
}

func (e *element) Fill(ctx context.Context, text string) error {
	err := e.do(ctx, func(ctx context.Context) error {
		if err := dom.Focus().WithNodeID(e.node.NodeID).Do(ctx); err != nil {
			return err
		}
		if err := callOnNode(ctx, e.node, jsClear, nil); err != nil {
			return err
		}
		if err := input.InsertText(text).Do(ctx); err != nil {
			return err
		}
		return callOnNode(ctx, e.node, jsChanged, nil)
	})
	if err != nil {
		return fmt.Errorf("fill %s: %w", e.Describe(), err)
	}
	return nil
}
