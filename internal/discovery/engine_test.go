// internal/discovery/engine_test.go
package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/claimgate/api/schemas"
	"github.com/xkilldash9x/claimgate/internal/config"
	"github.com/xkilldash9x/claimgate/internal/testing/fakepage"
	"go.uber.org/zap"
)

func newTestEngine() *Engine {
	return NewEngine(config.NewDefaultConfig().Discovery, zap.NewNop())
}

func attr(t *testing.T, el schemas.Element, name string) string {
	t.Helper()
	v, _, err := el.Attribute(context.Background(), name)
	require.NoError(t, err)
	return v
}

func TestFindIdentifierInput(t *testing.T) {
	tests := []struct {
		name         string
		html         string
		wantStrategy string
		wantID       string
	}{
		{
			name:         "plain text input",
			html:         `<form><input type="text" id="uid"></form>`,
			wantStrategy: "generic-input",
			wantID:       "uid",
		},
		{
			name:         "site search box is skipped",
			html:         `<input type="text" id="search" name="q" placeholder="Search"><input type="number" id="uid">`,
			wantStrategy: "generic-input",
			wantID:       "uid",
		},
		{
			name:         "hidden generic input falls through to placeholder",
			html:         `<input type="text" id="ghost" style="display: none"><input type="email" id="uid" placeholder="Enter your User ID">`,
			wantStrategy: "placeholder-pattern",
			wantID:       "uid",
		},
		{
			name:         "name pattern",
			html:         `<input type="email" id="field-7" name="player_uid">`,
			wantStrategy: "name-class-pattern",
			wantID:       "field-7",
		},
		{
			name: "input only inside a modal",
			html: `<div class="page"><input type="search" id="outside" class="hidden"></div>
				<div class="login-modal" role="dialog"><input type="search" id="modal-field"></div>`,
			wantStrategy: "modal-scoped",
			wantID:       "modal-field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := fakepage.New(tt.html)
			match, err := newTestEngine().Find(context.Background(), page, RoleIdentifierInput, Constraints{})
			require.NoError(t, err)
			assert.Equal(t, tt.wantStrategy, match.Strategy)
			assert.Equal(t, tt.wantID, attr(t, match.Element, "id"))
			assert.Empty(t, page.Actions(), "discovery must not interact with the page")
		})
	}
}

func TestFindIdentifierInput_Failures(t *testing.T) {
	t.Run("exhaustion reports ErrNotFound", func(t *testing.T) {
		page := fakepage.New(`<p>Shop closed</p><input type="checkbox" name="uid">`)
		_, err := newTestEngine().Find(context.Background(), page, RoleIdentifierInput, Constraints{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("per-selector failures are swallowed", func(t *testing.T) {
		page := fakepage.New(`<input type="text" id="uid" placeholder="User ID">`)
		page.QueryErrs[genericInputSelector] = errors.New("unsupported selector")

		match, err := newTestEngine().Find(context.Background(), page, RoleIdentifierInput, Constraints{})
		require.NoError(t, err)
		assert.Equal(t, "placeholder-pattern", match.Strategy)
	})

	t.Run("canceled context is returned as is", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := newTestEngine().Find(ctx, fakepage.New(`<input type="text">`), RoleIdentifierInput, Constraints{})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := newTestEngine().Find(context.Background(), fakepage.New(``), Role("captcha"), Constraints{})
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrNotFound))
	})
}

func TestFindSubmitAction(t *testing.T) {
	tests := []struct {
		name         string
		html         string
		wantStrategy string
		wantID       string
	}{
		{
			name:         "adjacent sibling button",
			html:         `<div><input type="text" id="uid"><button id="go">Go</button></div>`,
			wantStrategy: "adjacent-sibling",
			wantID:       "go",
		},
		{
			name: "federated login Go button is excluded",
			html: `<div><input type="text" id="uid"><span>Enter the ID shown in game</span></div>
				<button class="btn btn-primary" id="google">Go with Google</button>
				<button class="btn btn-primary" id="submit">Go</button>`,
			wantStrategy: "primary-styled",
			wantID:       "submit",
		},
		{
			name: "button inside the same form",
			html: `<form><input type="text" id="uid"><span>hint</span>
				<div class="actions"><button id="ok">OK</button></div></form>`,
			wantStrategy: "form-ancestor",
			wantID:       "ok",
		},
		{
			name:         "anchor styled as a button",
			html:         `<div><input type="text" id="uid"><p>hint</p></div><a class="btn" id="confirm" href="#">Confirm</a>`,
			wantStrategy: "global-fallback",
			wantID:       "confirm",
		},
		{
			name:         "unlabeled submit input as last resort",
			html:         `<div><input type="text" id="uid"><button id="clear">Clear</button></div><input type="submit" id="send" value="">`,
			wantStrategy: "global-fallback",
			wantID:       "send",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			page := fakepage.New(tt.html)
			inputs, err := page.QueryAll(ctx, "#uid")
			require.NoError(t, err)
			require.Len(t, inputs, 1)

			match, err := newTestEngine().Find(ctx, page, RoleSubmitAction, Constraints{Anchor: inputs[0]})
			require.NoError(t, err)
			assert.Equal(t, tt.wantStrategy, match.Strategy)
			assert.Equal(t, tt.wantID, attr(t, match.Element, "id"))
			assert.Empty(t, page.Actions())
		})
	}

	t.Run("only excluded buttons means not found", func(t *testing.T) {
		page := fakepage.New(`<input type="text" id="uid"><p>or</p><button class="btn-primary">Continue with Apple</button>`)
		_, err := newTestEngine().Find(context.Background(), page, RoleSubmitAction, Constraints{})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("caller keywords override the defaults", func(t *testing.T) {
		page := fakepage.New(`<input type="text" id="uid"><button id="weiter">Weiter</button>`)
		inputs, _ := page.QueryAll(context.Background(), "#uid")
		match, err := newTestEngine().Find(context.Background(), page, RoleSubmitAction, Constraints{
			Anchor:      inputs[0],
			Affirmative: []string{"weiter"},
		})
		require.NoError(t, err)
		assert.Equal(t, "adjacent-sibling", match.Strategy)
	})
}

func TestStrategyOrder(t *testing.T) {
	e := newTestEngine()
	names := func(chain []Strategy) []string {
		out := make([]string, 0, len(chain))
		for _, s := range chain {
			out = append(out, s.Name)
		}
		return out
	}
	assert.Equal(t, []string{"generic-input", "placeholder-pattern", "name-class-pattern", "modal-scoped"}, names(e.Strategies(RoleIdentifierInput)))
	assert.Equal(t, []string{"adjacent-sibling", "primary-styled", "form-ancestor", "global-fallback"}, names(e.Strategies(RoleSubmitAction)))
}

func TestKeywords(t *testing.T) {
	k := NewKeywords([]string{"go", "sign in with", " "})

	for text, want := range map[string]bool{
		"Go":                  true,
		"Go!":                 true,
		"let's go":            true,
		"Google":              false,
		"Logout":              false,
		"Sign in with Google": true,
		"":                    false,
	} {
		_, got := k.Match(text)
		assert.Equal(t, want, got, "text %q", text)
	}

	assert.Equal(t, []string{"player", "uid", "input"}, tokens("Player_UID-input"))
}
