package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/claimgate/api/schemas"
	"github.com/xkilldash9x/claimgate/internal/config"
	"go.uber.org/zap"
)

const shopHTML = `<!doctype html>
<html><head><title>Shop</title></head>
<body>
  <form id="login" onsubmit="return false">
    <input type="text" id="uid" class="form-control" aria-invalid="false" style="border: 2px solid rgb(220, 53, 69)">
    <button id="go" type="button">Go</button>
  </form>
  <div id="tmpl" style="display:none">Invalid Unique ID</div>
  <script>
    document.getElementById('go').addEventListener('click', function () {
      var p = document.createElement('p');
      p.id = 'done';
      p.textContent = 'Welcome ' + document.getElementById('uid').value;
      document.body.appendChild(p);
    });
  </script>
</body></html>`

func createStaticTestServer(t *testing.T, htmlContent string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, htmlContent)
	}))
	t.Cleanup(server.Close)
	return server
}

// newTestSession starts a headless Chrome, skipping the test when none is installed.
func newTestSession(t *testing.T, parent context.Context) *Session {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	s, err := NewSession(parent, config.BrowserConfig{Headless: true, CloseTimeout: 5 * time.Second}, zap.NewNop())
	if errors.Is(err, ErrLaunch) {
		t.Skipf("chrome not available: %v", err)
	}
	require.NoError(t, err)
	return s
}

func queryOne(t *testing.T, ctx context.Context, page schemas.Page, selector string) schemas.Element {
	t.Helper()
	els, err := page.QueryAll(ctx, selector)
	require.NoError(t, err)
	require.Len(t, els, 1, "selector %s", selector)
	return els[0]
}

func TestSession_DrivesElements(t *testing.T) {
	server := createStaticTestServer(t, shopHTML)
	s := newTestSession(t, context.Background())
	defer func() { assert.NoError(t, s.Close()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, s.Navigate(ctx, server.URL))
	loc, err := s.URL(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(loc, server.URL), "location %s", loc)

	input := queryOne(t, ctx, s, "#uid")
	assert.Equal(t, "input", input.Tag())
	assert.Equal(t, "input#uid.form-control", input.Describe())

	t.Run("attributes", func(t *testing.T) {
		v, ok, err := input.Attribute(ctx, "aria-invalid")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "false", v)

		_, ok, err = input.Attribute(ctx, "placeholder")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("visibility", func(t *testing.T) {
		visible, err := input.Visible(ctx)
		require.NoError(t, err)
		assert.True(t, visible)

		visible, err = queryOne(t, ctx, s, "#tmpl").Visible(ctx)
		require.NoError(t, err)
		assert.False(t, visible, "display:none is not visible")
	})

	t.Run("computed style", func(t *testing.T) {
		style, err := input.ComputedStyle(ctx, "border-top-color", "display")
		require.NoError(t, err)
		assert.Equal(t, "rgb(220, 53, 69)", style["border-top-color"])
		assert.Equal(t, "inline-block", style["display"])
	})

	t.Run("relatives", func(t *testing.T) {
		next, err := input.NextSibling(ctx)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, "button#go", next.Describe())

		form, err := input.FormAncestor(ctx)
		require.NoError(t, err)
		require.NotNil(t, form)
		assert.Equal(t, "form", form.Tag())

		none, err := form.FormAncestor(ctx)
		require.NoError(t, err)
		assert.Nil(t, none, "no enclosing form")

		buttons, err := form.QueryAll(ctx, "button")
		require.NoError(t, err)
		assert.Len(t, buttons, 1)
	})

	t.Run("fill hover and click", func(t *testing.T) {
		require.NoError(t, input.Fill(ctx, "12345"))
		text, err := input.Text(ctx)
		require.NoError(t, err)
		assert.Equal(t, "12345", text)

		button := queryOne(t, ctx, s, "#go")
		require.NoError(t, button.Hover(ctx))
		require.NoError(t, button.Click(ctx))

		require.Eventually(t, func() bool {
			els, err := s.QueryAll(ctx, "#done")
			return err == nil && len(els) == 1
		}, 5*time.Second, 50*time.Millisecond)

		text, err = queryOne(t, ctx, s, "#done").Text(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Welcome 12345", text)
	})

	t.Run("document text includes hidden templates", func(t *testing.T) {
		text, err := s.Text(ctx)
		require.NoError(t, err)
		assert.Contains(t, text, "Invalid Unique ID")
		assert.NotContains(t, text, "addEventListener", "scripts are stripped")
	})

	t.Run("screenshot", func(t *testing.T) {
		png, err := s.Screenshot(ctx)
		require.NoError(t, err)
		require.Greater(t, len(png), 8)
		assert.Equal(t, "\x89PNG", string(png[:4]))
	})
}

func TestSession_NavigateUnreachable(t *testing.T) {
	// A closed server leaves a port that refuses connections.
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	s := newTestSession(t, context.Background())
	defer func() { assert.NoError(t, s.Close()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.Navigate(ctx, url)
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrTargetUnreachable)
}

func TestSession_CloseAfterParentCanceled(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	s := newTestSession(t, parent)
	cancelParent()

	done := make(chan struct{})
	go func() {
		_ = s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("Close did not return within its timeouts")
	}
}

func TestUnreachable(t *testing.T) {
	tests := map[string]struct {
		err  error
		want bool
	}{
		"dns":             {errors.New("page load error net::ERR_NAME_NOT_RESOLVED"), true},
		"refused":         {errors.New("page load error net::ERR_CONNECTION_REFUSED"), true},
		"offline":         {errors.New("page load error net::ERR_INTERNET_DISCONNECTED"), true},
		"bad certificate": {errors.New("page load error net::ERR_CERT_AUTHORITY_INVALID"), true},
		"aborted":         {errors.New("page load error net::ERR_ABORTED"), false},
		"timeout":         {fmt.Errorf("wrapped: %w", context.DeadlineExceeded), false},
		"other":           {errors.New("websocket closed"), false},
		"nil":             {nil, false},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, Unreachable(tt.err))
		})
	}
}
