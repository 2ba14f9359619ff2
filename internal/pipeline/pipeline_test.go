package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/claimgate/api/schemas"
	"github.com/xkilldash9x/claimgate/internal/audit"
	"github.com/xkilldash9x/claimgate/internal/config"
	"github.com/xkilldash9x/claimgate/internal/decision"
	"github.com/xkilldash9x/claimgate/internal/discovery"
	"github.com/xkilldash9x/claimgate/internal/handoff"
	"github.com/xkilldash9x/claimgate/internal/interaction"
	"github.com/xkilldash9x/claimgate/internal/testing/fakepage"
	"go.uber.org/zap"
)

const shopURL = "https://shop.example.com/"

const loginForm = `<div class="login"><input type="text" id="uid" placeholder="User ID"><button id="go">Go</button></div>`

type fakeRepo struct {
	registrations map[string]bool
	verdicts      []*schemas.VerdictRecord
	deregs        []*schemas.DeregistrationRecord
}

func newFakeRepo(registered ...string) *fakeRepo {
	r := &fakeRepo{registrations: map[string]bool{}}
	for _, id := range registered {
		r.registrations[id] = true
	}
	return r
}

func (r *fakeRepo) DeleteRegistration(_ context.Context, id string) (int64, error) {
	if !r.registrations[id] {
		return 0, nil
	}
	delete(r.registrations, id)
	return 1, nil
}

func (r *fakeRepo) InsertDeregistration(_ context.Context, rec *schemas.DeregistrationRecord) (bool, error) {
	for _, d := range r.deregs {
		if d.Identifier == rec.Identifier {
			return false, nil
		}
	}
	r.deregs = append(r.deregs, rec)
	return true, nil
}

func (r *fakeRepo) InsertVerdict(_ context.Context, rec *schemas.VerdictRecord) error {
	r.verdicts = append(r.verdicts, rec)
	return nil
}

func (r *fakeRepo) EnsureSchema(context.Context) error { return nil }
func (r *fakeRepo) Close() error                       { return nil }

type spawn struct{ identifier, displayName string }

type fakeLauncher struct {
	spawns []spawn
	err    error
}

func (l *fakeLauncher) Handoff(_ context.Context, identifier, displayName string) (*handoff.Process, error) {
	l.spawns = append(l.spawns, spawn{identifier, displayName})
	if l.err != nil {
		return nil, l.err
	}
	return &handoff.Process{PID: 4242, Identifier: identifier}, nil
}

type harness struct {
	page     *fakepage.Page
	repo     *fakeRepo
	launcher *fakeLauncher
	pipeline *Pipeline
}

func newHarness(t *testing.T, page *fakepage.Page, registered ...string) *harness {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Target.URL = shopURL
	cfg.Target.SettleDelay = 0
	cfg.Target.PostSubmitDelay = 0
	cfg.Target.StepTimeout = time.Second
	cfg.Reveal.HoverSettle = 0
	cfg.Reveal.ClickSettle = 0
	cfg.Reveal.HoverRate = 0

	logger := zap.NewNop()
	h := &harness{page: page, repo: newFakeRepo(registered...), launcher: &fakeLauncher{}}
	driver := interaction.NewDriver(page, discovery.NewEngine(cfg.Discovery, logger), nil, cfg, logger)
	h.pipeline = New(driver, decision.NewPolicy(cfg.Policy), audit.NewRecorder(h.repo, time.Second, logger), h.launcher, logger)
	return h
}

func TestRun_ValidUserIsHandedOff(t *testing.T) {
	page := fakepage.New(loginForm)
	page.OnClick("#go", func(p *fakepage.Page) {
		p.SetHTML(`<h1>Welcome, Test User</h1><a href="/logout">Logout</a>`)
		p.SetURL(shopURL + "profile")
	})
	h := newHarness(t, page, "12345")

	res, err := h.pipeline.Run(context.Background(), "12345", "Test User")
	require.NoError(t, err)

	assert.Equal(t, schemas.VerdictValid, res.Outcome.Raw)
	assert.Equal(t, schemas.VerdictValid, res.Outcome.Effective)
	assert.Equal(t, []spawn{{"12345", "Test User"}}, h.launcher.spawns)
	require.NotNil(t, res.Process)
	assert.Equal(t, 4242, res.Process.PID)

	require.Len(t, h.repo.verdicts, 1)
	assert.True(t, h.repo.verdicts[0].Result.IsValid)
	assert.Equal(t, res.Attempt.CorrelationID, h.repo.verdicts[0].Result.CorrelationID)
	assert.Empty(t, h.repo.deregs)
	assert.True(t, h.repo.registrations["12345"])
}

func TestRun_InvalidUserIsDeregistered(t *testing.T) {
	page := fakepage.New(loginForm)
	page.OnClick("#go", func(p *fakepage.Page) {
		p.Doc().Find("#uid").AddClass("is-invalid")
		p.Doc().Find(".login").AppendHtml(`<span class="error">Invalid Unique ID</span>`)
	})
	h := newHarness(t, page, "99999")

	res, err := h.pipeline.Run(context.Background(), "99999", "Nobody")
	require.NoError(t, err)

	assert.Equal(t, schemas.VerdictInvalid, res.Outcome.Effective)
	assert.Empty(t, h.launcher.spawns, "invalid users are never handed off")
	assert.Nil(t, res.Process)

	assert.False(t, h.repo.registrations["99999"], "registration removed")
	require.Len(t, h.repo.deregs, 1)
	assert.Equal(t, schemas.ReasonInvalidUser, h.repo.deregs[0].Reason)
	assert.Equal(t, res.Attempt.CorrelationID, h.repo.deregs[0].CorrelationID)
	require.Len(t, h.repo.verdicts, 1)
	assert.False(t, h.repo.verdicts[0].Result.IsValid)
}

func TestRun_SingleInvalidSignalIsLenient(t *testing.T) {
	page := fakepage.New(loginForm)
	page.OnClick("#go", func(p *fakepage.Page) {
		p.Doc().Find(".login").AppendHtml(`<span>Invalid Unique ID</span>`)
	})
	h := newHarness(t, page, "99999")

	res, err := h.pipeline.Run(context.Background(), "99999", "Nobody")
	require.NoError(t, err)

	assert.Equal(t, schemas.VerdictAmbiguous, res.Outcome.Raw)
	assert.Equal(t, schemas.VerdictValid, res.Outcome.Effective)
	assert.Equal(t, schemas.ReasonAmbiguousAsValid, h.repo.verdicts[0].Result.Reason)
	assert.Empty(t, h.repo.deregs)
	assert.Len(t, h.launcher.spawns, 1)
}

func TestRun_BrowserErrorIsLenient(t *testing.T) {
	page := fakepage.New(loginForm)
	page.NavigateErr = fmt.Errorf("navigation to %s timed out: %w", shopURL, context.DeadlineExceeded)
	h := newHarness(t, page, "12345")

	res, err := h.pipeline.Run(context.Background(), "12345", "Test User")
	require.NoError(t, err)

	assert.Equal(t, schemas.VerdictErrored, res.Outcome.Raw)
	assert.Equal(t, schemas.VerdictValid, res.Outcome.Effective)
	assert.ErrorIs(t, res.Outcome.Err, interaction.ErrNavigation)
	assert.Empty(t, h.repo.deregs)
	assert.True(t, h.repo.registrations["12345"])
	require.Len(t, h.repo.verdicts, 1)
	assert.Equal(t, schemas.ReasonErrorAsValid, h.repo.verdicts[0].Result.Reason)
	assert.Contains(t, h.repo.verdicts[0].Result.Error, "timed out")
}

func TestRun_TargetUnreachableIsFatal(t *testing.T) {
	page := fakepage.New(loginForm)
	page.NavigateErr = fmt.Errorf("%w: %s: page load error net::ERR_NAME_NOT_RESOLVED", schemas.ErrTargetUnreachable, shopURL)
	h := newHarness(t, page, "12345")

	res, err := h.pipeline.Run(context.Background(), "12345", "Test User")
	require.ErrorIs(t, err, schemas.ErrTargetUnreachable)
	require.NotNil(t, res.Attempt)
	assert.Empty(t, h.repo.verdicts, "nothing recorded")
	assert.Empty(t, h.repo.deregs)
	assert.Empty(t, h.launcher.spawns, "no claim while the target is down")
	assert.True(t, h.repo.registrations["12345"])
}

func TestRun_HandoffFailureKeepsVerdict(t *testing.T) {
	page := fakepage.New(`<input type="text" id="uid"><button>Go</button>`)
	page.OnClick("button", func(p *fakepage.Page) { p.SetHTML(`<p>Logged in</p>`) })
	h := newHarness(t, page)
	h.launcher.err = handoff.ErrEntryPointNotFound

	res, err := h.pipeline.Run(context.Background(), "12345", "Test User")
	require.NoError(t, err)
	assert.True(t, res.Outcome.IsValid())
	assert.ErrorIs(t, res.HandoffErr, handoff.ErrEntryPointNotFound)
	assert.True(t, h.repo.verdicts[0].Result.IsValid)
}

func TestRun_InterruptedRecordsNothing(t *testing.T) {
	h := newHarness(t, fakepage.New(loginForm), "12345")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.pipeline.Run(ctx, "12345", "Test User")
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res.Attempt)
	assert.Empty(t, h.repo.verdicts)
	assert.Empty(t, h.launcher.spawns)
}

func TestRun_WithoutLauncher(t *testing.T) {
	page := fakepage.New(loginForm)
	page.OnClick("#go", func(p *fakepage.Page) { p.SetHTML(`<p>Welcome</p>`) })
	h := newHarness(t, page)
	h.pipeline.launcher = nil

	res, err := h.pipeline.Run(context.Background(), "12345", "Test User")
	require.NoError(t, err)
	assert.True(t, res.Outcome.IsValid())
	assert.Nil(t, res.Process)
}
