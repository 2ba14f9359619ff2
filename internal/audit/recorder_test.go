package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/claimgate/api/schemas"
	"github.com/xkilldash9x/claimgate/internal/decision"
	"github.com/xkilldash9x/claimgate/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeRepo records calls and mimics the uniqueness constraint on
// deregistrations.
type fakeRepo struct {
	calls         []string
	verdicts      []*schemas.VerdictRecord
	deregs        map[string]*schemas.DeregistrationRecord
	registrations map[string]bool

	verdictErr error
	deleteErr  error
	deregErr   error

	sawDeadline bool
}

var _ store.Repository = (*fakeRepo)(nil)

func newFakeRepo(registered ...string) *fakeRepo {
	r := &fakeRepo{deregs: map[string]*schemas.DeregistrationRecord{}, registrations: map[string]bool{}}
	for _, id := range registered {
		r.registrations[id] = true
	}
	return r
}

func (r *fakeRepo) DeleteRegistration(ctx context.Context, id string) (int64, error) {
	r.calls = append(r.calls, "delete")
	if r.deleteErr != nil {
		return 0, r.deleteErr
	}
	if !r.registrations[id] {
		return 0, nil
	}
	delete(r.registrations, id)
	return 1, nil
}

func (r *fakeRepo) InsertDeregistration(ctx context.Context, rec *schemas.DeregistrationRecord) (bool, error) {
	r.calls = append(r.calls, "deregister")
	if r.deregErr != nil {
		return false, r.deregErr
	}
	if _, ok := r.deregs[rec.Identifier]; ok {
		return false, nil
	}
	r.deregs[rec.Identifier] = rec
	return true, nil
}

func (r *fakeRepo) InsertVerdict(ctx context.Context, rec *schemas.VerdictRecord) error {
	r.calls = append(r.calls, "verdict")
	_, r.sawDeadline = ctx.Deadline()
	if r.verdictErr != nil {
		return r.verdictErr
	}
	r.verdicts = append(r.verdicts, rec)
	return nil
}

func (r *fakeRepo) EnsureSchema(context.Context) error { return nil }
func (r *fakeRepo) Close() error                       { return nil }

var started = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func attemptFor(id string) *schemas.ValidationAttempt {
	a := schemas.NewValidationAttempt(id, "Test User", started)
	a.Strategies["identifier-input"] = "generic-input"
	return a
}

func outcome(raw schemas.Verdict, err error) schemas.Outcome {
	effective, reason := decision.Resolve(raw)
	out := schemas.Outcome{
		Raw:       raw,
		Effective: effective,
		Reason:    reason,
		Err:       err,
		DecidedAt: started.Add(1500 * time.Millisecond),
	}
	if raw == schemas.VerdictInvalid {
		out.Signals = schemas.Signals{InvalidTextFound: true, MatchedPhrase: "invalid unique id"}
	}
	return out
}

func TestRecord_Valid(t *testing.T) {
	repo := newFakeRepo("12345")
	NewRecorder(repo, time.Second, zap.NewNop()).Record(context.Background(), attemptFor("12345"), outcome(schemas.VerdictValid, nil))

	assert.Equal(t, []string{"verdict"}, repo.calls)
	require.Len(t, repo.verdicts, 1)
	v := repo.verdicts[0]
	assert.Equal(t, ModuleName, v.Module)
	assert.True(t, v.Result.IsValid)
	assert.Equal(t, schemas.ReasonValidUser, v.Result.Reason)
	assert.Equal(t, "val_12345_1772366400000", v.Result.CorrelationID)
	assert.Equal(t, 1, v.Result.Attempts)
	assert.JSONEq(t, `{
		"displayName": "Test User",
		"rawVerdict": "VALID",
		"effectiveVerdict": "VALID",
		"evidence": {"input_visible": false, "error_styling": false, "current_url": ""},
		"signals": {"invalid_text_found": false, "success_text_found": false, "success_url_found": false},
		"strategies": {"identifier-input": "generic-input"},
		"durationMs": 1500
	}`, string(v.Context))
	assert.True(t, repo.registrations["12345"], "valid users keep their registration")
	assert.True(t, repo.sawDeadline, "writes are time-bounded")
}

func TestRecord_Invalid(t *testing.T) {
	repo := newFakeRepo("99999")
	rec := NewRecorder(repo, time.Second, zap.NewNop())

	rec.Record(context.Background(), attemptFor("99999"), outcome(schemas.VerdictInvalid, nil))

	assert.Equal(t, []string{"verdict", "delete", "deregister"}, repo.calls)
	assert.False(t, repo.registrations["99999"])
	require.Contains(t, repo.deregs, "99999")
	d := repo.deregs["99999"]
	assert.Equal(t, schemas.ReasonInvalidUser, d.Reason)
	assert.Equal(t, "val_99999_1772366400000", d.CorrelationID)
	assert.Equal(t, "invalid unique id", d.ErrorMessage)
	assert.False(t, repo.verdicts[0].Result.IsValid)
}

func TestRecord_DuplicateDeregistration(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	repo := newFakeRepo("99999")
	rec := NewRecorder(repo, time.Second, zap.New(core))

	rec.Record(context.Background(), attemptFor("99999"), outcome(schemas.VerdictInvalid, nil))
	rec.Record(context.Background(), attemptFor("99999"), outcome(schemas.VerdictInvalid, nil))

	assert.Len(t, repo.deregs, 1)
	assert.Len(t, repo.verdicts, 2)
	assert.Equal(t, 1, logs.FilterMessage("Identifier was already deregistered.").Len())
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestRecord_NonInvalidNeverDeregisters(t *testing.T) {
	for _, raw := range []schemas.Verdict{schemas.VerdictValid, schemas.VerdictAmbiguous, schemas.VerdictErrored} {
		t.Run(string(raw), func(t *testing.T) {
			repo := newFakeRepo("12345")
			var err error
			if raw == schemas.VerdictErrored {
				err = errors.New("no identifier input found")
			}
			NewRecorder(repo, time.Second, zap.NewNop()).Record(context.Background(), attemptFor("12345"), outcome(raw, err))

			assert.Equal(t, []string{"verdict"}, repo.calls)
			assert.Empty(t, repo.deregs)
			assert.True(t, repo.verdicts[0].Result.IsValid)
			if err != nil {
				assert.Equal(t, err.Error(), repo.verdicts[0].Result.Error)
				assert.Equal(t, schemas.ReasonErrorAsValid, repo.verdicts[0].Result.Reason)
			}
		})
	}
}

func TestRecord_FailuresAreSwallowed(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	repo := newFakeRepo("99999")
	repo.verdictErr = errors.New("connection refused")
	repo.deleteErr = errors.New("connection refused")

	assert.NotPanics(t, func() {
		NewRecorder(repo, time.Second, zap.New(core)).Record(context.Background(), attemptFor("99999"), outcome(schemas.VerdictInvalid, nil))
	})

	assert.Equal(t, []string{"verdict", "delete", "deregister"}, repo.calls, "each write is attempted independently")
	assert.Len(t, repo.deregs, 1)
	assert.Equal(t, 2, logs.Len())
	for _, entry := range logs.All() {
		assert.Equal(t, "val_99999_1772366400000", entry.ContextMap()["correlation_id"])
	}
}
