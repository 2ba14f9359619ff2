// Package audit writes the verdict trail of each validation attempt. Every
// write is best-effort: failures are logged and never reach the caller.
package audit

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/claimgate/api/schemas"
	"github.com/xkilldash9x/claimgate/internal/observability"
	"github.com/xkilldash9x/claimgate/internal/store"
	"go.uber.org/zap"
)

// ModuleName identifies this service in persisted rows.
const ModuleName = "claimgate.validator"

const defaultOpTimeout = 5 * time.Second

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// attemptContext is the free-form blob stored alongside each row.
type attemptContext struct {
	DisplayName string            `json:"displayName"`
	Raw         schemas.Verdict   `json:"rawVerdict"`
	Effective   schemas.Verdict   `json:"effectiveVerdict"`
	Evidence    schemas.Evidence  `json:"evidence"`
	Signals     schemas.Signals   `json:"signals"`
	Strategies  map[string]string `json:"strategies,omitempty"`
	Screenshots map[string]string `json:"screenshots,omitempty"`
	DurationMs  int64             `json:"durationMs"`
	Error       string            `json:"error,omitempty"`
}

// Recorder persists outcomes through a store.Repository.
type Recorder struct {
	repo      store.Repository
	opTimeout time.Duration
	logger    *zap.Logger
}

// NewRecorder returns a recorder bounding each write by opTimeout.
func NewRecorder(repo store.Repository, opTimeout time.Duration, logger *zap.Logger) *Recorder {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &Recorder{repo: repo, opTimeout: opTimeout, logger: logger.Named("audit")}
}

// Record appends the verdict row and, for an effective INVALID, removes the
// registration and writes the deregistration.
func (r *Recorder) Record(ctx context.Context, attempt *schemas.ValidationAttempt, out schemas.Outcome) {
	log := observability.WithAttempt(r.logger, attempt.CorrelationID, attempt.Identifier)

	blob, err := json.Marshal(newAttemptContext(attempt, out))
	if err != nil {
		log.Warn("Could not encode attempt context.", zap.Error(err))
		blob = nil
	}

	verdict := &schemas.VerdictRecord{
		Identifier: attempt.Identifier,
		Module:     ModuleName,
		Result: schemas.VerdictResult{
			IsValid:       out.IsValid(),
			Reason:        out.Reason,
			CorrelationID: attempt.CorrelationID,
			Timestamp:     out.DecidedAt,
			Attempts:      1,
			Error:         errString(out.Err),
		},
		Context:   blob,
		CreatedAt: out.DecidedAt,
	}
	if err := r.write(ctx, func(ctx context.Context) error { return r.repo.InsertVerdict(ctx, verdict) }); err != nil {
		log.Error("Failed to persist verdict.", zap.Error(err))
	} else {
		log.Info("Verdict persisted.", zap.String("verdict", string(out.Effective)), zap.String("reason", out.Reason))
	}

	if out.Effective != schemas.VerdictInvalid {
		return
	}

	var deleted int64
	if err := r.write(ctx, func(ctx context.Context) (err error) {
		deleted, err = r.repo.DeleteRegistration(ctx, attempt.Identifier)
		return err
	}); err != nil {
		log.Error("Failed to delete registration.", zap.Error(err))
	} else {
		log.Info("Registration removed.", zap.Int64("rows", deleted))
	}

	dereg := &schemas.DeregistrationRecord{
		Identifier:    attempt.Identifier,
		Reason:        schemas.ReasonInvalidUser,
		Module:        ModuleName,
		ErrorMessage:  out.Signals.MatchedPhrase,
		CorrelationID: attempt.CorrelationID,
		DetectedAt:    out.DecidedAt,
		Context:       blob,
	}
	var inserted bool
	if err := r.write(ctx, func(ctx context.Context) (err error) {
		inserted, err = r.repo.InsertDeregistration(ctx, dereg)
		return err
	}); err != nil {
		log.Error("Failed to record deregistration.", zap.Error(err))
		return
	}
	if !inserted {
		log.Info("Identifier was already deregistered.")
		return
	}
	log.Info("Deregistration recorded.")
}

func (r *Recorder) write(ctx context.Context, fn func(ctx context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	return fn(opCtx)
}

func newAttemptContext(attempt *schemas.ValidationAttempt, out schemas.Outcome) attemptContext {
	ac := attemptContext{
		DisplayName: attempt.DisplayName,
		Raw:         out.Raw,
		Effective:   out.Effective,
		Evidence:    attempt.Evidence,
		Signals:     out.Signals,
		Strategies:  attempt.Strategies,
		Screenshots: attempt.Screenshots,
		Error:       errString(out.Err),
	}
	if !attempt.StartedAt.IsZero() && !out.DecidedAt.IsZero() {
		ac.DurationMs = out.DecidedAt.Sub(attempt.StartedAt).Milliseconds()
	}
	return ac
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
