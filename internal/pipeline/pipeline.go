// Package pipeline runs one validation end to end: interaction, decision,
// audit and, for an effective VALID, the claim handoff.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/xkilldash9x/claimgate/api/schemas"
	"github.com/xkilldash9x/claimgate/internal/handoff"
	"github.com/xkilldash9x/claimgate/internal/observability"
	"go.uber.org/zap"
)

// Validator performs the browser interaction for one identifier.
type Validator interface {
	Run(ctx context.Context, identifier, displayName string) (*schemas.ValidationAttempt, error)
}

// Classifier turns evidence, or an interaction error, into an outcome.
type Classifier interface {
	Classify(ev schemas.Evidence) schemas.Outcome
	Errored(err error) schemas.Outcome
}

// Recorder persists an outcome. It must not fail the run.
type Recorder interface {
	Record(ctx context.Context, attempt *schemas.ValidationAttempt, out schemas.Outcome)
}

// Launcher starts the claim workflow.
type Launcher interface {
	Handoff(ctx context.Context, identifier, displayName string) (*handoff.Process, error)
}

// Result summarizes a completed run.
type Result struct {
	Attempt    *schemas.ValidationAttempt
	Outcome    schemas.Outcome
	Process    *handoff.Process
	HandoffErr error
}

// Pipeline wires the stages together. launcher may be nil to disable the
// handoff.
type Pipeline struct {
	validator  Validator
	classifier Classifier
	recorder   Recorder
	launcher   Launcher
	logger     *zap.Logger
}

// New returns a pipeline over the given stages.
func New(v Validator, c Classifier, r Recorder, l Launcher, logger *zap.Logger) *Pipeline {
	return &Pipeline{validator: v, classifier: c, recorder: r, launcher: l, logger: logger.Named("pipeline")}
}

// Run validates identifier and acts on the verdict. It returns an error, and
// persists and launches nothing, when ctx ends during the interaction or when
// the target page cannot be reached at all.
func (p *Pipeline) Run(ctx context.Context, identifier, displayName string) (*Result, error) {
	attempt, err := p.validator.Run(ctx, identifier, displayName)
	if attempt == nil {
		attempt = schemas.NewValidationAttempt(identifier, displayName, time.Now())
	}
	log := observability.WithAttempt(p.logger, attempt.CorrelationID, identifier)

	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Warn("Validation interrupted, nothing recorded.", zap.Error(ctxErr))
		return &Result{Attempt: attempt}, ctxErr
	}
	if errors.Is(err, schemas.ErrTargetUnreachable) {
		log.Error("Target unreachable, nothing recorded.", zap.Error(err))
		return &Result{Attempt: attempt}, err
	}

	var out schemas.Outcome
	if err != nil {
		out = p.classifier.Errored(err)
	} else {
		out = p.classifier.Classify(attempt.Evidence)
	}
	log.Info("Validation decided.",
		zap.String("raw", string(out.Raw)),
		zap.String("effective", string(out.Effective)),
		zap.String("reason", out.Reason),
		zap.String("matched_phrase", out.Signals.MatchedPhrase),
	)

	p.recorder.Record(ctx, attempt, out)
	res := &Result{Attempt: attempt, Outcome: out}

	if !out.IsValid() {
		return res, nil
	}
	if p.launcher == nil {
		log.Info("Claim handoff disabled.")
		return res, nil
	}
	res.Process, res.HandoffErr = p.launcher.Handoff(ctx, identifier, displayName)
	if res.HandoffErr != nil {
		log.Error("Claim handoff failed; the verdict stands.", zap.Error(res.HandoffErr))
	}
	return res, nil
}
