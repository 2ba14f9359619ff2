package schemas

import (
	"fmt"
	"time"
)

// -- Verdict Schemas --

// Verdict is the classification of a single validation attempt. The values are
// upper-case to match the reason codes written to the validation log.
type Verdict string

const (
	VerdictPending   Verdict = "PENDING"
	VerdictValid     Verdict = "VALID"
	VerdictInvalid   Verdict = "INVALID"
	VerdictAmbiguous Verdict = "AMBIGUOUS"
	VerdictErrored   Verdict = "ERRORED"
)

// Reason codes persisted with each verdict. The raw classification survives in
// the code even when the effective verdict was resolved leniently.
const (
	ReasonValidUser        = "valid_user"
	ReasonInvalidUser      = "invalid_user"
	ReasonAmbiguousAsValid = "ambiguous_assumed_valid"
	ReasonErrorAsValid     = "error_assumed_valid"
)

// Evidence is what the interaction driver observed after submitting the
// identifier. PageContent is only populated when the input stayed visible.
type Evidence struct {
	InputVisible bool   `json:"input_visible"`
	ErrorStyling bool   `json:"error_styling"`
	CurrentURL   string `json:"current_url"`
	PageContent  string `json:"-"`
}

// Signals are the derived booleans the decision policy matched against the
// evidence. They are kept for the audit trail.
type Signals struct {
	InvalidTextFound bool   `json:"invalid_text_found"`
	SuccessTextFound bool   `json:"success_text_found"`
	SuccessURLFound  bool   `json:"success_url_found"`
	MatchedPhrase    string `json:"matched_phrase,omitempty"`
}

// Outcome is the single transition out of PENDING for one attempt.
type Outcome struct {
	Raw       Verdict   `json:"raw"`
	Effective Verdict   `json:"effective"`
	Reason    string    `json:"reason"`
	Signals   Signals   `json:"signals"`
	Err       error     `json:"-"`
	DecidedAt time.Time `json:"decided_at"`
}

// IsValid reports whether the effective verdict permits the claim handoff.
func (o Outcome) IsValid() bool {
	return o.Effective == VerdictValid
}

// ValidationAttempt is the transient, in-memory state of one run of the
// pipeline. It is created at start, filled by the interaction driver and
// discarded once the verdict is persisted.
type ValidationAttempt struct {
	Identifier    string
	DisplayName   string
	StartedAt     time.Time
	CorrelationID string
	Evidence      Evidence
	// Strategies maps a discovery role to the strategy that resolved it.
	Strategies map[string]string
	// Screenshots maps a checkpoint stage to the file written for it.
	Screenshots map[string]string
}

// NewValidationAttempt starts a fresh attempt for the identifier.
func NewValidationAttempt(identifier, displayName string, startedAt time.Time) *ValidationAttempt {
	return &ValidationAttempt{
		Identifier:    identifier,
		DisplayName:   displayName,
		StartedAt:     startedAt,
		CorrelationID: CorrelationID(identifier, startedAt),
		Strategies:    make(map[string]string),
		Screenshots:   make(map[string]string),
	}
}

// CorrelationID joins an attempt's audit rows to its log output. It is a pure
// function of the identifier and the attempt's start time.
func CorrelationID(identifier string, startedAt time.Time) string {
	return fmt.Sprintf("val_%s_%d", identifier, startedAt.UTC().UnixMilli())
}
