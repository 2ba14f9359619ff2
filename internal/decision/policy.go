// Package decision classifies the evidence of one validation attempt and
// resolves the effective verdict. Anything short of the full invalid gate is
// treated as valid, so a flaky page never deregisters a real user.
package decision

import (
	"strings"
	"time"

	"github.com/xkilldash9x/claimgate/api/schemas"
	"github.com/xkilldash9x/claimgate/internal/config"
)

// Policy holds the lower-cased phrase and keyword lists the classifier matches.
type Policy struct {
	invalidPhrases []string
	successPhrases []string
	successURLs    []string
	now            func() time.Time
}

// NewPolicy builds a policy from configuration.
func NewPolicy(cfg config.PolicyConfig) *Policy {
	return &Policy{
		invalidPhrases: lowerAll(cfg.InvalidPhrases),
		successPhrases: lowerAll(cfg.SuccessPhrases),
		successURLs:    lowerAll(cfg.SuccessURLKeywords),
		now:            time.Now,
	}
}

// Signals derives the matched booleans from raw evidence.
func (p *Policy) Signals(ev schemas.Evidence) schemas.Signals {
	content := strings.ToLower(ev.PageContent)
	url := strings.ToLower(ev.CurrentURL)

	var s schemas.Signals
	if phrase, ok := firstIn(content, p.invalidPhrases); ok {
		s.InvalidTextFound = true
		s.MatchedPhrase = phrase
	}
	if phrase, ok := firstIn(content, p.successPhrases); ok {
		s.SuccessTextFound = true
		if s.MatchedPhrase == "" {
			s.MatchedPhrase = phrase
		}
	}
	_, s.SuccessURLFound = firstIn(url, p.successURLs)
	return s
}

// Classify maps evidence to a raw verdict. INVALID needs the input still
// visible, an invalid phrase on the page and error styling on the input.
func (p *Policy) Classify(ev schemas.Evidence) schemas.Outcome {
	s := p.Signals(ev)

	var raw schemas.Verdict
	switch {
	case ev.InputVisible && s.InvalidTextFound && ev.ErrorStyling:
		raw = schemas.VerdictInvalid
	case s.SuccessURLFound || s.SuccessTextFound || !ev.InputVisible:
		raw = schemas.VerdictValid
	default:
		raw = schemas.VerdictAmbiguous
	}
	return p.resolve(raw, s, nil)
}

// Errored is the outcome for an attempt whose interaction failed.
func (p *Policy) Errored(err error) schemas.Outcome {
	return p.resolve(schemas.VerdictErrored, schemas.Signals{}, err)
}

func (p *Policy) resolve(raw schemas.Verdict, s schemas.Signals, err error) schemas.Outcome {
	effective, reason := Resolve(raw)
	return schemas.Outcome{
		Raw:       raw,
		Effective: effective,
		Reason:    reason,
		Signals:   s,
		Err:       err,
		DecidedAt: p.now().UTC(),
	}
}

// Resolve applies the lenient bias. Only INVALID stays negative; the reason
// code keeps the raw verdict visible in the audit trail.
func Resolve(raw schemas.Verdict) (schemas.Verdict, string) {
	switch raw {
	case schemas.VerdictInvalid:
		return schemas.VerdictInvalid, schemas.ReasonInvalidUser
	case schemas.VerdictAmbiguous:
		return schemas.VerdictValid, schemas.ReasonAmbiguousAsValid
	case schemas.VerdictErrored, schemas.VerdictPending:
		return schemas.VerdictValid, schemas.ReasonErrorAsValid
	default:
		return schemas.VerdictValid, schemas.ReasonValidUser
	}
}

func firstIn(haystack string, needles []string) (string, bool) {
	if haystack == "" {
		return "", false
	}
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, n) {
			return n, true
		}
	}
	return "", false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
