// Package consent implements the human approval step that guards every
// job or session the aggregator proposes to this worker.
package consent

import (
	"context"
	"errors"
)

// Accepted answers. Anything else re-prompts.
const (
	Accept = "Y"
	Reject = "N"
)

// ErrInputClosed is returned when the operator input reaches EOF.
var ErrInputClosed = errors.New("consent input closed")

// Gate asks an operator to approve an action. Implementations block until a
// decision is made, the context is done, or their own timeout expires; an
// expired timeout is a rejection.
type Gate interface {
	RequestConsent(ctx context.Context, prompt string) (bool, error)
}

// Func adapts a function to Gate.
type Func func(ctx context.Context, prompt string) (bool, error)

// RequestConsent calls f.
func (f Func) RequestConsent(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Static answers every request with the same decision. It is meant for
// unattended workers whose operator pre-approved (or pre-denied) all requests.
type Static bool

// RequestConsent returns the fixed decision.
func (s Static) RequestConsent(ctx context.Context, _ string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return bool(s), nil
}

// ParseDecision maps an operator token to a decision. ok is false for any
// token other than Accept or Reject.
func ParseDecision(token string) (accepted, ok bool) {
	switch token {
	case Accept:
		return true, true
	case Reject:
		return false, true
	default:
		return false, false
	}
}
