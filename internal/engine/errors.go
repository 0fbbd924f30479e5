// internal/engine/errors.go
package engine

import (
	"errors"
	"fmt"
	"strings"
)

// FailureKind classifies why an intent could not be carried out.
type FailureKind int

const (
	KindUnknown FailureKind = iota
	// KindNotFound: the target resolved to zero elements across every strategy.
	KindNotFound
	// KindActionUnreachable: elements were found but every dispatch attempt failed.
	KindActionUnreachable
	// KindVerificationTimeout: the action landed but the expected state never showed.
	KindVerificationTimeout
	// KindExternalUnavailable: an optional capability is absent in this environment.
	KindExternalUnavailable
)

func (k FailureKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindActionUnreachable:
		return "action_unreachable"
	case KindVerificationTimeout:
		return "verification_timeout"
	case KindExternalUnavailable:
		return "external_unavailable"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. A *Failure matches the sentinel of its kind.
var (
	ErrNotFound            = errors.New("target not found")
	ErrActionUnreachable   = errors.New("action unreachable")
	ErrVerificationTimeout = errors.New("verification timed out")
	ErrExternalUnavailable = errors.New("external capability unavailable")
)

var sentinels = map[FailureKind]error{
	KindNotFound:            ErrNotFound,
	KindActionUnreachable:   ErrActionUnreachable,
	KindVerificationTimeout: ErrVerificationTimeout,
	KindExternalUnavailable: ErrExternalUnavailable,
}

// Failure is the typed error every engine operation returns.
type Failure struct {
	Kind FailureKind
	// Intent names what the caller asked for, e.g. `select theme "Igaming"`.
	Intent string
	// Attempts is the strategy log when the failure came out of a chain.
	Attempts []Attempt
	// Observed is the last observed value for verification timeouts.
	Observed string
	Err      error
}

func (f *Failure) Error() string {
	var b strings.Builder
	b.WriteString(f.Intent)
	if s, ok := sentinels[f.Kind]; ok {
		b.WriteString(": " + s.Error())
	} else {
		b.WriteString(": failed")
	}
	if f.Kind == KindVerificationTimeout && f.Observed != "" {
		fmt.Fprintf(&b, " (observed %q)", f.Observed)
	}
	if len(f.Attempts) > 0 {
		parts := make([]string, 0, len(f.Attempts))
		for _, a := range f.Attempts {
			parts = append(parts, a.String())
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(parts, "; "))
	}
	if f.Err != nil {
		fmt.Fprintf(&b, ": %v", f.Err)
	}
	return b.String()
}

func (f *Failure) Unwrap() error { return f.Err }

// Is lets errors.Is(err, ErrNotFound) and friends match on kind.
func (f *Failure) Is(target error) bool {
	s, ok := sentinels[f.Kind]
	return ok && s == target
}

// KindOf extracts the failure kind from any error in a chain.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindUnknown
}

func newFailure(kind FailureKind, intent string, err error) *Failure {
	return &Failure{Kind: kind, Intent: intent, Err: err}
}
