package sluiceerr

import (
	"errors"
	"fmt"

	"github.com/sluicehq/sluice/pkg/remoteshell"
)

// Kind classifies an error by the response it demands, per the policy table:
// transient network errors retry, an orphan process is fatal, invariant
// violations are logged but non-blocking, malformed input is skipped and
// counted, a fatal I/O error aborts, and a feedback/rebuild failure is
// non-fatal because the batch's cracks are already durable.
type Kind string

const (
	KindTransientNetwork Kind = "transient_network"
	KindOrphan           Kind = "orphan"
	KindInvariant        Kind = "invariant"
	KindMalformed        Kind = "malformed"
	KindFatalIO          Kind = "fatal_io"
	KindFeedbackRebuild  Kind = "feedback_rebuild"
)

// Error wraps an underlying cause with a Kind and the stage it occurred in,
// e.g. "ATTACKS" or "FEEDBACK", matching the batch state machine's stage
// names so log lines and the printed resume command agree with each other.
type Error struct {
	Kind  Kind
	Stage string
	Cause error
}

func (e *Error) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s[%s]: %v", e.Stage, e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New wraps cause as a classified error occurring during stage.
func New(kind Kind, stage string, cause error) *Error {
	return &Error{Kind: kind, Stage: stage, Cause: cause}
}

// Classify inspects err and assigns it a Kind, promoting a
// remoteshell.Error's network classification and falling back to
// KindFatalIO for anything unrecognized — the conservative default, since an
// unclassified failure should abort rather than be silently retried forever.
func Classify(err error, stage string) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}
	if remoteshell.IsNetwork(err) {
		return New(KindTransientNetwork, stage, err)
	}
	return New(KindFatalIO, stage, err)
}

// IsFatal reports whether an error of this Kind must abort the batch
// immediately rather than being logged and carried past.
func IsFatal(kind Kind) bool {
	switch kind {
	case KindOrphan, KindFatalIO:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether the policy table calls for a retry-with-backoff
// response rather than treating the error as terminal for its stage.
func IsRetryable(kind Kind) bool {
	return kind == KindTransientNetwork
}
