package world

import (
	"errors"
	"fmt"
)

// Kind classifies a map construction error
type Kind string

// Error kinds
const (
	KindPositionResolution Kind = "PositionResolutionError"
	KindBounds             Kind = "BoundsError"
	KindDuplicatePlayer    Kind = "DuplicatePlayerError"
	KindUnknownLandmark    Kind = "UnknownLandmarkError"
	KindDuplicateLandmark  Kind = "DuplicateLandmarkError"
	KindDuplicateEntity    Kind = "DuplicateEntityError"
	KindInvalidPlacement   Kind = "InvalidPlacementError"
	KindSchemaValidation   Kind = "SchemaValidationError"
	KindNoGrid             Kind = "NoGridError"
	KindSessionFinalized   Kind = "SessionFinalizedError"
	KindMissingPlayer      Kind = "MissingPlayerError"
	KindBudgetExhausted    Kind = "BudgetExhaustedError"
	KindExternalService    Kind = "ExternalServiceError"
	KindJudgmentParse      Kind = "JudgmentParseError"
)

// Error is the single structured error type returned by map construction,
// protocol and verification code. Sentinels carry only a Kind and match any
// error of that kind through errors.Is.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error

	// Transient marks external failures that may succeed on retry
	Transient bool
}

// Sentinel errors for errors.Is
var (
	ErrPositionResolution = &Error{Kind: KindPositionResolution}
	ErrBounds             = &Error{Kind: KindBounds}
	ErrDuplicatePlayer    = &Error{Kind: KindDuplicatePlayer}
	ErrUnknownLandmark    = &Error{Kind: KindUnknownLandmark}
	ErrDuplicateLandmark  = &Error{Kind: KindDuplicateLandmark}
	ErrDuplicateEntity    = &Error{Kind: KindDuplicateEntity}
	ErrInvalidPlacement   = &Error{Kind: KindInvalidPlacement}
	ErrSchemaValidation   = &Error{Kind: KindSchemaValidation}
	ErrNoGrid             = &Error{Kind: KindNoGrid}
	ErrSessionFinalized   = &Error{Kind: KindSessionFinalized}
	ErrMissingPlayer      = &Error{Kind: KindMissingPlayer}
	ErrBudgetExhausted    = &Error{Kind: KindBudgetExhausted}
	ErrExternalService    = &Error{Kind: KindExternalService}
	ErrJudgmentParse      = &Error{Kind: KindJudgmentParse}
)

// Errorf builds an *Error of the given kind
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind that unwraps to cause
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Msg
}

// Unwrap exposes the cause so that wrapped kinds still match
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same kind when target is a sentinel
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Msg != "" || t.Cause != nil {
		return e == t
	}
	return e.Kind == t.Kind
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" if none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsTransient reports whether err is an external failure worth retrying
func IsTransient(err error) bool {
	var e *Error
	for err != nil {
		if errors.As(err, &e) {
			if e.Transient {
				return true
			}
			err = e.Cause
			continue
		}
		return false
	}
	return false
}

// Warning is a non-fatal condition recorded on a session, never returned as an error
type Warning struct {
	Kind    string `json:"kind"`
	Op      string `json:"op"`
	Message string `json:"message"`
}

// Warning kinds
const (
	WarnOverlap = "OverlapWarning"
)
