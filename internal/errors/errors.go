// Package errors provides the engine's structured error taxonomy.
//
// Every failure crossing the engine boundary is an *Error carrying a Code.
// Transports map the code to a gRPC code or HTTP status so the presentation
// layer can render failures deterministically.
package errors

import (
	stderrors "errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Recoverable play errors.
	CodeCardLimitReached   Code = "CARD_LIMIT_REACHED"
	CodePoolExhausted      Code = "POOL_EXHAUSTED"
	CodeCardNotFound       Code = "CARD_NOT_FOUND"
	CodeCardNotEligible    Code = "CARD_NOT_ELIGIBLE"
	CodeCardAlreadyOnBoard Code = "CARD_ALREADY_ON_BOARD"
	CodeInvalidCardKind    Code = "INVALID_CARD_KIND"
	CodeNoActiveQuiz       Code = "NO_ACTIVE_QUIZ"
	CodeInvalidAnswer      Code = "INVALID_ANSWER"

	// Diagnostics only; never returned from a play.
	CodeUnknownCardReference Code = "UNKNOWN_CARD_REFERENCE"

	// Loading errors.
	CodeInvalidConfiguration Code = "INVALID_CONFIGURATION"

	// Defects in the caller.
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeGameCompleted     Code = "GAME_COMPLETED"

	// Storage errors.
	CodeNotFound Code = "NOT_FOUND"

	// Malformed transport requests.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
)

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Human-readable message
	Details  []string          // Itemized details, e.g. validation errors
	Metadata map[string]string // Additional context
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is matching. Only the Code is compared.
var (
	ErrCardLimitReached     = &Error{Code: CodeCardLimitReached, Message: "card limit reached"}
	ErrPoolExhausted        = &Error{Code: CodePoolExhausted, Message: "draw pool exhausted"}
	ErrCardNotFound         = &Error{Code: CodeCardNotFound, Message: "card not found"}
	ErrCardNotEligible      = &Error{Code: CodeCardNotEligible, Message: "card not eligible in phase"}
	ErrCardAlreadyOnBoard   = &Error{Code: CodeCardAlreadyOnBoard, Message: "card already on board"}
	ErrInvalidCardKind      = &Error{Code: CodeInvalidCardKind, Message: "invalid card kind"}
	ErrNoActiveQuiz         = &Error{Code: CodeNoActiveQuiz, Message: "no active quiz"}
	ErrInvalidAnswer        = &Error{Code: CodeInvalidAnswer, Message: "invalid answer"}
	ErrUnknownCardReference = &Error{Code: CodeUnknownCardReference, Message: "unknown card reference"}
	ErrInvalidConfiguration = &Error{Code: CodeInvalidConfiguration, Message: "invalid configuration"}
	ErrInvalidTransition    = &Error{Code: CodeInvalidTransition, Message: "invalid transition"}
	ErrGameCompleted        = &Error{Code: CodeGameCompleted, Message: "game completed"}
	ErrNotFound             = &Error{Code: CodeNotFound, Message: "not found"}
)

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithMetadata creates a domain error with metadata.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

// WithDetails creates a domain error listing itemized details.
func WithDetails(code Code, message string, details []string) *Error {
	return &Error{Code: code, Message: message, Details: append([]string(nil), details...)}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the code of the first *Error in err's chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var de *Error
	if stderrors.As(err, &de) {
		return de.Code
	}
	return CodeUnknown
}

// DetailsOf returns the itemized details of the first *Error in err's chain.
func DetailsOf(err error) []string {
	var de *Error
	if stderrors.As(err, &de) {
		return de.Details
	}
	return nil
}

// GRPCCode maps a code to a gRPC status code.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeCardLimitReached, CodePoolExhausted:
		return codes.ResourceExhausted
	case CodeCardNotFound, CodeNotFound:
		return codes.NotFound
	case CodeCardNotEligible, CodeCardAlreadyOnBoard, CodeNoActiveQuiz, CodeInvalidTransition, CodeGameCompleted:
		return codes.FailedPrecondition
	case CodeInvalidCardKind, CodeInvalidAnswer, CodeInvalidConfiguration, CodeInvalidArgument:
		return codes.InvalidArgument
	default:
		return codes.Unknown
	}
}

// HTTPStatus maps a code to an HTTP status.
func (c Code) HTTPStatus() int {
	switch c.GRPCCode() {
	case codes.ResourceExhausted, codes.FailedPrecondition:
		return http.StatusConflict
	case codes.NotFound:
		return http.StatusNotFound
	case codes.InvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ToGRPCStatus converts err to a gRPC status error.
func ToGRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	return status.Error(CodeOf(err).GRPCCode(), err.Error())
}
