// Package apperr defines typed domain errors carrying the error-envelope
// code used at the HTTP boundary. Domain packages return these instead of
// writing directly to an HTTP response.
package apperr

import "fmt"

// Kind classifies an error for HTTP status mapping.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindAuth        Kind = "auth"
	KindForbidden   Kind = "forbidden"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindRateLimited Kind = "rate_limited"
	KindTooLarge    Kind = "too_large"
	KindInfra       Kind = "infra"
)

// Error is a typed application error with an UPPER_SNAKE code, a
// human-readable message and optional structured details.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func newErr(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, cause: cause}
}

func Validation(code, message string) *Error { return newErr(KindValidation, code, message, nil) }
func Auth(code, message string) *Error       { return newErr(KindAuth, code, message, nil) }
func Forbidden(code, message string) *Error  { return newErr(KindForbidden, code, message, nil) }
func NotFound(code, message string) *Error   { return newErr(KindNotFound, code, message, nil) }
func Conflict(code, message string) *Error   { return newErr(KindConflict, code, message, nil) }
func RateLimited(code, message string) *Error {
	return newErr(KindRateLimited, code, message, nil)
}
func TooLarge(code, message string) *Error { return newErr(KindTooLarge, code, message, nil) }
func Infra(code, message string, cause error) *Error {
	return newErr(KindInfra, code, message, cause)
}

// WithDetails returns a copy of e with Details set.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// StatusCode maps Kind to the HTTP status the error surface writes.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindValidation:
		return 422
	case KindAuth:
		return 401
	case KindForbidden:
		return 403
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindRateLimited:
		return 429
	case KindTooLarge:
		return 413
	default:
		return 500
	}
}

// Common codes reused across packages.
const (
	CodeMissingAPIKey      = "MISSING_API_KEY"
	CodeInvalidAPIKey      = "INVALID_API_KEY"
	CodeRevokedAPIKey      = "REVOKED_API_KEY"
	CodeTenantAccessDenied = "TENANT_ACCESS_DENIED"
	CodeInsufficientPerms  = "INSUFFICIENT_PERMISSIONS"
	CodeTemplateNotFound   = "TEMPLATE_NOT_FOUND"
	CodeEvaluationNotFound = "EVALUATION_NOT_FOUND"
	CodeTemplateExists     = "TEMPLATE_ALREADY_EXISTS"
	CodeNoFieldsToUpdate   = "NO_FIELDS_TO_UPDATE"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeEmailTaken         = "EMAIL_ALREADY_REGISTERED"
)
