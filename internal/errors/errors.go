package errors

import (
	"errors"
	"net/http"
)

// Kind classifies an error for propagation and presentation.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindForbidden
	KindValidation
	KindRateLimited
	KindNetwork
	KindNotFound
	KindConflict
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation"
	case KindRateLimited:
		return "rate_limited"
	case KindNetwork:
		return "network"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindServer:
		return "server"
	}
	return "unknown"
}

// AppError represents an application error
type AppError struct {
	Kind    Kind              `json:"-"`
	Code    int               `json:"-"`                // HTTP status code, 0 when no response
	Message string            `json:"message"`          // Error message
	Fields  map[string]string `json:"errors,omitempty"` // Field-level validation messages
	Err     error             `json:"-"`                // Original error
}

// Error returns the error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the original error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithMessage returns a copy of the AppError with a custom message
func (e *AppError) WithMessage(msg string) *AppError {
	c := *e
	c.Message = msg
	return &c
}

// WithField returns a copy of the AppError carrying one more field message.
func (e *AppError) WithField(field, msg string) *AppError {
	c := *e
	c.Fields = make(map[string]string, len(e.Fields)+1)
	for k, v := range e.Fields {
		c.Fields[k] = v
	}
	c.Fields[field] = msg
	return &c
}

// NewAppError creates a new application error
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{
		Kind:    KindForStatus(code),
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// KindForStatus maps an HTTP status to its error kind.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuth
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status >= 500:
		return KindServer
	}
	return KindUnknown
}

func BadRequest(msg string, err error) *AppError {
	return NewAppError(http.StatusBadRequest, msg, err)
}

func Unauthorized(msg string, err error) *AppError {
	return NewAppError(http.StatusUnauthorized, msg, err)
}

func Forbidden(msg string, err error) *AppError {
	return NewAppError(http.StatusForbidden, msg, err)
}

func NotFound(msg string, err error) *AppError {
	return NewAppError(http.StatusNotFound, msg, err)
}

func Conflict(msg string, err error) *AppError {
	return NewAppError(http.StatusConflict, msg, err)
}

func UnprocessableEntity(msg string, err error) *AppError {
	return NewAppError(http.StatusUnprocessableEntity, msg, err)
}

func TooManyRequests(msg string, err error) *AppError {
	return NewAppError(http.StatusTooManyRequests, msg, err)
}

func Internal(err error) *AppError {
	return NewAppError(http.StatusInternalServerError, "Internal server error", err)
}

// Network wraps a transport failure where no response was received.
func Network(err error) *AppError {
	return &AppError{Kind: KindNetwork, Message: "Network error", Err: err}
}

// Validation builds a client-side validation error that never reached the
// network.
func Validation(msg string, fields map[string]string) *AppError {
	return &AppError{Kind: KindValidation, Code: http.StatusUnprocessableEntity, Message: msg, Fields: fields}
}

// FromResponse classifies a non-2xx backend response.
func FromResponse(status int, message string, fields map[string]string) *AppError {
	if message == "" {
		message = http.StatusText(status)
	}
	return &AppError{Kind: KindForStatus(status), Code: status, Message: message, Fields: fields}
}

// KindOf returns the kind of the first AppError in err's chain.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
