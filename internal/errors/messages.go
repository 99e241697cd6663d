package errors

import (
	"errors"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	MsgInvalidCredentials = "Invalid email or password"
	MsgRateLimited        = "Too many attempts. Please wait a moment and try again."
	MsgNetwork            = "Unable to reach the server. Check your connection and try again."
	MsgSessionExpired     = "Your session has expired. Please sign in again."
	MsgForbidden          = "You don't have permission to do that."
	MsgNotFound           = "The requested item could not be found."
	MsgServer             = "Something went wrong on our side. Please try again."
)

// FirstFieldError returns the field-level message that sorts first by field
// name, so the choice is stable across map iteration.
func FirstFieldError(err error) (field, msg string, ok bool) {
	var appErr *AppError
	if !errors.As(err, &appErr) || len(appErr.Fields) == 0 {
		return "", "", false
	}
	keys := make([]string, 0, len(appErr.Fields))
	for k := range appErr.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0], appErr.Fields[keys[0]], true
}

// UserMessage returns the text shown to the user for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return MsgServer
	}
	switch appErr.Kind {
	case KindAuth:
		return MsgSessionExpired
	case KindForbidden:
		return MsgForbidden
	case KindValidation:
		if _, msg, ok := FirstFieldError(appErr); ok {
			return msg
		}
		return appErr.Message
	case KindRateLimited:
		return MsgRateLimited
	case KindNetwork:
		return MsgNetwork
	case KindNotFound:
		return MsgNotFound
	case KindServer:
		return MsgServer
	}
	return appErr.Message
}

// NewValidationError converts binding errors into a 422 carrying one message
// per offending field.
func NewValidationError(err error) *AppError {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return UnprocessableEntity("Invalid input", err)
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		name := lowerFirst(fe.Field())
		fields[name] = fieldMessage(name, fe)
	}
	appErr := UnprocessableEntity("Validation failed", err)
	appErr.Fields = fields
	return appErr
}

func fieldMessage(name string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "email":
		return name + " must be a valid email address"
	case "min":
		return name + " must be at least " + fe.Param() + " characters"
	case "max":
		return name + " must be at most " + fe.Param() + " characters"
	case "oneof":
		return name + " must be one of: " + fe.Param()
	}
	return name + " is invalid"
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
