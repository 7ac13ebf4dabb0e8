package transport

import (
	"errors"

	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/domain"
)

const (
	CodeInvalidArgument = "invalid_argument"
	CodeNotFound        = "not_found"
	CodeForbidden       = "forbidden"
	CodeInternal        = "internal"
)

// Error is the wire form of a failed command.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// MapError converts a domain error into a client-facing error. Anything it
// does not recognise becomes an opaque internal error; callers log the
// underlying error.
func MapError(err error) *Error {
	if err == nil {
		return nil
	}

	var wire *Error
	if errors.As(err, &wire) {
		return wire
	}

	switch {
	case errors.Is(err, domain.ErrMessageNotFound):
		return &Error{Code: CodeNotFound, Message: domain.ErrMessageNotFound.Error()}

	case errors.Is(err, domain.ErrNotSender):
		return &Error{Code: CodeForbidden, Message: domain.ErrNotSender.Error()}

	case errors.Is(err, domain.ErrValidation):
		return &Error{Code: CodeInvalidArgument, Message: validationMessage(err)}

	default:
		return &Error{Code: CodeInternal, Message: "internal server error"}
	}
}

// validationMessage strips wrapping added by inner layers so clients see
// only the domain sentence.
func validationMessage(err error) string {
	for _, known := range []error{
		domain.ErrEmptyPayload,
		domain.ErrMultiplePayloads,
		domain.ErrMessageTooLarge,
		domain.ErrScheduleInPast,
		domain.ErrInvalidMessage,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}
