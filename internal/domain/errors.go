package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotSender       = errors.New("only the sender may modify this message")
)

// Validation failures all match ErrValidation with errors.Is.
var (
	ErrInvalidMessage   = fmt.Errorf("%w: invalid message", ErrValidation)
	ErrEmptyPayload     = fmt.Errorf("%w: message payload is empty", ErrValidation)
	ErrMultiplePayloads = fmt.Errorf("%w: message carries more than one payload kind", ErrValidation)
	ErrMessageTooLarge  = fmt.Errorf("%w: message too large", ErrValidation)
	ErrScheduleInPast   = fmt.Errorf("%w: scheduled time must be in the future", ErrValidation)
)
