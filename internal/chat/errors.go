package chat

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrAccessDenied = errors.New("access denied")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// notSender matches both ErrNotFound and ErrAccessDenied. Gateways report it
// as a missing message.
func notSender(messageId string) error {
	return fmt.Errorf("%w: %w: message %s", ErrNotFound, ErrAccessDenied, messageId)
}
