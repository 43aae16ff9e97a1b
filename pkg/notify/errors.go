package notify

import "errors"

var (
	ErrInvalidConfig    = errors.New("invalid notifier configuration")
	ErrMissingRecipient = errors.New("notification has no email recipient")
	ErrSendFailed       = errors.New("failed to send notification")
)
