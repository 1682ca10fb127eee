package domain

import "errors"

var (
	ErrAuth           = errors.New("authentication required")
	ErrEmptyMessage   = errors.New("message has neither text nor attachment")
	ErrInvalidMessage = errors.New("invalid message")
)
