package transport

import "errors"

var (
	ErrConnection   = errors.New("connection failed")
	ErrNotConnected = errors.New("session is not open")
	ErrEmptyFrame   = errors.New("frame has neither text nor file")
	ErrQueueFull    = errors.New("session send queue is full")
)
