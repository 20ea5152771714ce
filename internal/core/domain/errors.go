package domain

import "errors"

var (
	ErrStreamNotFound    = errors.New("stream not found")
	ErrStreamEnded       = errors.New("stream ended")
	ErrStreamFull        = errors.New("stream is full")
	ErrViewerNotFound    = errors.New("viewer not found")
	ErrBroadcasterTaken  = errors.New("stream already has a broadcaster")
	ErrChannelClosed     = errors.New("signaling channel closed")
	ErrNoLocalMedia      = errors.New("local media not captured")
	ErrConnectionClosed  = errors.New("peer connection closed")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidCredential = errors.New("invalid credentials")
)
