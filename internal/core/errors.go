package core

import "errors"

var (
	// ErrProtocolViolation means a connection did not open with a connect message.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrAlreadyRegistered means a peer tried to register twice.
	ErrAlreadyRegistered = errors.New("already registered")
	// ErrHubClosed is returned when a connection arrives after shutdown started.
	ErrHubClosed = errors.New("hub closed")
)
