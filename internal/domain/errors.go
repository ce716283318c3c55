package domain

import "errors"

var (
	// ErrNotConnected signals no secret exists for the company. This is a
	// valid terminal state, not an operational failure.
	ErrNotConnected = errors.New("connections: not connected")
	// ErrDecryptionFailure indicates stored ciphertext could not be read
	// back (corruption, tampering, or key rotation mismatch).
	ErrDecryptionFailure = errors.New("connections: decryption failure")
	// ErrRefreshFailure indicates the provider rejected or never answered
	// a token refresh.
	ErrRefreshFailure = errors.New("connections: refresh failure")
	// ErrStorageFailure indicates refreshed tokens could not be persisted
	// after a successful provider exchange.
	ErrStorageFailure = errors.New("connections: storage failure")
	// ErrInvalidState indicates the OAuth consent state is missing or does
	// not match the callback.
	ErrInvalidState = errors.New("connections: invalid state")
	// ErrInvalidRequest indicates caller input validation errors.
	ErrInvalidRequest = errors.New("connections: invalid request")
)
