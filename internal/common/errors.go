// Package common defines shared constants and sentinel errors used across
// the vaultmesh client and tracker layers. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Store-level errors.
	ErrNotFound = errors.New("not found")

	// Transport / room lifecycle errors.
	ErrTrackerUnreachable = errors.New("tracker unreachable")
	ErrNoTrackers         = errors.New("no tracker urls configured")
	ErrRoomClosed         = errors.New("room closed")

	// Cloud sync errors. ErrSessionExpired means the cached credentials are
	// dead and the user has to re-authenticate; it is deliberately distinct
	// from ErrCloudIO, whose remedy is simply trying again later.
	ErrNotSignedIn    = errors.New("not signed in")
	ErrSessionExpired = errors.New("cloud session expired")
	ErrCloudIO        = errors.New("cloud i/o failure")

	// Payload validation.
	ErrInvalidPayload = errors.New("invalid payload")
)
