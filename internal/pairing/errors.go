package pairing

import (
	"errors"

	"github.com/nebulalabs/nebula-pair/internal/creds"
)

var (
	// ErrInvalidNumber is returned for identifiers that do not normalize to
	// 7-15 digits. Rejected before any workspace is created.
	ErrInvalidNumber = errors.New("invalid phone number")

	// ErrAlreadyActive is returned when the target identity already has a
	// live pairing attempt or a registered credential.
	ErrAlreadyActive = errors.New("target already has an active session")

	// ErrChallengeTimeout is returned when no challenge arrived within the
	// configured wait (QR flow).
	ErrChallengeTimeout = errors.New("timed out waiting for challenge")

	// ErrDeliveryFailed wraps a send error during token delivery. Delivery
	// is never retried.
	ErrDeliveryFailed = errors.New("session delivery failed")

	// ErrAdapterFailure wraps an unrecoverable protocol/connection error.
	ErrAdapterFailure = errors.New("protocol adapter failure")
)

// ErrCredentialUnavailable re-exports the codec sentinel so callers can
// match the whole taxonomy from one package.
var ErrCredentialUnavailable = creds.ErrCredentialUnavailable
