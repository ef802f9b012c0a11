package pairing

import "context"

// Mode selects which challenge type a pairing attempt uses.
type Mode string

const (
	// ModeCode requests a pairing code bound to a phone number.
	ModeCode Mode = "code"
	// ModeQR requests a scannable QR challenge.
	ModeQR Mode = "qr"
)

// ChallengeRequest describes the challenge the registry wants issued.
type ChallengeRequest struct {
	Mode Mode
	// Target is the normalized phone number. Set for ModeCode only.
	Target string
}

// Challenge is the artifact shown to the user. Exactly one field is set,
// matching the request mode. Immutable once issued, except that QR
// challenges rotate (see EventQRRotated).
type Challenge struct {
	// Code is the dash-grouped pairing code ("XXXX-XXXX").
	Code string
	// QRDataURL is a data:image/png;base64 URL of the rendered QR.
	QRDataURL string
}

// EventKind classifies a connection event.
type EventKind string

const (
	// EventOpen fires when the remote side completed authentication.
	// The underlying client may emit it more than once; the registry
	// de-duplicates by state.
	EventOpen EventKind = "open"
	// EventClose fires when the connection ended for any reason.
	EventClose EventKind = "close"
	// EventQRRotated carries a fresh QR payload replacing the previous one.
	EventQRRotated EventKind = "qr_rotated"
)

// ConnectionEvent is one notification from the protocol client.
type ConnectionEvent struct {
	Kind   EventKind
	Reason string // close reason, when Kind == EventClose
	QR     string // rotated QR data URL, when Kind == EventQRRotated
}

// Link is a live connection to the messaging network for one attempt.
// Events() yields events in emission order and is closed after Close();
// no events are delivered past that point.
type Link interface {
	// Challenge returns the challenge issued when the link was dialed.
	Challenge() Challenge

	// Events is the single-consumer stream driving the session state machine.
	Events() <-chan ConnectionEvent

	// SendText delivers a text message to the link's own authenticated
	// identity. Valid only after EventOpen.
	SendText(ctx context.Context, text string) error

	// SendDocument delivers a file attachment to the same identity.
	SendDocument(ctx context.Context, filename, mimetype string, data []byte, caption string) error

	// Close tears the connection down and ends the event stream. Safe to
	// call more than once.
	Close()
}

// Adapter is the boundary to the external messaging-network client. Dial
// issues the requested challenge against a fresh workspace directory; for
// ModeQR it blocks until the first QR arrives or ctx expires
// (ErrChallengeTimeout). A target that already holds a registered credential
// yields ErrAlreadyActive; other failures wrap ErrAdapterFailure.
type Adapter interface {
	Dial(ctx context.Context, dir string, req ChallengeRequest) (Link, error)
}
