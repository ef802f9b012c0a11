// Package wa implements the pairing protocol adapter on top of whatsmeow.
//
// Each Dial builds an isolated whatsmeow client whose sqlstore lives inside
// the attempt's workspace directory, so auth state never crosses attempts.
// Connection-state changes from the client are bridged onto the
// pairing.ConnectionEvent stream the registry consumes.
package wa

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
	_ "modernc.org/sqlite"

	"github.com/nebulalabs/nebula-pair/internal/pairing"
)

const (
	authDBName        = "auth.db"
	clientDisplayName = "Chrome (Linux)"
	qrImageSize       = 300

	// pairCodeDelay is how long to wait after Connect before requesting a
	// pairing code; PairPhone requires the websocket to be fully
	// established or the code request IQ fails.
	pairCodeDelay = 1500 * time.Millisecond
)

// Adapter dials per-attempt WhatsApp connections.
type Adapter struct {
	log waLog.Logger
}

// NewAdapter returns an adapter. The whatsmeow client's own log output is
// suppressed; the gateway logs lifecycle events itself.
func NewAdapter() *Adapter {
	return &Adapter{log: waLog.Noop}
}

// Dial creates a client over a fresh store inside dir, connects, and issues
// the requested challenge. The returned link owns the connection; its event
// stream ends when the link is closed.
func (a *Adapter) Dial(ctx context.Context, dir string, req pairing.ChallengeRequest) (pairing.Link, error) {
	dbPath := filepath.Join(dir, authDBName)
	address := "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	container, err := sqlstore.New(ctx, "sqlite", address, a.log)
	if err != nil {
		return nil, fmt.Errorf("%w: open auth store: %w", pairing.ErrAdapterFailure, err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("%w: load device: %w", pairing.ErrAdapterFailure, err)
	}

	client := whatsmeow.NewClient(device, a.log)
	if client.Store.ID != nil {
		// The workspace already holds a registered credential; a second
		// attempt against it would corrupt the linked session.
		container.Close()
		return nil, pairing.ErrAlreadyActive
	}

	link := newLink(client, container, dir)

	switch req.Mode {
	case pairing.ModeCode:
		if err := a.dialCode(ctx, link, req.Target); err != nil {
			link.Close()
			return nil, err
		}
	case pairing.ModeQR:
		if err := a.dialQR(ctx, link); err != nil {
			link.Close()
			return nil, err
		}
	default:
		link.Close()
		return nil, fmt.Errorf("%w: unknown challenge mode %q", pairing.ErrAdapterFailure, req.Mode)
	}

	return link, nil
}

func (a *Adapter) dialCode(ctx context.Context, link *waLink, number string) error {
	if err := link.client.Connect(); err != nil {
		return fmt.Errorf("%w: connect: %w", pairing.ErrAdapterFailure, err)
	}
	if err := waitEstablished(ctx, pairCodeDelay); err != nil {
		return err
	}

	code, err := link.client.PairPhone(ctx, number, true, whatsmeow.PairClientChrome, clientDisplayName)
	if err != nil {
		return fmt.Errorf("%w: request pairing code: %w", pairing.ErrAdapterFailure, err)
	}

	link.challenge = pairing.Challenge{Code: formatPairCode(code)}
	return nil
}

func (a *Adapter) dialQR(ctx context.Context, link *waLink) error {
	// The QR channel must outlive Dial: rotations keep arriving for the
	// whole attempt, so tie it to the link's lifetime, not to ctx. ctx
	// only bounds how long we wait for the first code.
	qrChan, err := link.client.GetQRChannel(link.lifetime)
	if err != nil {
		return fmt.Errorf("%w: qr channel: %w", pairing.ErrAdapterFailure, err)
	}

	if err := link.client.Connect(); err != nil {
		return fmt.Errorf("%w: connect: %w", pairing.ErrAdapterFailure, err)
	}

	select {
	case item, ok := <-qrChan:
		if !ok {
			return fmt.Errorf("%w: qr channel closed before first code", pairing.ErrAdapterFailure)
		}
		if item.Event != whatsmeow.QRChannelEventCode {
			return fmt.Errorf("%w: unexpected qr event %q: %v", pairing.ErrAdapterFailure, item.Event, item.Error)
		}
		dataURL, err := renderQRDataURL(item.Code, qrImageSize)
		if err != nil {
			return fmt.Errorf("%w: render qr: %w", pairing.ErrAdapterFailure, err)
		}
		link.challenge = pairing.Challenge{QRDataURL: dataURL}
	case <-ctx.Done():
		return pairing.ErrChallengeTimeout
	}

	go link.pumpQR(qrChan)
	return nil
}

// waitEstablished blocks for the post-Connect settle period, bailing out
// early if the request context ends first.
func waitEstablished(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", pairing.ErrAdapterFailure, ctx.Err())
	}
}

// formatPairCode normalizes a pairing code into dash-joined groups of four.
func formatPairCode(code string) string {
	raw := strings.ReplaceAll(code, "-", "")
	if raw == "" {
		return code
	}
	var groups []string
	for i := 0; i < len(raw); i += 4 {
		end := i + 4
		if end > len(raw) {
			end = len(raw)
		}
		groups = append(groups, raw[i:end])
	}
	formatted := strings.Join(groups, "-")
	slog.Debug("pairing code formatted", "groups", len(groups))
	return formatted
}
