package wa

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/nebulalabs/nebula-pair/internal/pairing"
)

// eventBuffer sizes the per-link event channel. A pairing attempt sees a
// handful of events total; 16 absorbs any burst without blocking the
// whatsmeow dispatch goroutine.
const eventBuffer = 16

// waLink is one live WhatsApp connection implementing pairing.Link.
type waLink struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	dir       string
	challenge pairing.Challenge
	handlerID uint32

	lifetime context.Context
	stop     context.CancelFunc

	mu     sync.Mutex
	closed bool
	events chan pairing.ConnectionEvent

	closeOnce sync.Once
}

func newLink(client *whatsmeow.Client, container *sqlstore.Container, dir string) *waLink {
	lifetime, stop := context.WithCancel(context.Background())
	l := &waLink{
		client:    client,
		container: container,
		dir:       dir,
		lifetime:  lifetime,
		stop:      stop,
		events:    make(chan pairing.ConnectionEvent, eventBuffer),
	}
	l.handlerID = client.AddEventHandler(l.onEvent)
	return l
}

func (l *waLink) Challenge() pairing.Challenge { return l.challenge }

func (l *waLink) Events() <-chan pairing.ConnectionEvent { return l.events }

// onEvent bridges whatsmeow events onto the pairing event stream.
func (l *waLink) onEvent(evt any) {
	switch e := evt.(type) {
	case *events.PairSuccess:
		// Credentials just landed in the device store; snapshot them so
		// the codec can read the workspace after the settle delay.
		if err := writeCredentialSnapshot(l.dir, l.client.Store); err != nil {
			slog.Error("credential snapshot failed", "error", err)
		}
	case *events.Connected:
		// A second snapshot picks up push name and platform, which are
		// only populated once the session is fully open.
		if err := writeCredentialSnapshot(l.dir, l.client.Store); err != nil {
			slog.Error("credential snapshot failed", "error", err)
		}
		l.emit(pairing.ConnectionEvent{Kind: pairing.EventOpen})
	case *events.Disconnected:
		l.emit(pairing.ConnectionEvent{Kind: pairing.EventClose, Reason: "disconnected"})
	case *events.LoggedOut:
		l.emit(pairing.ConnectionEvent{Kind: pairing.EventClose, Reason: fmt.Sprintf("logged out: %v", e.Reason)})
	case *events.StreamError:
		l.emit(pairing.ConnectionEvent{Kind: pairing.EventClose, Reason: "stream error: " + e.Code})
	case *events.ConnectFailure:
		l.emit(pairing.ConnectionEvent{Kind: pairing.EventClose, Reason: fmt.Sprintf("connect failure: %v", e.Reason)})
	}
}

// pumpQR forwards rotated QR codes after the first one was returned from Dial.
func (l *waLink) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for {
		select {
		case item, ok := <-qrChan:
			if !ok {
				return
			}
			switch item.Event {
			case whatsmeow.QRChannelEventCode:
				dataURL, err := renderQRDataURL(item.Code, qrImageSize)
				if err != nil {
					slog.Error("qr render failed", "error", err)
					continue
				}
				l.emit(pairing.ConnectionEvent{Kind: pairing.EventQRRotated, QR: dataURL})
			case whatsmeow.QRChannelSuccess.Event:
				// Pair success; the Connected event carries the open.
			default:
				l.emit(pairing.ConnectionEvent{Kind: pairing.EventClose, Reason: "qr " + item.Event})
				return
			}
		case <-l.lifetime.Done():
			return
		}
	}
}

// emit delivers an event without ever blocking the caller. After Close no
// events are delivered.
func (l *waLink) emit(ev pairing.ConnectionEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.events <- ev:
	default:
		slog.Warn("connection event dropped", "kind", ev.Kind)
	}
}

func (l *waLink) SendText(ctx context.Context, text string) error {
	jid, err := l.ownJID()
	if err != nil {
		return err
	}
	_, err = l.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	return nil
}

func (l *waLink) SendDocument(ctx context.Context, filename, mimetype string, data []byte, caption string) error {
	jid, err := l.ownJID()
	if err != nil {
		return err
	}

	uploaded, err := l.client.Upload(ctx, data, whatsmeow.MediaDocument)
	if err != nil {
		return fmt.Errorf("upload document: %w", err)
	}

	msg := &waE2E.Message{
		DocumentMessage: &waE2E.DocumentMessage{
			Title:         proto.String(filename),
			FileName:      proto.String(filename),
			Mimetype:      proto.String(mimetype),
			Caption:       proto.String(caption),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		},
	}
	if _, err := l.client.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	return nil
}

// ownJID is the adapter's own authenticated identity. Delivery always goes
// here, never to a client-supplied address.
func (l *waLink) ownJID() (types.JID, error) {
	id := l.client.Store.ID
	if id == nil {
		return types.EmptyJID, fmt.Errorf("link has no authenticated identity yet")
	}
	return id.ToNonAD(), nil
}

// Close tears down the connection and ends the event stream. Idempotent.
func (l *waLink) Close() {
	l.closeOnce.Do(func() {
		l.stop()
		l.client.RemoveEventHandler(l.handlerID)
		l.client.Disconnect()
		// Release the auth store before the workspace is removed; a DB
		// left open would keep its fds and WAL past RemoveAll.
		if err := l.container.Close(); err != nil {
			slog.Warn("close auth store failed", "error", err)
		}

		l.mu.Lock()
		l.closed = true
		close(l.events)
		l.mu.Unlock()
	})
}
