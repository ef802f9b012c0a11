package pairing

import (
	"context"
	"fmt"
	"time"

	"github.com/nebulalabs/nebula-pair/internal/creds"
)

// Deliverer sends the encoded session token back to the link's own
// authenticated identity: first as a text message, then the raw credential
// bytes as a JSON attachment. Both sends must succeed before a session
// counts as delivered, and nothing here retries.
type Deliverer struct {
	// BotName brands the messages.
	BotName string
	// Gap is the pause between the text and the attachment send.
	Gap time.Duration
}

// NewDeliverer returns a deliverer with the default inter-message gap.
func NewDeliverer(botName string) *Deliverer {
	return &Deliverer{BotName: botName, Gap: time.Second}
}

// Deliver sends the token text followed by the creds.json backup.
func (d *Deliverer) Deliver(ctx context.Context, link Link, token string, raw []byte) error {
	text := fmt.Sprintf(
		"*🌌 %s — Session ID*\n\n%s\n\n> ⚠️ Never share this code with anyone!\n> _%s_",
		d.BotName, token, d.BotName,
	)
	if err := link.SendText(ctx, text); err != nil {
		return fmt.Errorf("send session token: %w", err)
	}

	sleepCtx(ctx, d.Gap)

	caption := d.BotName + " — session file (backup)"
	if err := link.SendDocument(ctx, creds.FileName, "application/json", raw, caption); err != nil {
		return fmt.Errorf("send session backup: %w", err)
	}
	return nil
}
