package wa

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.mau.fi/whatsmeow/store"

	"github.com/nebulalabs/nebula-pair/internal/creds"
)

// sessionCredentials is the creds.json layout consumed by the downstream
// bot. Key material is base64 so the file stays plain JSON.
type sessionCredentials struct {
	JID            string `json:"jid"`
	RegistrationID uint32 `json:"registrationId"`
	NoisePub       string `json:"noisePub"`
	NoisePriv      string `json:"noisePriv"`
	IdentityPub    string `json:"identityPub"`
	IdentityPriv   string `json:"identityPriv"`
	SignedPreKeyID uint32 `json:"signedPreKeyId"`
	SignedPreKey   string `json:"signedPreKey"`
	AdvSecretKey   string `json:"advSecretKey"`
	Platform       string `json:"platform,omitempty"`
	BusinessName   string `json:"businessName,omitempty"`
	PushName       string `json:"pushName,omitempty"`
	PairedAt       int64  `json:"pairedAt"`
}

// writeCredentialSnapshot serializes the device's auth state into the
// workspace's creds.json. Called again on Connected to pick up fields that
// arrive late; overwriting is harmless since the content only grows.
func writeCredentialSnapshot(dir string, device *store.Device) error {
	if device == nil || device.ID == nil {
		return fmt.Errorf("device not paired yet")
	}
	if device.NoiseKey == nil || device.IdentityKey == nil || device.SignedPreKey == nil {
		return fmt.Errorf("device key material incomplete")
	}

	b64 := base64.StdEncoding.EncodeToString
	snap := sessionCredentials{
		JID:            device.ID.String(),
		RegistrationID: device.RegistrationID,
		NoisePub:       b64(device.NoiseKey.Pub[:]),
		NoisePriv:      b64(device.NoiseKey.Priv[:]),
		IdentityPub:    b64(device.IdentityKey.Pub[:]),
		IdentityPriv:   b64(device.IdentityKey.Priv[:]),
		SignedPreKeyID: device.SignedPreKey.KeyID,
		SignedPreKey:   b64(device.SignedPreKey.Priv[:]),
		AdvSecretKey:   b64(device.AdvSecretKey),
		Platform:       device.Platform,
		BusinessName:   device.BusinessName,
		PushName:       device.PushName,
		PairedAt:       time.Now().UnixMilli(),
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	path := filepath.Join(dir, creds.FileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", creds.FileName, err)
	}
	return nil
}
