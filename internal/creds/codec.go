// Package creds turns raw credential material into a portable session token.
//
// The token format is MARKER~base64(raw). Decoding is the downstream bot's
// job (strip the marker, base64-decode), so no decode path exists here.
package creds

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the credential file the protocol client writes into a
// workspace once the remote side authenticates.
const FileName = "creds.json"

// ErrCredentialUnavailable is returned when the credential file is missing
// or unreadable. This can legitimately race the client's asynchronous flush;
// callers apply a bounded settle delay before reading, never an open retry.
var ErrCredentialUnavailable = errors.New("credential material unavailable")

// Codec encodes credential material read from a workspace.
type Codec struct {
	marker string
}

// NewCodec returns a codec that prefixes tokens with the given marker.
func NewCodec(marker string) *Codec {
	return &Codec{marker: marker}
}

// Read loads the raw credential material from a workspace directory.
func (c *Codec) Read(dir string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCredentialUnavailable, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrCredentialUnavailable, FileName)
	}
	return data, nil
}

// Encode produces the session token for raw credential bytes.
func (c *Codec) Encode(raw []byte) string {
	return c.marker + "~" + base64.StdEncoding.EncodeToString(raw)
}
