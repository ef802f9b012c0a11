// Package httpapi is the thin HTTP surface over the pairing registry:
// challenge issuance, status polling, a WebSocket status push, and the
// embedded landing page.
package httpapi

import (
	"context"
	_ "embed"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nebulalabs/nebula-pair/internal/pairing"
)

//go:embed index.html
var indexPage []byte

// PairingRegistry is the slice of the registry the HTTP layer consumes.
type PairingRegistry interface {
	StartCode(ctx context.Context, rawNumber string) (string, error)
	StartQR(ctx context.Context) (qrDataURL, sessionID string, err error)
	Status(id string) string
	Watch(id string) (updates <-chan pairing.Update, cancel func(), ok bool)
	ActiveSessions() int
}

// Server routes pairing requests into the registry.
type Server struct {
	pairing PairingRegistry
	botName string
	version string
	limiter *ipLimiter
	mux     *http.ServeMux
}

// NewServer builds the HTTP handler tree. rpm/burst configure per-IP
// admission control on the challenge endpoints.
func NewServer(reg PairingRegistry, botName, version string, rpm, burst int) *Server {
	s := &Server{
		pairing: reg,
		botName: botName,
		version: version,
		limiter: newIPLimiter(rpm, burst),
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /pair", s.limited(s.handlePair))
	s.mux.HandleFunc("GET /qr", s.limited(s.handleQR))
	s.mux.HandleFunc("GET /qr-status/{id}", s.handleQRStatus)
	s.mux.HandleFunc("GET /qr-ws/{id}", s.handleQRWatch)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// limited wraps a handler with per-IP admission control.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientIP(r)) {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Too many requests"})
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response failed", "error", err)
	}
}
