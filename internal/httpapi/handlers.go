package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/nebulalabs/nebula-pair/internal/pairing"
)

// handlePair issues a pairing code for ?number=N and responds immediately;
// the rest of the lifecycle runs asynchronously.
func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("number")
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Number is required"})
		return
	}

	code, err := s.pairing.StartCode(r.Context(), raw)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"code": code})
	case errors.Is(err, pairing.ErrInvalidNumber):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid number"})
	case errors.Is(err, pairing.ErrAlreadyActive):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Session already active. Try again in a few seconds."})
	default:
		slog.Error("pair request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Could not generate the pair code. Try again."})
	}
}

// handleQR blocks until the first QR payload or the configured timeout.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	qr, id, err := s.pairing.StartQR(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"qr": qr, "sessionId": id})
	case errors.Is(err, pairing.ErrChallengeTimeout):
		writeJSON(w, http.StatusOK, map[string]string{"error": "Timeout"})
	default:
		slog.Error("qr request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Could not generate the QR. Try again."})
	}
}

// handleQRStatus is the polling endpoint. Unknown ids read as expired.
func (s *Server) handleQRStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	writeJSON(w, http.StatusOK, map[string]string{"status": s.pairing.Status(id)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "online",
		"bot":      s.botName,
		"version":  s.version,
		"sessions": s.pairing.ActiveSessions(),
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexPage)
}
