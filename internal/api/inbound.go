package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ticketdesk/internal/notifications/webhook"
	"ticketdesk/internal/types"
)

// signatureHeader is the Meta-convention HMAC header on inbound events.
const signatureHeader = "X-Hub-Signature-256"

// HandleInboundVerify implements the Meta-style subscription handshake:
// GET with hub.mode=subscribe, hub.verify_token and hub.challenge. A token
// match echoes the challenge with 200; anything else is 403. The comparison
// is constant-time so the endpoint leaks nothing about the stored token.
func (s *Server) HandleInboundVerify(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	provider := chi.URLParam(r, "provider")

	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	integration, err := s.integrations.GetInboundIntegration(r.Context(), orgID, provider)
	if err != nil || integration == nil || !integration.IsActive {
		s.logger.Warn("inbound verification against unknown integration",
			"organization_id", orgID,
			"provider", provider,
		)
		Error(w, r, types.NewAppError(types.ErrCodeVerifyTokenInvalid, "verification failed", nil))
		return
	}

	if mode != "subscribe" || !webhook.VerifyToken(token, integration.VerifyToken) {
		s.logger.Warn("inbound verification token mismatch",
			"organization_id", orgID,
			"provider", provider,
		)
		Error(w, r, types.NewAppError(types.ErrCodeVerifyTokenInvalid, "verification failed", nil))
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// HandleInboundEvent receives provider event posts. The response is 200
// regardless of signature validity, per the Meta convention: a non-2xx makes
// the provider retry, and retrying a forged request cannot make it valid.
// Invalid payloads are logged and discarded before reaching the sink.
func (s *Server) HandleInboundEvent(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	provider := chi.URLParam(r, "provider")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxInboundBodySize))
	if err != nil {
		s.logger.Warn("inbound event body read failed",
			"organization_id", orgID,
			"provider", provider,
			"error", err.Error(),
		)
		w.WriteHeader(http.StatusOK)
		return
	}

	integration, err := s.integrations.GetInboundIntegration(r.Context(), orgID, provider)
	if err != nil || integration == nil || !integration.IsActive {
		s.logger.Warn("inbound event for unknown integration",
			"organization_id", orgID,
			"provider", provider,
		)
		w.WriteHeader(http.StatusOK)
		return
	}

	if !webhook.VerifySignature(body, r.Header.Get(signatureHeader), integration.AppSecret) {
		s.logger.Warn("inbound event signature invalid, discarding",
			"organization_id", orgID,
			"provider", provider,
		)
		w.WriteHeader(http.StatusOK)
		return
	}

	if s.sink != nil {
		if err := s.sink.HandleInbound(r.Context(), integration, body); err != nil {
			// The provider already got its 200 contract; failures here are
			// ours to log and replay.
			s.logger.Error("inbound event processing failed",
				"organization_id", orgID,
				"provider", provider,
				"error", err.Error(),
			)
		}
	}

	w.WriteHeader(http.StatusOK)
}
