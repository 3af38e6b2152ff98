package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ticketdesk/internal/types"
)

const (
	defaultDeliveryPageSize = 50
	maxDeliveryPageSize     = 200
)

// HandleListDeliveries returns the delivery log for a ticket, newest first.
func (s *Server) HandleListDeliveries(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	if ticketID == "" {
		Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "ticket id is required", nil))
		return
	}

	limit := defaultDeliveryPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "limit must be a positive integer", err))
			return
		}
		limit = min(parsed, maxDeliveryPageSize)
	}

	entries, err := s.deliveries.ListByTicket(r.Context(), ticketID, limit)
	if err != nil {
		Error(w, r, err)
		return
	}
	if entries == nil {
		entries = []types.DeliveryLogEntry{}
	}

	JSON(w, http.StatusOK, APIResponse{Data: entries})
}
