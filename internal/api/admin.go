package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"dispatchdesk/internal/model"
	"dispatchdesk/internal/store"
)

func limitParam(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return n
}

// DispatchLogHandler handles GET /v1/dispatch-log. Non-admins only see
// their own dispatches.
func (s *Server) DispatchLogHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dq := store.DispatchQuery{
		JobID:     q.Get("jobId"),
		SessionID: q.Get("sessionId"),
		Operator:  q.Get("operator"),
		Cursor:    q.Get("cursor"),
		Limit:     limitParam(r),
	}
	if pr := principal(r); !pr.IsAdmin() {
		dq.Operator = pr.Operator
	}
	items, next, err := s.Store.ListDispatches(r.Context(), dq)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) CreateSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	var req model.SubscriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	req.Owner = principal(r).Operator
	sub, err := s.Store.CreateSubscription(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) ListSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	items, next, err := s.Store.ListSubscriptions(r.Context(), r.URL.Query().Get("cursor"), limitParam(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) DeleteSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.DeleteSubscription(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), q.Get("status"), q.Get("cursor"), limitParam(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.RetryWebhookDelivery(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": 1})
}
