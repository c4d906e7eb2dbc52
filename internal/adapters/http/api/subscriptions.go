package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// SubscriptionsHandler handles subscription management requests.
type SubscriptionsHandler struct {
	deps Dependencies
}

// NewSubscriptionsHandler creates a new subscriptions handler.
func NewSubscriptionsHandler(deps Dependencies) *SubscriptionsHandler {
	return &SubscriptionsHandler{deps: deps}
}

// subscriptionRequest is the body of POST and DELETE /subscriptions.
type subscriptionRequest struct {
	SubscriberID string `json:"subscriber_id"`
	Region       string `json:"region"`
}

func (s subscriptionRequest) validate() error {
	switch {
	case strings.TrimSpace(s.SubscriberID) == "":
		return ErrBadRequest
	case strings.TrimSpace(s.Region) == "":
		return ErrBadRequest
	}
	return nil
}

type subscriptionResponse struct {
	SubscriberID string     `json:"subscriber_id"`
	Region       regionJSON `json:"region"`
}

// HandleSubscriptions dispatches on method:
//
//	GET    /subscriptions?subscriber_id=S  list watches
//	POST   /subscriptions                  create a watch
//	DELETE /subscriptions                  remove a watch
func (h *SubscriptionsHandler) HandleSubscriptions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleList(w, r)
	case http.MethodPost:
		h.handleSubscribe(w, r)
	case http.MethodDelete:
		h.handleUnsubscribe(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *SubscriptionsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	subscriberID := strings.TrimSpace(r.URL.Query().Get("subscriber_id"))
	if subscriberID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	regions, err := h.deps.Subscriptions(r.Context(), subscriberID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]regionJSON, len(regions))
	for i, reg := range regions {
		out[i] = toRegionJSON(reg)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *SubscriptionsHandler) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	reg, err := h.deps.Subscribe(r.Context(), req.SubscriberID, req.Region)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, subscriptionResponse{
		SubscriberID: req.SubscriberID,
		Region:       toRegionJSON(reg),
	})
}

func (h *SubscriptionsHandler) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	reg, err := h.deps.Unsubscribe(r.Context(), req.SubscriberID, req.Region)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionResponse{
		SubscriberID: req.SubscriberID,
		Region:       toRegionJSON(reg),
	})
}
