package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

type httpHandler struct {
	coordinator *Coordinator
	store       CustomerStore
	logger      *slog.Logger
}

func registerRoutes(router *mux.Router, coordinator *Coordinator, store CustomerStore, logger *slog.Logger) {
	h := &httpHandler{coordinator: coordinator, store: store, logger: logger}

	router.HandleFunc("/customers", h.handleCreateCustomer).Methods(http.MethodPost)
	router.HandleFunc("/customers/{id}", h.handleDeleteCustomer).Methods(http.MethodDelete)
	router.HandleFunc("/customers/{id}/reset-deletion", h.handleResetDeletion).Methods(http.MethodPost)
	router.HandleFunc("/customers/{id}/deletion-status", h.handleDeletionStatus).Methods(http.MethodGet)
	router.HandleFunc("/customers/{id}", h.handleGetCustomer).Methods(http.MethodGet)
	router.HandleFunc("/dapr/subscribe", h.handleSubscriptions).Methods(http.MethodGet)
	router.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
}

type createCustomerRequest struct {
	CustomerID string `json:"customerId"`
	Email      string `json:"email"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
}

func (h *httpHandler) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req createCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	now := time.Now().UTC()
	cust := &Customer{
		CustomerID: req.CustomerID,
		Email:      req.Email,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.store.CreateCustomer(r.Context(), cust); err != nil {
		h.logger.Error("create customer failed", slog.Any("error", err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, cust)
}

func (h *httpHandler) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	cust, err := h.store.GetCustomer(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "customer not found")
		return
	}
	writeJSON(w, http.StatusOK, cust)
}

func (h *httpHandler) handleDeleteCustomer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := h.coordinator.RequestDeletion(r.Context(), id)
	if err == nil {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "deletion requested"})
		return
	}

	var notFound *ErrNotFound
	var alreadyPending *ErrAlreadyPendingDeletion
	var alreadyDeleted *ErrAlreadyDeleted
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &alreadyPending), errors.As(err, &alreadyDeleted):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request deletion failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleResetDeletion is a test fixture (§6): it force-clears a prior
// veto so the same customer can be re-requested in integration tests
// without waiting out a full silence window.
func (h *httpHandler) handleResetDeletion(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := h.store.UpdateCustomer(r.Context(), id, func(c *Customer) error {
		if c.Status == StatusDeleted {
			return errors.New("cannot reset deletion state for an already-deleted customer")
		}
		c.Status = StatusActive
		c.DeletionRequestedAt = nil
		c.DeletionTimeoutAt = nil
		c.DeletionResponses = nil
		c.DeletionBlockedBy = nil
		c.DeletionCompleted = false
		return nil
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *httpHandler) handleDeletionStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	cust, err := h.store.GetCustomer(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "customer not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":                cust.Status,
		"deletion_requested_at": cust.DeletionRequestedAt,
		"deletion_timeout_at":   cust.DeletionTimeoutAt,
		"deletion_responses":    cust.DeletionResponses,
		"deletion_blocked_by":   cust.DeletionBlockedBy,
		"deletion_completed":    cust.DeletionCompleted,
	})
}

type subscriptionEntry struct {
	PubsubName string `json:"pubsubname"`
	Topic      string `json:"topic"`
	Route      string `json:"route"`
}

func (h *httpHandler) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []subscriptionEntry{
		{PubsubName: "saga-pubsub", Topic: "customer-check", Route: "/events/customer-check"},
		{PubsubName: "saga-pubsub", Topic: "customer.deletion.response", Route: "/events/customer-deletion-response"},
	})
}

func (h *httpHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
