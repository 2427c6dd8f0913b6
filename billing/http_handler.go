package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

type createInvoiceRequest struct {
	CustomerID    string `json:"customerId"`
	CustomerEmail string `json:"customerEmail"`
	ProductID     string `json:"productId"`
	Quantity      int    `json:"quantity"`
}

type httpHandler struct {
	orchestrator *Orchestrator
	store        InvoiceStore
	logger       *slog.Logger
}

func registerRoutes(router *mux.Router, orch *Orchestrator, store InvoiceStore, logger *slog.Logger) {
	h := &httpHandler{orchestrator: orch, store: store, logger: logger}

	router.HandleFunc("/create-invoice", h.handleCreateInvoice).Methods(http.MethodPost)
	router.HandleFunc("/invoices/{id}", h.handleGetInvoice).Methods(http.MethodGet)
	router.HandleFunc("/dapr/subscribe", h.handleSubscriptions).Methods(http.MethodGet)
	router.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
}

func (h *httpHandler) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	inv, err := h.orchestrator.CreateInvoice(r.Context(), req.CustomerID, req.CustomerEmail, req.ProductID, req.Quantity)
	if err != nil {
		h.logger.Error("create invoice failed", slog.Any("error", err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, inv)
}

func (h *httpHandler) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	inv, err := h.store.GetInvoice(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "invoice not found")
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// subscriptionEntry mirrors a Dapr pub/sub subscription declaration so an
// operator (or a Dapr sidecar) can discover the topics this service binds
// without reading its source.
type subscriptionEntry struct {
	PubsubName string `json:"pubsubname"`
	Topic      string `json:"topic"`
	Route      string `json:"route"`
}

func (h *httpHandler) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []subscriptionEntry{
		{PubsubName: "saga-pubsub", Topic: "inventory-response", Route: "/events/inventory-response"},
		{PubsubName: "saga-pubsub", Topic: "customer-response", Route: "/events/customer-response"},
		{PubsubName: "saga-pubsub", Topic: "payment-completed", Route: "/events/payment-completed"},
		{PubsubName: "saga-pubsub", Topic: "payment-failed", Route: "/events/payment-failed"},
		{PubsubName: "saga-pubsub", Topic: "inventory-compensated", Route: "/events/inventory-compensated"},
		{PubsubName: "saga-pubsub", Topic: "customer.deletion.request", Route: "/events/customer-deletion-request"},
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
