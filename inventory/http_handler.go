package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

type httpHandler struct {
	store  InventoryStore
	logger *slog.Logger
}

func registerRoutes(router *mux.Router, store InventoryStore, logger *slog.Logger) {
	h := &httpHandler{store: store, logger: logger}

	router.HandleFunc("/items", h.handleListItems).Methods(http.MethodGet)
	router.HandleFunc("/items/{id}", h.handleGetItem).Methods(http.MethodGet)
	router.HandleFunc("/dapr/subscribe", h.handleSubscriptions).Methods(http.MethodGet)
	router.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
}

func (h *httpHandler) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListItems(r.Context())
	if err != nil {
		h.logger.Error("list items failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *httpHandler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	item, err := h.store.GetItem(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type subscriptionEntry struct {
	PubsubName string `json:"pubsubname"`
	Topic      string `json:"topic"`
	Route      string `json:"route"`
}

func (h *httpHandler) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []subscriptionEntry{
		{PubsubName: "saga-pubsub", Topic: "inventory-check", Route: "/events/inventory-check"},
		{PubsubName: "saga-pubsub", Topic: "compensate-inventory", Route: "/events/compensate-inventory"},
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
