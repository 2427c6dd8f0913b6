package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// httpHandler serves payment's HTTP surface. The Stripe webhook stays as a
// secondary, best-effort confirmation path (§12): the saga's source of
// truth is the synchronous Charge result resolved in consumer.go, so a
// webhook delivery is only logged next to the recorded payment status and
// never drives the saga.
type httpHandler struct {
	store                PaymentStore
	stripeEndpointSecret string
	logger               *slog.Logger
}

func registerRoutes(router *mux.Router, store PaymentStore, stripeEndpointSecret string, logger *slog.Logger) {
	h := &httpHandler{store: store, stripeEndpointSecret: stripeEndpointSecret, logger: logger}

	router.HandleFunc("/webhook", h.handleStripeWebhook).Methods(http.MethodPost)
	router.HandleFunc("/dapr/subscribe", h.handleSubscriptions).Methods(http.MethodGet)
	router.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
}

func (h *httpHandler) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	const maxBodyBytes = int64(65536)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		r.Header.Get("Stripe-Signature"),
		h.stripeEndpointSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		h.logger.Warn("stripe webhook signature verification failed", slog.Any("error", err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if event.Type == "payment_intent.succeeded" || event.Type == "payment_intent.payment_failed" {
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		invoiceID := intent.Metadata["invoice_id"]
		rec, _ := h.store.GetByInvoice(r.Context(), invoiceID)
		if rec == nil {
			h.logger.Warn("stripe webhook for unknown invoice", slog.String("invoice_id", invoiceID))
		} else {
			h.logger.Info("stripe webhook confirms synchronous result",
				slog.String("invoice_id", invoiceID), slog.String("event_type", string(event.Type)), slog.String("recorded_status", string(rec.Status)))
		}
	}

	w.WriteHeader(http.StatusOK)
}

type subscriptionEntry struct {
	PubsubName string `json:"pubsubname"`
	Topic      string `json:"topic"`
	Route      string `json:"route"`
}

func (h *httpHandler) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []subscriptionEntry{
		{PubsubName: "saga-pubsub", Topic: "payment-request", Route: "/events/payment-request"},
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
