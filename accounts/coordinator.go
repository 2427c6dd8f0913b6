package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prietto/microservices-dapr/common/broker"
	"github.com/prietto/microservices-dapr/common/events"
	"github.com/prietto/microservices-dapr/common/metrics"
)

// ExpectedServicesForDeletion is the expected-responses set for every
// deletion round (§6's expected_services_for_deletion). No environment
// variable overrides it.
var ExpectedServicesForDeletion = []string{"billing", "inventory", "payment"}

// Coordinator drives the deletion-consent protocol (component E): it
// broadcasts the request, aggregates per-service votes, applies the
// silence-as-consent timer, and finalizes the decision.
type Coordinator struct {
	store          CustomerStore
	publisher      *broker.Adapter
	timers         *SilenceTimers
	silenceTimeout time.Duration
	expected       []string
	metrics        *metrics.SagaMetrics
	logger         *slog.Logger
}

func NewCoordinator(store CustomerStore, publisher *broker.Adapter, timers *SilenceTimers, silenceTimeout time.Duration, metrics *metrics.SagaMetrics, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:          store,
		publisher:      publisher,
		timers:         timers,
		silenceTimeout: silenceTimeout,
		expected:       ExpectedServicesForDeletion,
		metrics:        metrics,
		logger:         logger,
	}
}

// RequestDeletion starts a deletion round for customerID.
func (c *Coordinator) RequestDeletion(ctx context.Context, customerID string) error {
	cust, err := c.store.GetCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	if cust.Status == StatusPendingDeletion {
		return &ErrAlreadyPendingDeletion{ID: customerID}
	}
	if cust.Status == StatusDeleted {
		return &ErrAlreadyDeleted{ID: customerID}
	}

	previousStatus := cust.Status
	now := time.Now().UTC()
	timeoutAt := now.Add(c.silenceTimeout)

	err = c.store.UpdateCustomer(ctx, customerID, func(cust *Customer) error {
		cust.Status = StatusPendingDeletion
		cust.DeletionRequestedAt = &now
		cust.DeletionTimeoutAt = &timeoutAt
		cust.DeletionResponses = map[string]DeletionVote{}
		cust.DeletionBlockedBy = nil
		cust.DeletionCompleted = false
		return nil
	})
	if err != nil {
		return err
	}

	req := events.CustomerDeletionRequestEvent{
		CustomerID:          customerID,
		RequestedBy:         "accounts",
		Timestamp:           now,
		ExpectedServices:    c.expected,
		TimeoutSeconds:      int(c.silenceTimeout.Seconds()),
		SilenceMeansConsent: true,
	}
	if err := c.publisher.Publish(ctx, broker.CustomerDeletionRequest, req); err != nil {
		// roll back: restore the pre-request status and clear deletion fields
		rollbackErr := c.store.UpdateCustomer(ctx, customerID, func(cust *Customer) error {
			cust.Status = previousStatus
			cust.DeletionRequestedAt = nil
			cust.DeletionTimeoutAt = nil
			cust.DeletionResponses = nil
			cust.DeletionCompleted = false
			return nil
		})
		if rollbackErr != nil {
			c.logger.Error("failed to roll back customer after broadcast publish failure",
				slog.String("customer_id", customerID), slog.Any("error", rollbackErr))
		}
		return fmt.Errorf("failed to publish deletion request for customer %s: %w", customerID, err)
	}

	c.timers.Schedule(customerID, c.silenceTimeout)
	return nil
}

// OnDeletionResponse records a participant's vote and evaluates whether
// the round can finalize.
func (c *Coordinator) OnDeletionResponse(ctx context.Context, resp events.CustomerDeletionResponseEvent) error {
	var decided string
	err := c.store.UpdateCustomer(ctx, resp.CustomerID, func(cust *Customer) error {
		if cust.Status != StatusPendingDeletion || cust.DeletionCompleted {
			// stale or duplicate response after the round already closed
			return nil
		}
		if cust.DeletionResponses == nil {
			cust.DeletionResponses = map[string]DeletionVote{}
		}
		cust.DeletionResponses[resp.ServiceName] = DeletionVote{
			CanDelete:      resp.CanDelete,
			BlockingReason: resp.BlockingReason,
			RespondedAt:    resp.ValidatedAt,
		}
		decided = evaluate(cust, c.expected, time.Now().UTC())
		return nil
	})
	if err != nil {
		return err
	}
	if decided != "" {
		return c.finalize(ctx, resp.CustomerID, decided)
	}
	return nil
}

// SilenceTimeout is invoked when the silence timer fires (or the recovery
// sweep finds an expired round). Missing votes are injected as synthetic
// can_delete=true/timeout=true votes, then the decision is re-evaluated.
func (c *Coordinator) SilenceTimeout(ctx context.Context, customerID string) error {
	var decided string
	err := c.store.UpdateCustomer(ctx, customerID, func(cust *Customer) error {
		if cust.Status != StatusPendingDeletion || cust.DeletionCompleted {
			return nil
		}
		if cust.DeletionResponses == nil {
			cust.DeletionResponses = map[string]DeletionVote{}
		}
		now := time.Now().UTC()
		for _, svc := range c.expected {
			if _, voted := cust.DeletionResponses[svc]; !voted {
				cust.DeletionResponses[svc] = DeletionVote{CanDelete: true, Timeout: true, RespondedAt: now}
			}
		}
		decided = evaluate(cust, c.expected, now)
		return nil
	})
	if err != nil {
		return err
	}
	if decided != "" {
		return c.finalize(ctx, customerID, decided)
	}
	return nil
}

// evaluate applies the §4.5 decision function against cust's in-memory
// vote set, applies the resulting status transition to cust, and returns
// "COMMIT", "CANCEL", or "" if the round cannot yet finalize. Once the
// round's timeout has passed, every missing expected service gets a
// synthetic can_delete=true/timeout=true vote and the decision is retaken.
func evaluate(cust *Customer, expected []string, now time.Time) string {
	for svc, vote := range cust.DeletionResponses {
		if !vote.CanDelete {
			cust.Status = StatusActive
			cust.DeletionBlockedBy = append(cust.DeletionBlockedBy, BlockedByEntry{Service: svc, Reason: vote.BlockingReason})
			cust.DeletionCompleted = true
			cust.DeletionRequestedAt = nil
			return "CANCEL"
		}
	}

	allVoted := true
	for _, svc := range expected {
		if _, ok := cust.DeletionResponses[svc]; !ok {
			allVoted = false
			break
		}
	}
	if allVoted {
		cust.Status = StatusDeleted
		cust.DeletionCompleted = true
		return "COMMIT"
	}

	if cust.DeletionTimeoutAt != nil && !now.Before(*cust.DeletionTimeoutAt) {
		// timed-out round with a still-incomplete vote set and no veto so
		// far: silence counts as consent for every missing service.
		if cust.DeletionResponses == nil {
			cust.DeletionResponses = map[string]DeletionVote{}
		}
		for _, svc := range expected {
			if _, voted := cust.DeletionResponses[svc]; !voted {
				cust.DeletionResponses[svc] = DeletionVote{CanDelete: true, Timeout: true, RespondedAt: now}
			}
		}
		return evaluate(cust, expected, now)
	}

	return ""
}

// finalize publishes the result (and, on commit, the completed
// notification) and tears down the round's timer.
func (c *Coordinator) finalize(ctx context.Context, customerID, decision string) error {
	c.timers.Cancel(customerID)

	cust, err := c.store.GetCustomer(ctx, customerID)
	if err != nil {
		return err
	}

	result := events.CustomerDeletionResultEvent{CustomerID: customerID, Decision: decision}
	for _, b := range cust.DeletionBlockedBy {
		result.BlockedBy = append(result.BlockedBy, events.BlockedBy{Service: b.Service, Reason: b.Reason})
	}
	if err := c.publisher.Publish(ctx, broker.CustomerDeletionResult, result); err != nil {
		c.logger.Error("failed to publish deletion result", slog.String("customer_id", customerID), slog.Any("error", err))
	}

	if decision == "CANCEL" {
		c.metrics.DeletionsCancelled.Inc()
		return nil
	}

	method := "consensus"
	for _, vote := range cust.DeletionResponses {
		if vote.Timeout {
			method = "silence_timeout"
			break
		}
	}
	if method == "silence_timeout" {
		c.metrics.DeletionsBySilence.Inc()
	} else {
		c.metrics.DeletionsCommitted.Inc()
	}

	completed := events.CustomerDeletionCompletedEvent{CustomerID: customerID, Method: method}
	if err := c.publisher.Publish(ctx, broker.CustomerDeletionCompleted, completed); err != nil {
		c.logger.Error("failed to publish deletion completed notification", slog.String("customer_id", customerID), slog.Any("error", err))
	}
	return nil
}
