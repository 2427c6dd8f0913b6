package main

import (
	"testing"
	"time"
)

func TestEvaluateVetoCancels(t *testing.T) {
	now := time.Now().UTC()
	timeout := now.Add(time.Minute)
	cust := &Customer{
		Status:            StatusPendingDeletion,
		DeletionTimeoutAt: &timeout,
		DeletionResponses: map[string]DeletionVote{
			"billing":   {CanDelete: false, BlockingReason: "active invoice"},
			"inventory": {CanDelete: true},
		},
	}

	decision := evaluate(cust, ExpectedServicesForDeletion, now)

	if decision != "CANCEL" {
		t.Fatalf("decision = %q, want CANCEL", decision)
	}
	if cust.Status != StatusActive {
		t.Fatalf("status = %s, want ACTIVE", cust.Status)
	}
	if !cust.DeletionCompleted {
		t.Fatal("expected DeletionCompleted = true")
	}
	if len(cust.DeletionBlockedBy) != 1 || cust.DeletionBlockedBy[0].Service != "billing" {
		t.Fatalf("unexpected blocked_by: %+v", cust.DeletionBlockedBy)
	}
	if cust.DeletionRequestedAt != nil {
		t.Fatal("expected deletion_requested_at to be cleared on cancel")
	}
}

func TestEvaluateUnanimousCommits(t *testing.T) {
	now := time.Now().UTC()
	timeout := now.Add(time.Minute)
	cust := &Customer{
		Status:            StatusPendingDeletion,
		DeletionTimeoutAt: &timeout,
		DeletionResponses: map[string]DeletionVote{
			"billing":   {CanDelete: true},
			"inventory": {CanDelete: true},
			"payment":   {CanDelete: true},
		},
	}

	decision := evaluate(cust, ExpectedServicesForDeletion, now)

	if decision != "COMMIT" {
		t.Fatalf("decision = %q, want COMMIT", decision)
	}
	if cust.Status != StatusDeleted {
		t.Fatalf("status = %s, want DELETED", cust.Status)
	}
}

func TestEvaluateIncompleteVotesNoDecision(t *testing.T) {
	now := time.Now().UTC()
	timeout := now.Add(time.Minute)
	cust := &Customer{
		Status:            StatusPendingDeletion,
		DeletionTimeoutAt: &timeout,
		DeletionResponses: map[string]DeletionVote{
			"billing": {CanDelete: true},
		},
	}

	decision := evaluate(cust, ExpectedServicesForDeletion, now)

	if decision != "" {
		t.Fatalf("decision = %q, want no decision while votes are outstanding and unexpired", decision)
	}
	if cust.Status != StatusPendingDeletion {
		t.Fatalf("status changed unexpectedly to %s", cust.Status)
	}
}

func TestSilenceTimeoutInjectsSyntheticVotesAndCommits(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Second)
	cust := &Customer{
		Status:            StatusPendingDeletion,
		DeletionTimeoutAt: &past,
		DeletionResponses: map[string]DeletionVote{
			"billing": {CanDelete: true},
		},
	}

	// mirror what SilenceTimeout's mutator does: inject synthetic votes for
	// every service that never responded, then re-evaluate
	for _, svc := range ExpectedServicesForDeletion {
		if _, voted := cust.DeletionResponses[svc]; !voted {
			cust.DeletionResponses[svc] = DeletionVote{CanDelete: true, Timeout: true, RespondedAt: now}
		}
	}
	decision := evaluate(cust, ExpectedServicesForDeletion, now)

	if decision != "COMMIT" {
		t.Fatalf("decision = %q, want COMMIT via synthesized votes", decision)
	}
	if cust.Status != StatusDeleted {
		t.Fatalf("status = %s, want DELETED", cust.Status)
	}
}
