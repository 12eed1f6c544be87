package app

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/example/courier/internal/core/pipeline"
	"github.com/example/courier/internal/ports/primary"
	"github.com/example/courier/internal/ports/secondary"
)

// Five messages arrive while the process is down (stored in the inbox,
// never processed). One startup recovery run must produce exactly one
// review item per message, in ascending order.
func TestRecoveryReplaysOfflineBacklog(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		if err := h.stores.Events.Append(ctx, inboundEvent("user-a", i, fmt.Sprintf("msg %d", i))); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	run, err := h.recovery.Run(ctx, primary.TriggerStartup)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Status != secondary.RunCompleted {
		t.Errorf("Status = %s, want completed", run.Status)
	}
	if run.EventsRecovered != 5 || run.EventsSkipped != 0 || run.Errors != 0 {
		t.Errorf("recovered/skipped/errors = %d/%d/%d, want 5/0/0",
			run.EventsRecovered, run.EventsSkipped, run.Errors)
	}
	if run.UsersChecked != 1 {
		t.Errorf("UsersChecked = %d, want 1", run.UsersChecked)
	}

	pending, err := h.stores.Reviews.ListPending(ctx, "user-a")
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 5 {
		t.Fatalf("got %d review items, want 5", len(pending))
	}
	for i, item := range pending {
		if item.MessageID != int64(i+1) {
			t.Errorf("item %d has message id %d, want ascending order", i, item.MessageID)
		}
	}

	cursor, err := h.stores.Cursors.Get(ctx, "user-a")
	if err != nil {
		t.Fatalf("cursor Get failed: %v", err)
	}
	if cursor.LastProcessedID != 5 {
		t.Errorf("cursor = %d, want 5", cursor.LastProcessedID)
	}
	if cursor.TotalRecovered != 5 {
		t.Errorf("TotalRecovered = %d, want 5", cursor.TotalRecovered)
	}
}

// Re-running recovery after everything was handled must not create new
// review items, invoke the backend, or move counters.
func TestRecoveryReplayIsIdempotent(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		if _, err := h.inbox.Ingest(ctx, inboundEvent("user-a", i, fmt.Sprintf("msg %d", i))); err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
	}
	calls := h.generator.totalCalls()

	run, err := h.recovery.Run(ctx, primary.TriggerPeriodic)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.EventsRecovered != 0 {
		t.Errorf("EventsRecovered = %d, want 0", run.EventsRecovered)
	}
	if h.generator.totalCalls() != calls {
		t.Error("recovery re-invoked the generation backend for handled events")
	}

	pending, err := h.stores.Reviews.ListPending(ctx, "user-a")
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 3 {
		t.Errorf("got %d review items, want 3", len(pending))
	}
}

// A user whose newest stored event is at or below the watermark has no
// gap to replay; the pass still records the check on the cursor.
func TestRecoveryMarksCheckForCaughtUpUser(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	if _, err := h.inbox.Ingest(ctx, inboundEvent("user-a", 1, "hello")); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	calls := h.generator.totalCalls()

	run, err := h.recovery.Run(ctx, primary.TriggerPeriodic)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.UsersChecked != 1 || run.EventsRecovered != 0 || run.Errors != 0 {
		t.Errorf("checked/recovered/errors = %d/%d/%d, want 1/0/0",
			run.UsersChecked, run.EventsRecovered, run.Errors)
	}
	if h.generator.totalCalls() != calls {
		t.Error("recovery touched the backend with no gap to replay")
	}

	cursor, err := h.stores.Cursors.Get(ctx, "user-a")
	if err != nil {
		t.Fatalf("cursor Get failed: %v", err)
	}
	if cursor.LastRecoveryCheckAt.IsZero() {
		t.Error("LastRecoveryCheckAt not recorded")
	}
}

// One user's failure is isolated: the run completes, other users are
// recovered, and the failure lands in error_details.
func TestRecoveryIsolatesUserFailure(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	if err := h.stores.Events.Append(ctx, inboundEvent("user-good", 1, "fine")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := h.stores.Events.Append(ctx, inboundEvent("user-bad", 1, "unlucky")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// The fake fails per stage, not per user, so recover the good user
	// first, then flip the failure on for the bad one.
	runGood, err := h.recovery.RunForUser(ctx, primary.TriggerManual, "user-good")
	if err != nil {
		t.Fatalf("RunForUser failed: %v", err)
	}
	if runGood.EventsRecovered != 1 {
		t.Errorf("good user recovered = %d, want 1", runGood.EventsRecovered)
	}

	h.generator.failWith[pipeline.StageDraft] = fmt.Errorf("backend down")
	run, err := h.recovery.Run(ctx, primary.TriggerPeriodic)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Status != secondary.RunCompleted {
		t.Errorf("Status = %s, want completed (user failures are isolated)", run.Status)
	}
	if run.Errors != 1 {
		t.Errorf("Errors = %d, want 1", run.Errors)
	}
	if !strings.Contains(run.ErrorDetails, "user-bad") {
		t.Errorf("ErrorDetails = %q, want mention of user-bad", run.ErrorDetails)
	}

	cursor, err := h.stores.Cursors.Get(ctx, "user-bad")
	if err != nil {
		t.Fatalf("cursor Get failed: %v", err)
	}
	if cursor.LastProcessedID != 0 {
		t.Errorf("failed user's cursor = %d, want 0", cursor.LastProcessedID)
	}
}

// An event with an existing review item above the watermark is counted
// skipped, not recovered.
func TestRecoveryCountsSkips(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		if err := h.stores.Events.Append(ctx, inboundEvent("user-a", i, fmt.Sprintf("msg %d", i))); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	// Event 2 already has a review item but the cursor never advanced
	// (crash between admission and advance).
	if err := h.stores.Reviews.Create(ctx, &secondary.ReviewRecord{
		ID:              "R-CRASHED",
		UserID:          "user-a",
		MessageID:       2,
		CandidateOutput: "candidate",
		VerdictStatus:   "OK",
		CreatedAt:       inboundEvent("user-a", 2, "").ReceivedAt,
	}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	run, err := h.recovery.Run(ctx, primary.TriggerStartup)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.EventsRecovered != 2 || run.EventsSkipped != 1 {
		t.Errorf("recovered/skipped = %d/%d, want 2/1",
			run.EventsRecovered, run.EventsSkipped)
	}

	pending, err := h.stores.Reviews.ListPending(ctx, "user-a")
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 3 {
		t.Errorf("got %d review items, want 3", len(pending))
	}
	cursor, err := h.stores.Cursors.Get(ctx, "user-a")
	if err != nil {
		t.Fatalf("cursor Get failed: %v", err)
	}
	if cursor.LastProcessedID != 3 {
		t.Errorf("cursor = %d, want 3", cursor.LastProcessedID)
	}
}
