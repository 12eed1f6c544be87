package app

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/example/courier/internal/core/coherence"
	"github.com/example/courier/internal/ports/primary"
)

// A candidate proposing a time inside an active commitment's window is
// an availability conflict, and the review gate receives the patched
// text, not the original.
func TestResolveAvailabilityConflictPatchesCandidate(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	day := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	if err := h.stores.Commitments.Upsert(ctx, coherence.Commitment{
		ID:             "C-GYM",
		UserID:         "user-a",
		CommitmentTime: day.Add(11 * time.Hour),
		Activity:       "gym session",
		Duration:       2 * time.Hour,
		FromMessageID:  1,
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	h.classifier.output = fmt.Sprintf(`{
		"proposed_windows": [{"start": %q, "duration_minutes": 60}],
		"asserted_activity": "",
		"asserted_time": null,
		"original_sentence": "lunch at 12pm",
		"corrected_sentence": "lunch at 2pm",
		"new_commitments": []
	}`, day.Add(12*time.Hour).Format(time.RFC3339))

	e := inboundEvent("user-a", 2, "Want to grab lunch at 12pm?")
	result, err := h.inbox.Ingest(ctx, e)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if result.Disposition != primary.DispositionAdmitted {
		t.Fatalf("Disposition = %s, want admitted (conflicts still reach review)", result.Disposition)
	}

	verdict, err := h.stores.Verdicts.GetByEvent(ctx, e.Identity())
	if err != nil {
		t.Fatalf("GetByEvent failed: %v", err)
	}
	if verdict.Status != coherence.VerdictAvailabilityConflict {
		t.Errorf("Status = %s, want AVAILABILITY_CONFLICT", verdict.Status)
	}

	item, err := h.stores.Reviews.GetByID(ctx, result.ReviewItemID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !strings.Contains(item.CandidateOutput, "lunch at 2pm") {
		t.Errorf("candidate not patched: %q", item.CandidateOutput)
	}
	if strings.Contains(item.CandidateOutput, "lunch at 12pm") {
		t.Errorf("original sentence still present: %q", item.CandidateOutput)
	}
	if item.VerdictStatus != coherence.VerdictAvailabilityConflict {
		t.Errorf("review item verdict = %s, want AVAILABILITY_CONFLICT", item.VerdictStatus)
	}
}

// When the conflict sentence is not present verbatim, the substitution
// is skipped and the conflict surfaces unresolved.
func TestResolveSkipsPatchWhenSentenceAbsent(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	day := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	if err := h.stores.Commitments.Upsert(ctx, coherence.Commitment{
		ID:             "C-GYM",
		UserID:         "user-a",
		CommitmentTime: day.Add(11 * time.Hour),
		Activity:       "gym session",
		Duration:       2 * time.Hour,
		FromMessageID:  1,
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	h.classifier.output = fmt.Sprintf(`{
		"proposed_windows": [{"start": %q, "duration_minutes": 60}],
		"asserted_activity": "",
		"asserted_time": null,
		"original_sentence": "a sentence the candidate never contained",
		"corrected_sentence": "irrelevant",
		"new_commitments": []
	}`, day.Add(12*time.Hour).Format(time.RFC3339))

	e := inboundEvent("user-a", 2, "Want to grab lunch at 12pm?")
	result, err := h.inbox.Ingest(ctx, e)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	item, err := h.stores.Reviews.GetByID(ctx, result.ReviewItemID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !strings.Contains(item.CandidateOutput, "lunch at 12pm") {
		t.Errorf("candidate was altered despite missing sentence: %q", item.CandidateOutput)
	}
	if item.VerdictStatus != coherence.VerdictAvailabilityConflict {
		t.Errorf("verdict = %s, want unresolved AVAILABILITY_CONFLICT", item.VerdictStatus)
	}
}

// The same commitment asserted a third time without resolution is a
// repetition loop.
func TestResolveDetectsRepetitionLoop(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	examTime := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

	// Two prior assertions of the same exam commitment.
	for i := 0; i < 2; i++ {
		if err := h.stores.Commitments.Upsert(ctx, coherence.Commitment{
			ID:             fmt.Sprintf("C-EXAM-%d", i),
			UserID:         "user-a",
			CommitmentTime: examTime,
			Activity:       "exam",
			FromMessageID:  int64(i + 1),
		}); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	h.classifier.output = fmt.Sprintf(`{
		"proposed_windows": [],
		"asserted_activity": "exam",
		"asserted_time": %q,
		"original_sentence": "",
		"corrected_sentence": "",
		"new_commitments": []
	}`, examTime.Format(time.RFC3339))

	e := inboundEvent("user-a", 3, "tomorrow I have an exam")
	if _, err := h.inbox.Ingest(ctx, e); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	verdict, err := h.stores.Verdicts.GetByEvent(ctx, e.Identity())
	if err != nil {
		t.Fatalf("GetByEvent failed: %v", err)
	}
	if verdict.Status != coherence.VerdictIdentityConflict {
		t.Errorf("Status = %s, want IDENTITY_CONFLICT", verdict.Status)
	}
	if !strings.Contains(verdict.ConflictDetail, "exam") {
		t.Errorf("ConflictDetail = %q, want mention of the activity", verdict.ConflictDetail)
	}
}

// Malformed classifier output fails open: the event is admitted, the
// raw output is preserved and parse_succeeded is false.
func TestResolveFailsOpenOnMalformedOutput(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.classifier.output = "I think this looks fine! (not JSON)"

	e := inboundEvent("user-a", 1, "hello")
	result, err := h.inbox.Ingest(ctx, e)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if result.Disposition != primary.DispositionAdmitted {
		t.Errorf("Disposition = %s, want admitted (fail open)", result.Disposition)
	}

	verdict, err := h.stores.Verdicts.GetByEvent(ctx, e.Identity())
	if err != nil {
		t.Fatalf("GetByEvent failed: %v", err)
	}
	if verdict.ParseSucceeded {
		t.Error("ParseSucceeded = true, want false")
	}
	if verdict.Status != coherence.VerdictOK {
		t.Errorf("Status = %s, want OK", verdict.Status)
	}
	if verdict.RawModelOutput != h.classifier.output {
		t.Errorf("raw output not preserved: %q", verdict.RawModelOutput)
	}
}

// Extracted commitments are upserted into the ledger and linked to the
// triggering event.
func TestResolveUpsertsNewCommitments(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	dinner := time.Date(2026, 4, 3, 19, 0, 0, 0, time.UTC)

	h.classifier.output = fmt.Sprintf(`{
		"proposed_windows": [],
		"asserted_activity": "",
		"asserted_time": null,
		"original_sentence": "",
		"corrected_sentence": "",
		"new_commitments": [{
			"activity": "dinner with mom",
			"time": %q,
			"duration_minutes": 90,
			"flexibility": "firm",
			"source_text": "dinner with mom on Friday"
		}]
	}`, dinner.Format(time.RFC3339))

	e := inboundEvent("user-a", 7, "dinner with mom on Friday at 7")
	if _, err := h.inbox.Ingest(ctx, e); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	active, err := h.stores.Commitments.ActiveByUser(ctx, "user-a")
	if err != nil {
		t.Fatalf("ActiveByUser failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("got %d active commitments, want 1", len(active))
	}
	c := active[0]
	if c.Activity != "dinner with mom" || c.FromMessageID != 7 {
		t.Errorf("commitment = %+v", c)
	}
	if c.Duration != 90*time.Minute {
		t.Errorf("Duration = %v, want 90m", c.Duration)
	}

	verdict, err := h.stores.Verdicts.GetByEvent(ctx, e.Identity())
	if err != nil {
		t.Fatalf("GetByEvent failed: %v", err)
	}
	if len(verdict.NewCommitments) != 1 || verdict.NewCommitments[0] != "dinner with mom" {
		t.Errorf("verdict.NewCommitments = %v", verdict.NewCommitments)
	}
}

// A crash between the verdict write and review admission replays the
// event; the replay must not re-classify it or count the same
// assertion into the ledger a second time.
func TestResolveReplayDoesNotDoubleCountAssertions(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	dinner := time.Date(2026, 4, 3, 19, 0, 0, 0, time.UTC)

	h.classifier.output = fmt.Sprintf(`{
		"proposed_windows": [],
		"asserted_activity": "",
		"asserted_time": null,
		"original_sentence": "",
		"corrected_sentence": "",
		"new_commitments": [{
			"activity": "dinner with mom",
			"time": %q,
			"duration_minutes": 90,
			"flexibility": "firm",
			"source_text": "dinner with mom on Friday"
		}]
	}`, dinner.Format(time.RFC3339))

	e := inboundEvent("user-a", 7, "dinner with mom on Friday at 7")

	// First attempt stops right after the verdict write.
	if _, _, err := h.processor.resolve(ctx, e, "draft candidate"); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	// Full replay of the same event.
	if _, err := h.inbox.Ingest(ctx, e); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	active, err := h.stores.Commitments.ActiveByUser(ctx, "user-a")
	if err != nil {
		t.Fatalf("ActiveByUser failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("got %d active commitments, want 1", len(active))
	}
	if active[0].TimesAsserted != 1 {
		t.Errorf("TimesAsserted = %d, want 1 (replay counted the assertion again)", active[0].TimesAsserted)
	}
	if h.classifier.calls != 1 {
		t.Errorf("classifier called %d times, want 1", h.classifier.calls)
	}
}

// A classifier outage aborts the event like any other stage failure.
func TestResolveClassifierErrorIsStageFailure(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.classifier.err = fmt.Errorf("classifier unavailable")

	_, err := h.inbox.Ingest(ctx, inboundEvent("user-a", 1, "hello"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "coherence") {
		t.Errorf("err = %v, want coherence stage failure", err)
	}

	cursor, err := h.stores.Cursors.Get(ctx, "user-a")
	if err != nil {
		t.Fatalf("cursor Get failed: %v", err)
	}
	if cursor.LastProcessedID != 0 {
		t.Errorf("cursor = %d, want 0", cursor.LastProcessedID)
	}
}
