package app

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/example/courier/internal/adapters/sqlite"
	"github.com/example/courier/internal/core/coherence"
	"github.com/example/courier/internal/core/event"
	"github.com/example/courier/internal/core/pipeline"
	"github.com/example/courier/internal/db"
	"github.com/example/courier/internal/ports/secondary"
)

// Service tests run against real SQLite repositories over an in-memory
// database, with fake generation, classification and transport
// collaborators. The idempotency guarantees under test live in the SQL,
// so mocking the repositories would test nothing.

func setupStores(t *testing.T) (Stores, *sql.DB) {
	t.Helper()

	testDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if _, err = testDB.Exec(db.GetSchemaSQL()); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })

	return Stores{
		Events:       sqlite.NewEventRepository(testDB),
		Cursors:      sqlite.NewCursorRepository(testDB),
		Protocols:    sqlite.NewProtocolRepository(testDB),
		Quarantine:   sqlite.NewQuarantineRepository(testDB),
		Commitments:  sqlite.NewCommitmentRepository(testDB),
		Verdicts:     sqlite.NewVerdictRepository(testDB),
		Reviews:      sqlite.NewReviewRepository(testDB, nil),
		StageResults: sqlite.NewStageResultRepository(testDB),
	}, testDB
}

// fakeGenerator counts generation calls per stage and lets tests
// inject per-stage errors. Output is deterministic from the input.
type fakeGenerator struct {
	mu       sync.Mutex
	calls    map[pipeline.Stage]int
	failWith map[pipeline.Stage]error
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		calls:    make(map[pipeline.Stage]int),
		failWith: make(map[pipeline.Stage]error),
	}
}

func (g *fakeGenerator) Generate(ctx context.Context, req secondary.GenerationRequest) (string, error) {
	g.mu.Lock()
	g.calls[req.Stage]++
	err := g.failWith[req.Stage]
	g.mu.Unlock()
	if err != nil {
		return "", err
	}
	if req.Stage == pipeline.StageDraft {
		return fmt.Sprintf("draft(%s)", req.Payload), nil
	}
	return fmt.Sprintf("%s(%s)", req.Stage, req.PriorOutput), nil
}

func (g *fakeGenerator) totalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

func (g *fakeGenerator) stageCalls(s pipeline.Stage) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[s]
}

// fakeClassifier returns a fixed raw output.
type fakeClassifier struct {
	mu     sync.Mutex
	output string
	err    error
	calls  int
}

func (c *fakeClassifier) Classify(ctx context.Context, snapshot string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.output, nil
}

// okClassifierOutput is a minimal well-formed verdict.
const okClassifierOutput = `{
	"proposed_windows": [],
	"asserted_activity": "",
	"asserted_time": null,
	"original_sentence": "",
	"corrected_sentence": "",
	"new_commitments": []
}`

// fakeTransport records deliveries and optionally fails some.
type fakeTransport struct {
	mu        sync.Mutex
	delivered map[string][]string // userID -> texts
	failFor   map[string]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		delivered: make(map[string][]string),
		failFor:   make(map[string]error),
	}
}

func (tr *fakeTransport) Run(ctx context.Context, handle secondary.EventHandler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (tr *fakeTransport) Deliver(ctx context.Context, userID, text string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if err := tr.failFor[userID]; err != nil {
		return err
	}
	tr.delivered[userID] = append(tr.delivered[userID], text)
	return nil
}

func (tr *fakeTransport) deliveredTo(userID string) []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.delivered[userID]...)
}

// testHarness bundles everything a service test needs.
type testHarness struct {
	stores     Stores
	generator  *fakeGenerator
	classifier *fakeClassifier
	transport  *fakeTransport
	processor  *Processor
	inbox      *InboxServiceImpl
	recovery   *RecoveryServiceImpl
	protocols  *ProtocolServiceImpl
	reviews    *ReviewServiceImpl
	sweeps     *SweepServiceImpl
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	stores, testDB := setupStores(t)

	h := &testHarness{
		stores:     stores,
		generator:  newFakeGenerator(),
		classifier: &fakeClassifier{output: okClassifierOutput},
		transport:  newFakeTransport(),
	}

	// Tight retry policy so failure tests finish quickly.
	policies := map[pipeline.Stage]pipeline.RetryPolicy{}
	for _, s := range pipeline.Order {
		policies[s] = pipeline.RetryPolicy{Timeout: time.Second, MaxRetries: 1, Backoff: time.Millisecond}
	}
	runner, err := NewStageRunner(h.generator, policies)
	if err != nil {
		t.Fatalf("NewStageRunner failed: %v", err)
	}

	log := zap.NewNop()
	h.processor = NewProcessor(stores, runner, h.classifier, ProcessorConfig{
		PersonaVersion: "test-v1",
		CostPerEvent:   0.02,
		Coherence:      coherence.DefaultPolicy,
	}, log)
	h.inbox = NewInboxService(stores.Events, h.processor, log)
	h.recovery = NewRecoveryService(sqliteRecoveryRuns(t, testDB), h.processor, 2, log)
	h.protocols = NewProtocolService(stores.Protocols, stores.Quarantine, stores.Events, h.processor, log)
	h.reviews = NewReviewService(stores.Reviews, h.transport, log)
	h.sweeps = NewSweepService(sqliteSweepRuns(t, testDB), stores.Quarantine, stores.Commitments, time.Hour, log)
	return h
}

func sqliteRecoveryRuns(t *testing.T, testDB *sql.DB) secondary.RecoveryRunRepository {
	t.Helper()
	return sqlite.NewRecoveryRunRepository(testDB)
}

func sqliteSweepRuns(t *testing.T, testDB *sql.DB) secondary.SweepRunRepository {
	t.Helper()
	return sqlite.NewSweepRunRepository(testDB)
}

func inboundEvent(userID string, messageID int64, payload string) event.Inbound {
	ts := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC).Add(time.Duration(messageID) * time.Minute)
	return event.Inbound{
		UserID:          userID,
		MessageID:       messageID,
		SourceTimestamp: ts,
		Payload:         payload,
		ReceivedAt:      ts.Add(time.Second),
	}
}
