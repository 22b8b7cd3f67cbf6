package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clinsight/fhir-cohort/pkg/aggregate"
	"github.com/clinsight/fhir-cohort/pkg/dataset"
)

// tickingClock returns a clock that advances one second per call, so
// ordering by timestamp is deterministic.
func tickingClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newTestStore() *MemoryStore {
	store := NewMemoryStore()
	store.now = tickingClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	return store
}

func TestMemoryStoreSessions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	first, err := store.CreateSession(ctx, "first")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	second, err := store.CreateSession(ctx, "second")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("expected distinct session ids")
	}

	got, err := store.SessionByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("SessionByID failed: %v", err)
	}
	if got.Title != "first" {
		t.Errorf("expected title %q, got %q", "first", got.Title)
	}

	sessions, err := store.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != second.ID {
		t.Errorf("expected newest session first, got %q", sessions[0].Title)
	}

	// Touching the older session moves it to the front.
	if err := store.TouchSession(ctx, first.ID); err != nil {
		t.Fatalf("TouchSession failed: %v", err)
	}
	sessions, err = store.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if sessions[0].ID != first.ID {
		t.Errorf("expected touched session first, got %q", sessions[0].Title)
	}
}

func TestMemoryStoreSessionNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	if _, err := store.SessionByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.TouchSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.CreateMessage(ctx, "missing", RoleUser, "hi"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreMessages(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	session, err := store.CreateSession(ctx, "chat")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	for _, content := range []string{"one", "two", "three"} {
		if _, err := store.CreateMessage(ctx, session.ID, RoleUser, content); err != nil {
			t.Fatalf("CreateMessage failed: %v", err)
		}
	}

	messages, err := store.MessagesBySession(ctx, session.ID)
	if err != nil {
		t.Fatalf("MessagesBySession failed: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	for i, want := range []string{"one", "two", "three"} {
		if messages[i].Content != want {
			t.Errorf("message %d: expected %q, got %q", i, want, messages[i].Content)
		}
	}

	// Adding messages bumps the session's counter and timestamp.
	got, err := store.SessionByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("SessionByID failed: %v", err)
	}
	if got.MessageCount != 3 {
		t.Errorf("expected message count 3, got %d", got.MessageCount)
	}
	if !got.UpdatedAt.After(session.UpdatedAt) {
		t.Error("expected UpdatedAt to advance after messages")
	}
}

func TestMemoryStoreMessagesEmptySession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	session, err := store.CreateSession(ctx, "empty")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	messages, err := store.MessagesBySession(ctx, session.ID)
	if err != nil {
		t.Fatalf("MessagesBySession failed: %v", err)
	}
	if messages == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(messages) != 0 {
		t.Errorf("expected 0 messages, got %d", len(messages))
	}
}

func TestMemoryStoreReports(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	session, err := store.CreateSession(ctx, "cohort review")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	avg := 42.5
	created, err := store.CreateReport(ctx, Report{
		SessionID: session.ID,
		Title:     "Q2 cohort",
		Content:   "cohort skews older",
		AggregatedData: &aggregate.Summary{
			Patients: &aggregate.PatientSummary{
				TotalCount: 10,
				Demographics: aggregate.Demographics{
					GenderDistribution: map[string]int{"female": 10},
					AgeGroups:          map[string]int{},
					AverageAge:         &avg,
				},
			},
		},
		SourceData: &dataset.SourceDataset{
			Metadata: dataset.Metadata{DataSource: dataset.DefaultDataSource},
		},
	})
	if err != nil {
		t.Fatalf("CreateReport failed: %v", err)
	}
	if created.ID == "" {
		t.Error("expected report id to be assigned")
	}
	if created.GeneratedAt.IsZero() {
		t.Error("expected GeneratedAt to be assigned")
	}

	got, err := store.ReportByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("ReportByID failed: %v", err)
	}
	if got.AggregatedData == nil || got.AggregatedData.Patients.TotalCount != 10 {
		t.Error("expected aggregated data to round-trip")
	}
	if got.SourceData == nil || got.SourceData.Metadata.DataSource != dataset.DefaultDataSource {
		t.Error("expected source data to round-trip")
	}

	second, err := store.CreateReport(ctx, Report{SessionID: session.ID, Title: "followup", Content: "n/a"})
	if err != nil {
		t.Fatalf("CreateReport failed: %v", err)
	}

	reports, err := store.Reports(ctx)
	if err != nil {
		t.Fatalf("Reports failed: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports[0].ID != second.ID {
		t.Errorf("expected newest report first, got %q", reports[0].Title)
	}

	bySession, err := store.ReportsBySession(ctx, session.ID)
	if err != nil {
		t.Fatalf("ReportsBySession failed: %v", err)
	}
	if len(bySession) != 2 {
		t.Errorf("expected 2 reports for session, got %d", len(bySession))
	}
	if other, err := store.ReportsBySession(ctx, "other"); err != nil || len(other) != 0 {
		t.Errorf("expected no reports for unknown session, got %d (err %v)", len(other), err)
	}

	if _, err := store.ReportByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	session, err := store.CreateSession(ctx, "original")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	session.Title = "mutated"

	got, err := store.SessionByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("SessionByID failed: %v", err)
	}
	if got.Title != "original" {
		t.Errorf("caller mutation leaked into store: %q", got.Title)
	}
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	session, err := store.CreateSession(ctx, "busy")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.CreateMessage(ctx, session.ID, RoleAssistant, "reply"); err != nil {
				t.Errorf("CreateMessage failed: %v", err)
			}
			if _, err := store.Sessions(ctx); err != nil {
				t.Errorf("Sessions failed: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := store.SessionByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("SessionByID failed: %v", err)
	}
	if got.MessageCount != 20 {
		t.Errorf("expected 20 messages, got %d", got.MessageCount)
	}
}
