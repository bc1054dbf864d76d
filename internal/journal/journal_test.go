package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalRecordAndGet(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	e := &Entry{
		CampaignID: 42,
		Type:       "B",
		ExecuteAt:  "2025-08-20T18:00:00+09:00",
		Outcome:    OutcomeAccepted,
	}
	if err := j.Record(ctx, e); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if e.ID == "" {
		t.Fatal("Record() did not assign an ID")
	}
	if e.SubmittedAt.IsZero() {
		t.Fatal("Record() did not assign a timestamp")
	}

	got, err := j.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("Get() returned nil")
	}
	if got.CampaignID != 42 || got.Type != "B" || got.ExecuteAt != e.ExecuteAt {
		t.Errorf("Get() = %+v, want recorded entry", got)
	}

	missing, err := j.Get(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if missing != nil {
		t.Error("Get() expected nil for unknown id")
	}
}

func TestJournalListNewestFirst(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	base := time.Date(2025, 8, 20, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		e := &Entry{
			CampaignID:  int64(i + 1),
			Type:        "S",
			SubmittedAt: base.Add(time.Duration(i) * time.Minute),
			Outcome:     OutcomeAccepted,
		}
		if err := j.Record(ctx, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	entries, err := j.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("List() returned %d entries, want 3", len(entries))
	}
	if entries[0].CampaignID != 3 || entries[2].CampaignID != 1 {
		t.Errorf("List() order = %d,%d,%d, want newest first",
			entries[0].CampaignID, entries[1].CampaignID, entries[2].CampaignID)
	}
}

func TestJournalListFilter(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		campaignID := int64(7)
		if i%2 == 1 {
			campaignID = 8
		}
		e := &Entry{
			CampaignID: campaignID,
			Type:       "S",
			Outcome:    OutcomeRejected,
			Error:      "backend unavailable",
		}
		if err := j.Record(ctx, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	only7, err := j.List(ctx, ListFilter{CampaignID: 7})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(only7) != 3 {
		t.Errorf("List(campaign 7) returned %d entries, want 3", len(only7))
	}
	for _, e := range only7 {
		if e.CampaignID != 7 {
			t.Errorf("filtered list contains campaign %d", e.CampaignID)
		}
	}

	limited, err := j.List(ctx, ListFilter{Limit: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("List(limit 2) returned %d entries", len(limited))
	}
}
