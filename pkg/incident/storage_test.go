package incident

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/berijalan/incident-scheduler/pkg/signoz"
)

func TestMemoryRecordStoreSaveAndList(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecordStore()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		id, err := store.Save(ctx, &Record{
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
			SummaryText: fmt.Sprintf("summary %d", i),
		})
		if err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if id == "" {
			t.Fatal("expected an assigned ID")
		}
	}

	records, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	// newest first
	if records[0].SummaryText != "summary 2" || records[2].SummaryText != "summary 0" {
		t.Errorf("records not sorted newest first: %q, %q", records[0].SummaryText, records[2].SummaryText)
	}

	// limit applies
	records, _ = store.List(ctx, 2)
	if len(records) != 2 {
		t.Errorf("limit not applied, got %d", len(records))
	}
}

func TestListLimitClamping(t *testing.T) {
	if got := clampListLimit(0); got != defaultListLimit {
		t.Errorf("zero limit should default to %d, got %d", defaultListLimit, got)
	}
	if got := clampListLimit(-5); got != defaultListLimit {
		t.Errorf("negative limit should default to %d, got %d", defaultListLimit, got)
	}
	if got := clampListLimit(1000); got != maxListLimit {
		t.Errorf("oversized limit should clamp to %d, got %d", maxListLimit, got)
	}
	if got := clampListLimit(7); got != 7 {
		t.Errorf("valid limit changed: %d", got)
	}
}

func TestSaveTrimsRawLogs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecordStore()

	rawLogs := make([]signoz.LogRow, maxStoredRawLogs+50)
	for i := range rawLogs {
		rawLogs[i] = signoz.LogRow{Body: "entry"}
	}
	if _, err := store.Save(ctx, &Record{SummaryText: "s", RawLogs: rawLogs}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	records, _ := store.List(ctx, 1)
	if len(records[0].RawLogs) != maxStoredRawLogs {
		t.Errorf("raw logs not trimmed: %d", len(records[0].RawLogs))
	}
}

func TestMemoryRecordStorePrune(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecordStore()

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		if _, err := store.Save(ctx, &Record{CreatedAt: base.AddDate(0, 0, i)}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	removed, err := store.Prune(ctx, base.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 pruned, got %d", removed)
	}
	records, _ := store.List(ctx, 10)
	if len(records) != 2 {
		t.Errorf("expected 2 remaining, got %d", len(records))
	}
}
