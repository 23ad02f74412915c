package stats

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hangarhq/hangar/internal/app/services/features"
	"github.com/hangarhq/hangar/internal/app/storage/memory"
)

func seedFeatures(t *testing.T, svc *features.Service, n int) {
	t.Helper()
	names := []string{"Dark mode", "Offline sync", "Export", "Search"}
	for i := 0; i < n; i++ {
		if _, err := svc.Create(context.Background(), features.CreateInput{
			Name:        names[i%len(names)],
			BlueprintID: "bp-1",
		}); err != nil {
			t.Fatalf("seed feature: %v", err)
		}
	}
}

func TestCollectRecordsSnapshot(t *testing.T) {
	store := memory.New()
	svc := features.NewService(store, nil)
	seedFeatures(t, svc, 3)

	reporter := NewReporter(Config{}, svc, store, nil)
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	reporter.clock = func() time.Time { return at }

	reporter.collect(context.Background())

	history, err := store.ListStats(context.Background(), "features_count", at.AddDate(0, 0, -1))
	if err != nil {
		t.Fatalf("list stats: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(history))
	}
	if history[0].Count != 3 {
		t.Fatalf("count = %d, want 3", history[0].Count)
	}

	// A second collection on the same date replaces the snapshot instead of
	// appending one.
	reporter.collect(context.Background())
	history, err = store.ListStats(context.Background(), "features_count", at.AddDate(0, 0, -1))
	if err != nil {
		t.Fatalf("list stats: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected snapshot upsert, got %d entries", len(history))
	}
}

func TestPushSendsDailyTrend(t *testing.T) {
	var got struct {
		Item struct {
			Value int64  `json:"value"`
			Text  string `json:"text"`
		} `json:"item"`
		Daily []int64 `json:"daily"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := memory.New()
	svc := features.NewService(store, nil)

	reporter := NewReporter(Config{DashboardURL: srv.URL}, svc, store, nil)
	day := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"Dark mode", "Offline sync"} {
		if _, err := svc.Create(context.Background(), features.CreateInput{
			Name:        name,
			BlueprintID: "bp-1",
		}); err != nil {
			t.Fatalf("seed feature: %v", err)
		}
		at := day.AddDate(0, 0, i)
		reporter.clock = func() time.Time { return at }
		reporter.collect(context.Background())
	}

	if got.Item.Value != 2 {
		t.Fatalf("dashboard value = %d, want 2", got.Item.Value)
	}
	if len(got.Daily) != 2 {
		t.Fatalf("daily trend = %v", got.Daily)
	}
	// Increments, not totals: 1 on the first day, +1 on the second.
	if got.Daily[0] != 1 || got.Daily[1] != 1 {
		t.Fatalf("daily increments = %v, want [1 1]", got.Daily)
	}
}
