package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/hangarhq/hangar/internal/app/services/features"
	"github.com/hangarhq/hangar/internal/app/storage/memory"
)

func newTrackerRouter(t *testing.T) http.Handler {
	t.Helper()
	svc := features.NewService(memory.New(), nil)
	return NewTrackerRouter(svc, nil)
}

func createTestFeature(t *testing.T, h http.Handler, name, blueprint string) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/feature",
		map[string]interface{}{"name": name, "blueprintId": blueprint, "goal": "adoption"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create feature: status %d body %s", rec.Code, rec.Body.String())
	}
	var body struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &body)
	if body.ID == "" {
		t.Fatalf("missing id in %s", rec.Body.String())
	}
	return body.ID
}

func TestTrackerCreateFeature(t *testing.T) {
	h := newTrackerRouter(t)
	createTestFeature(t, h, "Dark mode", "bp-1")

	// Missing name maps onto the tracker's wire error shape.
	rec := doJSON(t, h, http.MethodPost, "/api/feature",
		map[string]interface{}{"blueprintId": "bp-1"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid feature: status %d", rec.Code)
	}
	var werr struct {
		Err string `json:"err"`
		Des string `json:"des"`
	}
	decodeBody(t, rec, &werr)
	if werr.Err != "invalid_feature" || werr.Des == "" {
		t.Fatalf("unexpected error body %s", rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/api/feature",
		map[string]interface{}{"name": "DARK MODE", "blueprintId": "bp-1"}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate feature: status %d", rec.Code)
	}
	decodeBody(t, rec, &werr)
	if werr.Err != "feature_conflict" {
		t.Fatalf("unexpected error body %s", rec.Body.String())
	}
}

func TestTrackerFindFeatures(t *testing.T) {
	h := newTrackerRouter(t)
	createTestFeature(t, h, "Dark mode", "bp-1")
	createTestFeature(t, h, "Offline sync", "bp-1")
	createTestFeature(t, h, "Dark mode", "bp-2")

	rec := doJSON(t, h, http.MethodGet, "/api/features", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("find without blueprint: status %d", rec.Code)
	}
	var missing struct {
		Error string `json:"error"`
	}
	decodeBody(t, rec, &missing)
	if missing.Error != "no query parameters found" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/api/features?blueprintId=bp-1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("find: status %d body %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Items []json.RawMessage `json:"items"`
	}
	decodeBody(t, rec, &body)
	if len(body.Items) != 2 {
		t.Fatalf("expected 2 features for bp-1, got %d", len(body.Items))
	}
}

func TestTrackerFeatureLifecycle(t *testing.T) {
	h := newTrackerRouter(t)
	id := createTestFeature(t, h, "Dark mode", "bp-1")

	rec := doJSON(t, h, http.MethodGet, "/api/feature/"+id, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}
	var got struct {
		Name string `json:"name"`
	}
	decodeBody(t, rec, &got)
	if got.Name != "Dark mode" {
		t.Fatalf("name = %q", got.Name)
	}

	rec = doJSON(t, h, http.MethodPut, "/api/feature/"+id,
		map[string]interface{}{"goal": "retention"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d body %s", rec.Code, rec.Body.String())
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("update body should be empty, got %s", rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/feature/"+id, nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/feature/"+id, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted: status %d", rec.Code)
	}
	var werr struct {
		Err string `json:"err"`
	}
	decodeBody(t, rec, &werr)
	if werr.Err != "feature_not_found" {
		t.Fatalf("unexpected error body %s", rec.Body.String())
	}
}
