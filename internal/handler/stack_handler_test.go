package handler

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/stackscan/internal/db"
	"github.com/stackscan/internal/service"
)

func commitTestItem(t *testing.T, env *testEnv, user string) *service.StackItemView {
	t.Helper()
	product := db.Product{Name: "Zinc", Brand: "Acme", DosageAmount: 15, DosageUnit: "mg", Form: "tablet", ServingsPerContainer: 10}
	if err := env.gdb.Create(&product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	item, err := service.NewStackService(env.gdb).Commit(t.Context(), service.CommitInput{UserID: user, ProductID: product.ID})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return item
}

type stackItemResponse struct {
	ID                string `json:"id"`
	Active            bool   `json:"active"`
	ServingsRemaining int    `json:"servings_remaining"`
	NeedsReorder      bool   `json:"needs_reorder"`
}

func TestLogIntakeUpdatesRemaining(t *testing.T) {
	env := setupHandlerTest(t)
	item := commitTestItem(t, env, "user-1")

	rr := env.doJSON(t, http.MethodPost, "/api/stack/"+item.ID+"/intake", "user-1", map[string]int{"servings": 8})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var got stackItemResponse
	decodeBody(t, rr, &got)
	if got.ServingsRemaining != 2 || !got.NeedsReorder {
		t.Fatalf("expected 2 remaining and a reorder flag, got %+v", got)
	}

	rr = env.do(t, http.MethodPost, "/api/stack/"+item.ID+"/intake", "user-1", nil, "")
	decodeBody(t, rr, &got)
	if got.ServingsRemaining != 1 {
		t.Fatalf("expected a bodyless intake to take one serving, got %+v", got)
	}

	rr = env.do(t, http.MethodGet, "/api/stack/"+item.ID, "user-1", nil, "")
	var detail struct {
		IntakeLogs []db.IntakeLog `json:"intake_logs"`
	}
	decodeBody(t, rr, &detail)
	if len(detail.IntakeLogs) != 2 {
		t.Fatalf("expected 2 intake logs, got %d", len(detail.IntakeLogs))
	}
}

func TestStackErrorsMapToStatus(t *testing.T) {
	env := setupHandlerTest(t)
	item := commitTestItem(t, env, "user-1")

	if rr := env.doJSON(t, http.MethodPost, "/api/stack/missing/intake", "user-1", map[string]int{"servings": 1}); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown item, got %d", rr.Code)
	}
	if rr := env.doJSON(t, http.MethodPost, "/api/stack/"+item.ID+"/intake", "user-2", map[string]int{"servings": 1}); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another user's item, got %d", rr.Code)
	}
	if rr := env.doJSON(t, http.MethodPost, "/api/stack/"+item.ID+"/intake", "user-1", map[string]int{"servings": -2}); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative servings, got %d", rr.Code)
	}
	if rr := env.doJSON(t, http.MethodPut, "/api/stack/"+item.ID+"/remaining", "user-1", map[string]int{"approx_servings_remaining": -1}); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative remaining, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/api/stack/"+item.ID+"/intake", "user-1", bytes.NewBufferString("{"), "application/json"); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", rr.Code)
	}
}

func TestPauseResumeAndDelete(t *testing.T) {
	env := setupHandlerTest(t)
	item := commitTestItem(t, env, "user-1")
	path := "/api/stack/" + item.ID

	var got stackItemResponse
	decodeBody(t, env.do(t, http.MethodPost, path+"/pause", "user-1", nil, ""), &got)
	if got.Active {
		t.Fatal("expected paused item to be inactive")
	}

	var list struct {
		Total int `json:"total"`
	}
	decodeBody(t, env.do(t, http.MethodGet, "/api/stack", "user-1", nil, ""), &list)
	if list.Total != 0 {
		t.Fatalf("expected paused item hidden, got %d", list.Total)
	}
	decodeBody(t, env.do(t, http.MethodGet, "/api/stack?include_paused=true", "user-1", nil, ""), &list)
	if list.Total != 1 {
		t.Fatalf("expected paused item listed on request, got %d", list.Total)
	}

	decodeBody(t, env.do(t, http.MethodPost, path+"/resume", "user-1", nil, ""), &got)
	if !got.Active {
		t.Fatal("expected resumed item to be active")
	}

	if rr := env.do(t, http.MethodDelete, path, "user-1", nil, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, path, "user-1", nil, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected deleted item to be gone, got %d", rr.Code)
	}
}

func TestSyncProtocolAddsLibraryEntries(t *testing.T) {
	env := setupHandlerTest(t)
	item := commitTestItem(t, env, "user-1")

	rr := env.doJSON(t, http.MethodPost, "/api/library/protocol", "user-1", map[string][]string{"product_ids": {item.ProductID}})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var got struct {
		Added int `json:"added"`
	}
	decodeBody(t, rr, &got)
	if got.Added != 1 {
		t.Fatalf("expected 1 added entry, got %d", got.Added)
	}

	decodeBody(t, env.doJSON(t, http.MethodPost, "/api/library/protocol", "user-1", map[string][]string{"product_ids": {item.ProductID}}), &got)
	if got.Added != 0 {
		t.Fatalf("expected resync to add nothing, got %d", got.Added)
	}
}
