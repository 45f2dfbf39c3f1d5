package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stackscan/internal/db"
)

func TestReorderThreshold(t *testing.T) {
	t.Parallel()

	cases := map[int]int{0: 0, 1: 1, 3: 1, 5: 1, 6: 2, 30: 6, 60: 12, 61: 13}
	for initial, want := range cases {
		if got := ReorderThreshold(initial); got != want {
			t.Fatalf("ReorderThreshold(%d) = %d, want %d", initial, got, want)
		}
		if initial > 0 && ReorderThreshold(initial) > initial {
			t.Fatalf("threshold above initial for %d", initial)
		}
	}
}

func TestServingsRemainingFloorsAtZero(t *testing.T) {
	t.Parallel()

	item := &db.StackItem{InitialServings: 10, ConsumedServings: 14, ReorderThreshold: 2}
	if got := ServingsRemaining(item); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if !NeedsReorder(item) {
		t.Fatal("expected empty bottle to need reorder")
	}

	approx := 7
	item.ApproxServingsRemaining = &approx
	if got := ServingsRemaining(item); got != 7 {
		t.Fatalf("expected approximation to win, got %d", got)
	}
	if NeedsReorder(item) {
		t.Fatal("did not expect reorder with 7 left")
	}
}

func TestNormalizeIntakeTimes(t *testing.T) {
	t.Parallel()

	got := NormalizeIntakeTimes([]string{"Night", "morning", "AM", "brunch", "evening"})
	want := []string{"morning", "evening", "bedtime"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestStackCommitUsesSuggestionsAndProductServings(t *testing.T) {
	gdb := setupServiceTestDB(t)
	product := createTestProduct(t, gdb, "Omega-3", "BrandX", 60)
	svc := NewStackService(gdb)

	view, err := svc.Commit(context.Background(), CommitInput{
		UserID:    "user-1",
		ProductID: product.ID,
		Suggestions: Suggestions{
			IntakeTimes:      []string{"evening"},
			LinkedBiomarkers: []string{"triglycerides"},
			AIRationale:      "Supports lipid profile",
			TargetOutcome:    "Lower triglycerides",
		},
	})
	if err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}

	if !view.AISuggested {
		t.Fatal("expected suggested intake times to flag ai_suggested")
	}
	var times []string
	if err := json.Unmarshal(view.IntakeTimes, &times); err != nil || len(times) != 1 || times[0] != "evening" {
		t.Fatalf("unexpected intake times %s (%v)", view.IntakeTimes, err)
	}
	if view.InitialServings != 60 || view.ReorderThreshold != 12 || view.ServingsRemaining != 60 {
		t.Fatalf("unexpected servings accounting: %+v", view)
	}
	if view.Rationale != "Supports lipid profile" || view.Product.ID != product.ID {
		t.Fatalf("unexpected item: %+v", view.StackItem)
	}
}

func TestStackCommitDefaultsToMorning(t *testing.T) {
	gdb := setupServiceTestDB(t)
	product := createTestProduct(t, gdb, "Zinc", "Acme", 100)
	svc := NewStackService(gdb)

	view, err := svc.Commit(context.Background(), CommitInput{UserID: "user-1", ProductID: product.ID, IntakeTimes: []string{"whenever"}})
	if err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
	if view.AISuggested {
		t.Fatal("did not expect ai_suggested without suggestions")
	}
	if string(view.IntakeTimes) != `["morning"]` {
		t.Fatalf("expected morning default, got %s", view.IntakeTimes)
	}

	if _, err := svc.Commit(context.Background(), CommitInput{UserID: "user-1", ProductID: "missing"}); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	if _, err := svc.Commit(context.Background(), CommitInput{ProductID: product.ID}); !errors.Is(err, ErrUserRequired) {
		t.Fatalf("expected ErrUserRequired, got %v", err)
	}
}

func TestStackIntakeAndMaintenance(t *testing.T) {
	gdb := setupServiceTestDB(t)
	product := createTestProduct(t, gdb, "Magnesium", "Acme", 10)
	svc := NewStackService(gdb)
	ctx := context.Background()

	item, err := svc.Commit(ctx, CommitInput{UserID: "user-1", ProductID: product.ID, IntakeTimes: []string{"bedtime"}})
	if err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}

	after, err := svc.LogIntake(ctx, "user-1", item.ID, IntakeInput{Servings: 3, Note: "with dinner"})
	if err != nil {
		t.Fatalf("LogIntake returned error: %v", err)
	}
	if after.ConsumedServings != 3 || after.ServingsRemaining != 7 {
		t.Fatalf("unexpected accounting after intake: consumed=%d remaining=%d", after.ConsumedServings, after.ServingsRemaining)
	}

	approx := 2
	after, err = svc.SetApproxRemaining(ctx, "user-1", item.ID, &approx)
	if err != nil {
		t.Fatalf("SetApproxRemaining returned error: %v", err)
	}
	if after.ServingsRemaining != 2 || !after.NeedsReorder {
		t.Fatalf("expected 2 remaining and reorder, got %d / %t", after.ServingsRemaining, after.NeedsReorder)
	}

	after, err = svc.LogIntake(ctx, "user-1", item.ID, IntakeInput{Servings: 5})
	if err != nil {
		t.Fatalf("LogIntake returned error: %v", err)
	}
	if after.ApproxServingsRemaining == nil || *after.ApproxServingsRemaining != 0 || after.ServingsRemaining != 0 {
		t.Fatalf("expected approximation floored at 0, got %+v", after.ApproxServingsRemaining)
	}

	if _, err := svc.LogIntake(ctx, "user-1", item.ID, IntakeInput{Servings: -1}); !errors.Is(err, ErrInvalidServings) {
		t.Fatalf("expected ErrInvalidServings, got %v", err)
	}
	if _, err := svc.LogIntake(ctx, "user-2", item.ID, IntakeInput{Servings: 1}); !errors.Is(err, ErrStackItemNotFound) {
		t.Fatalf("expected ErrStackItemNotFound for another user, got %v", err)
	}

	paused, err := svc.SetActive(ctx, "user-1", item.ID, false)
	if err != nil {
		t.Fatalf("SetActive returned error: %v", err)
	}
	if paused.Active {
		t.Fatal("expected item to be paused")
	}
	active, err := svc.List(ctx, "user-1", false)
	if err != nil || len(active) != 0 {
		t.Fatalf("expected no active items, got %d (%v)", len(active), err)
	}
	all, err := svc.List(ctx, "user-1", true)
	if err != nil || len(all) != 1 {
		t.Fatalf("expected paused item to be kept, got %d (%v)", len(all), err)
	}

	logs, err := svc.IntakeLogs(ctx, "user-1", item.ID)
	if err != nil || len(logs) != 2 {
		t.Fatalf("expected 2 intake logs, got %d (%v)", len(logs), err)
	}

	if err := svc.Delete(ctx, "user-1", item.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	var remaining int64
	gdb.Model(&db.IntakeLog{}).Where("stack_item_id = ?", item.ID).Count(&remaining)
	if remaining != 0 {
		t.Fatalf("expected intake logs to be removed, got %d", remaining)
	}
	if err := svc.Delete(ctx, "user-1", item.ID); !errors.Is(err, ErrStackItemNotFound) {
		t.Fatalf("expected ErrStackItemNotFound, got %v", err)
	}
}
