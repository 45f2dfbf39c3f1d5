package db

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestCatalogKey(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "lower-cases", input: "Omega-3", want: "omega-3"},
		{name: "collapses whitespace", input: "  Vitamin   D3 ", want: "vitamin d3"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CatalogKey(tt.input); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestInitCreatesSchemaAndEnforcesChecks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stackscan.db")
	gdb, err := Open(Options{Path: path}, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if err := Migrate(gdb); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}
	defer func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	bad := Product{Name: "Zinc", Brand: "Acme", DosageAmount: 0, DosageUnit: "mg", Form: "tablet", ServingsPerContainer: 30}
	if err := gdb.Create(&bad).Error; err == nil {
		t.Fatal("expected check constraint to reject a zero dosage")
	}

	ok := Product{Name: "Zinc", Brand: "Acme", DosageAmount: 15, DosageUnit: "mg", Form: "tablet", ServingsPerContainer: 30}
	if err := gdb.Create(&ok).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	if ok.ID == "" || ok.NameKey != "zinc" || ok.BrandKey != "acme" {
		t.Fatalf("unexpected hooks result: %+v", ok)
	}

	dup := Product{Name: "ZINC", Brand: " acme", DosageAmount: 15, DosageUnit: "mg", Form: "tablet", ServingsPerContainer: 30}
	if err := gdb.Create(&dup).Error; err == nil {
		t.Fatal("expected unique index to reject a case-insensitive duplicate")
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(Options{Driver: "oracle"}, &gorm.Config{}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if _, err := Open(Options{Driver: "postgres"}, &gorm.Config{}); err == nil {
		t.Fatal("expected error for postgres without DSN")
	}
}

func TestSQLiteDSN(t *testing.T) {
	name := fmt.Sprintf("file:dsn-%d?mode=memory", time.Now().UnixNano())
	if got := sqliteDSN(name); got != name+"&_foreign_keys=on" {
		t.Fatalf("unexpected dsn %q", got)
	}
	if got := sqliteDSN("plain.db"); got != "plain.db?_foreign_keys=on" {
		t.Fatalf("unexpected dsn %q", got)
	}
}
