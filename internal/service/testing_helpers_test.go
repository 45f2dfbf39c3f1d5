package service

import (
	"bytes"
	"io"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stackscan/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "service.db")
	gdb, err := db.Open(db.Options{Path: path}, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	return gdb
}

type fakeHTTPClient struct {
	handler func(*http.Request) (*http.Response, error)
}

func (f *fakeHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return f.handler(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func createTestProduct(t *testing.T, gdb *gorm.DB, name, brand string, servings int) *db.Product {
	t.Helper()
	product := db.Product{
		Name:                 name,
		Brand:                brand,
		DosageAmount:         500,
		DosageUnit:           "mg",
		Form:                 "capsule",
		ServingsPerContainer: servings,
	}
	if err := gdb.Create(&product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return &product
}
