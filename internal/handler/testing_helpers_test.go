package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stackscan/internal/blob"
	"github.com/stackscan/internal/db"
	"github.com/stackscan/internal/middleware"
	"github.com/stackscan/internal/scan"
	"github.com/stackscan/internal/service"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubRecognizer struct {
	mu     sync.Mutex
	result *service.RecognitionResult
	err    error
}

func (s *stubRecognizer) Recognize(ctx context.Context, req service.RecognitionRequest) (*service.RecognitionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	copied := *s.result
	return &copied, nil
}

func magnesiumResult() *service.RecognitionResult {
	return &service.RecognitionResult{
		Success: true,
		Extracted: service.LabelData{
			Brand:                "Calm Co",
			SupplementName:       "Magnesium Glycinate",
			DosagePerServing:     "200 mg",
			ServingsPerContainer: 90,
			Form:                 "capsule",
		},
		Suggestions: service.Suggestions{IntakeTimes: []string{"bedtime"}},
	}
}

type testEnv struct {
	engine     *gin.Engine
	gdb        *gorm.DB
	recognizer *stubRecognizer
	manager    *scan.Manager
	images     blob.Store
}

func setupHandlerTest(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	gdb, err := db.Open(db.Options{Path: filepath.Join(dir, "handler.db")}, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
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

	store, err := blob.NewFSStore(filepath.Join(dir, "images"), "/static/uploads")
	if err != nil {
		t.Fatalf("failed to create image store: %v", err)
	}

	recognizer := &stubRecognizer{result: magnesiumResult()}
	catalog := service.NewCatalogService(gdb, store)
	library := service.NewLibraryService(gdb)
	stack := service.NewStackService(gdb)
	enrichment := service.NewEnrichmentService(gdb, nil, library, time.Second)

	pipeline := scan.NewPipeline(scan.Options{
		Recognizer:         recognizer,
		Catalog:            catalog,
		Ledger:             library,
		Enrichment:         enrichment,
		Stack:              stack,
		RecognitionTimeout: 5 * time.Second,
	})
	manager := scan.NewManager(pipeline, time.Minute)
	t.Cleanup(manager.Shutdown)

	api := NewAPI(Deps{Scans: manager, Catalog: catalog, Library: library, Stack: stack, Images: store})

	r := gin.New()
	r.Use(sessions.Sessions("test_session", cookie.NewStore([]byte("test-secret"))))
	r.GET("/api/images/:key", api.ServeImage)
	g := r.Group("/api", middleware.UserIdentity())
	g.POST("/scan", api.ScanBottle)
	g.POST("/scan/sessions", api.OpenScanSession)
	g.GET("/scan/sessions/:id", api.GetScanSession)
	g.DELETE("/scan/sessions/:id", api.CloseScanSession)
	g.POST("/scan/sessions/:id/front", api.CaptureFront)
	g.POST("/scan/sessions/:id/back", api.CaptureBack)
	g.POST("/scan/sessions/:id/skip-back", api.SkipBack)
	g.POST("/scan/sessions/:id/retake", api.Retake)
	g.PUT("/scan/sessions/:id/barcode", api.SetBarcode)
	g.POST("/scan/sessions/:id/analyze", api.Analyze)
	g.POST("/scan/sessions/:id/commit", api.CommitScan)
	g.GET("/library", api.ListLibrary)
	g.POST("/library/protocol", api.SyncProtocol)
	g.POST("/products/:id/image", api.UploadProductPhoto)
	g.GET("/stack", api.ListStack)
	g.GET("/stack/:id", api.GetStackItem)
	g.POST("/stack/:id/intake", api.LogIntake)
	g.PUT("/stack/:id/remaining", api.SetRemaining)
	g.POST("/stack/:id/pause", api.PauseStackItem)
	g.POST("/stack/:id/resume", api.ResumeStackItem)
	g.DELETE("/stack/:id", api.DeleteStackItem)

	return &testEnv{engine: r, gdb: gdb, recognizer: recognizer, manager: manager, images: store}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 60))
	for y := 0; y < 60; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: 30, G: 90, B: 160, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// multipartBody builds a form with the given image fields and text fields.
func multipartBody(t *testing.T, files map[string][]byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for field, data := range files {
		part, err := w.CreateFormFile(field, field+".png")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	for key, value := range fields {
		if err := w.WriteField(key, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func (e *testEnv) do(t *testing.T, method, path, user string, body *bytes.Buffer, contentType string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, body)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if user != "" {
		req.Header.Set(middleware.UserHeader, user)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	e.engine.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) doJSON(t *testing.T, method, path, user string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return e.do(t, method, path, user, bytes.NewBuffer(data), "application/json")
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
}
