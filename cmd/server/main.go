package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stackscan/internal/blob"
	"github.com/stackscan/internal/config"
	"github.com/stackscan/internal/db"
	"github.com/stackscan/internal/handler"
	"github.com/stackscan/internal/router"
	"github.com/stackscan/internal/scan"
	"github.com/stackscan/internal/service"
)

func main() {
	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	if err := db.Init(db.Options{Driver: cfg.DatabaseDriver, Path: cfg.DatabasePath, DSN: cfg.DatabaseDSN}); err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	images, uploadDir, closeImages, err := openImageStore(cfg)
	if err != nil {
		log.Fatalf("failed to open image store: %v", err)
	}
	defer closeImages()

	catalog := service.NewCatalogService(db.DB, images)
	library := service.NewLibraryService(db.DB)
	stack := service.NewStackService(db.DB)

	recognizer, enricher, closeAI := buildAIClients(ctx, cfg, catalog)
	defer closeAI()

	enrichment := service.NewEnrichmentService(db.DB, enricher, library, cfg.EnrichmentTimeout)
	pipeline := scan.NewPipeline(scan.Options{
		Recognizer:         recognizer,
		Catalog:            catalog,
		Ledger:             library,
		Enrichment:         enrichment,
		Stack:              stack,
		RecognitionTimeout: cfg.RecognitionTimeout,
	})
	manager := scan.NewManager(pipeline, cfg.ScanSessionTTL)
	defer manager.Shutdown()
	go manager.Run(ctx)

	api := handler.NewAPI(handler.Deps{
		Scans:   manager,
		Catalog: catalog,
		Library: library,
		Stack:   stack,
		Images:  images,
	})

	r := router.SetupRouter(api, router.Options{
		SessionSecret:     cfg.SessionSecret,
		UploadDir:         uploadDir,
		UploadURLPath:     cfg.UploadURLPath,
		ScanRatePerMinute: cfg.ScanRatePerMinute,
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	log.Printf("stackscan listening on %s", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("failed to run server: %v", err)
	}
}

// openImageStore returns the bucket and, for the filesystem driver, the
// directory the router should serve.
func openImageStore(cfg config.AppConfig) (blob.Store, string, func(), error) {
	switch cfg.BlobDriver {
	case "badger":
		store, err := blob.OpenBadgerStore(cfg.BadgerDir, "/api/images")
		if err != nil {
			return nil, "", nil, err
		}
		return store, "", func() { closeQuietly("image store", store) }, nil
	default:
		store, err := blob.NewFSStore(cfg.UploadDir, cfg.UploadURLPath)
		if err != nil {
			return nil, "", nil, err
		}
		return store, store.Dir(), func() {}, nil
	}
}

// buildAIClients picks the recognition and enrichment backends. A missing
// enricher is allowed; scans then present the basic product view.
func buildAIClients(ctx context.Context, cfg config.AppConfig, catalog *service.CatalogService) (service.Recognizer, service.Enricher, func()) {
	var (
		recognizer service.Recognizer
		enricher   service.Enricher
		vertex     *service.VertexClient
	)

	needVertex := cfg.RecognitionProvider == "vertex" || cfg.EnrichmentProvider == "vertex"
	if needVertex {
		client, err := service.NewVertexClient(ctx, service.VertexOptions{
			ProjectID:       cfg.VertexProjectID,
			Location:        cfg.VertexLocation,
			CredentialsFile: cfg.VertexCredentialsFile,
			Model:           cfg.VertexModel,
		})
		if err != nil {
			log.Fatalf("failed to create vertex client: %v", err)
		}
		client.SetBarcodeLookup(catalog.FindByBarcode)
		vertex = client
	}

	switch cfg.RecognitionProvider {
	case "vertex":
		recognizer = vertex
	default:
		if cfg.RecognitionURL == "" {
			log.Printf("RECOGNITION_URL is not set; scans will fail until it is configured")
		}
		recognizer = service.NewHTTPRecognizer(cfg.RecognitionURL, cfg.RecognitionAPIKey)
	}

	switch cfg.EnrichmentProvider {
	case "vertex":
		enricher = vertex
	case "none":
	default:
		if cfg.EnrichmentURL != "" {
			enricher = service.NewHTTPEnricher(cfg.EnrichmentURL, cfg.EnrichmentAPIKey)
		} else {
			log.Printf("ENRICHMENT_URL is not set; products will be shown without enrichment")
		}
	}

	return recognizer, enricher, func() {
		if vertex != nil {
			closeQuietly("vertex client", vertex)
		}
	}
}

func closeQuietly(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		log.Printf("close %s: %v", name, err)
	}
}
