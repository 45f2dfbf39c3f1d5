package handler

import (
	"github.com/stackscan/internal/blob"
	"github.com/stackscan/internal/scan"
	"github.com/stackscan/internal/service"
)

// defaultMaxUploadBytes caps a single uploaded photo.
const defaultMaxUploadBytes = 12 << 20

// API bundles shared dependencies for HTTP handlers.
type API struct {
	scans   *scan.Manager
	catalog *service.CatalogService
	library *service.LibraryService
	stack   *service.StackService
	images  blob.Store

	maxUploadBytes int64
}

// Deps lists the services the handlers use. Images may be nil when the
// image route is not served by the application.
type Deps struct {
	Scans   *scan.Manager
	Catalog *service.CatalogService
	Library *service.LibraryService
	Stack   *service.StackService
	Images  blob.Store
}

// NewAPI constructs a handler set with shared services.
func NewAPI(deps Deps) *API {
	return &API{
		scans:          deps.Scans,
		catalog:        deps.Catalog,
		library:        deps.Library,
		stack:          deps.Stack,
		images:         deps.Images,
		maxUploadBytes: defaultMaxUploadBytes,
	}
}
