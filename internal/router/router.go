package router

import (
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stackscan/internal/handler"
	"github.com/stackscan/internal/middleware"
)

// Options configures the engine around the API handlers.
type Options struct {
	SessionSecret string
	// UploadDir is served under UploadURLPath when images live on disk.
	UploadDir     string
	UploadURLPath string
	// ScanRatePerMinute limits scan and analyze calls per user; 0 disables.
	ScanRatePerMinute int
}

// SetupRouter wires the HTTP routes.
func SetupRouter(api *handler.API, opts Options) *gin.Engine {
	r := gin.Default()

	store := cookie.NewStore([]byte(opts.SessionSecret))
	store.Options(sessions.Options{Path: "/", HttpOnly: true, MaxAge: 86400})
	r.Use(sessions.Sessions("stackscan_session", store))

	if opts.UploadDir != "" {
		urlPath := "/" + strings.Trim(opts.UploadURLPath, "/")
		if urlPath == "/" {
			urlPath = "/static/uploads"
		}
		r.Static(urlPath, opts.UploadDir)
	}

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	r.GET("/api/images/:key", api.ServeImage)

	limited := middleware.RateLimit(opts.ScanRatePerMinute)

	apiGroup := r.Group("/api")
	apiGroup.Use(middleware.UserIdentity())
	{
		apiGroup.POST("/scan", limited, api.ScanBottle)

		scans := apiGroup.Group("/scan/sessions")
		{
			scans.POST("", api.OpenScanSession)
			scans.GET("/:id", api.GetScanSession)
			scans.DELETE("/:id", api.CloseScanSession)
			scans.GET("/:id/events", api.ScanEvents)
			scans.POST("/:id/front", api.CaptureFront)
			scans.POST("/:id/back", api.CaptureBack)
			scans.POST("/:id/skip-back", api.SkipBack)
			scans.POST("/:id/retake", api.Retake)
			scans.PUT("/:id/barcode", api.SetBarcode)
			scans.POST("/:id/analyze", limited, api.Analyze)
			scans.POST("/:id/commit", api.CommitScan)
		}

		apiGroup.GET("/library", api.ListLibrary)
		apiGroup.POST("/library/protocol", api.SyncProtocol)

		apiGroup.POST("/products/:id/image", api.UploadProductPhoto)

		stack := apiGroup.Group("/stack")
		{
			stack.GET("", api.ListStack)
			stack.GET("/:id", api.GetStackItem)
			stack.POST("/:id/intake", api.LogIntake)
			stack.PUT("/:id/remaining", api.SetRemaining)
			stack.POST("/:id/pause", api.PauseStackItem)
			stack.POST("/:id/resume", api.ResumeStackItem)
			stack.DELETE("/:id", api.DeleteStackItem)
		}
	}

	return r
}
