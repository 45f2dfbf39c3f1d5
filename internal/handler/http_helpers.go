package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stackscan/internal/middleware"
	"github.com/stackscan/internal/scan"
	"github.com/stackscan/internal/service"
)

var errUploadTooLarge = errors.New("photo is too large")

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

func currentUser(c *gin.Context) string {
	return middleware.UserID(c)
}

// readUpload returns the bytes of a multipart file field, or nil when absent.
func (a *API) readUpload(c *gin.Context, field string) ([]byte, error) {
	header, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	if header.Size > a.maxUploadBytes {
		return nil, errUploadTooLarge
	}
	if contentType := header.Header.Get("Content-Type"); contentType != "" && !strings.HasPrefix(contentType, "image/") && contentType != "application/octet-stream" {
		return nil, fmt.Errorf("%s must be an image", field)
	}

	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, a.maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	if int64(len(data)) > a.maxUploadBytes {
		return nil, errUploadTooLarge
	}
	return data, nil
}

// respondScanError maps pipeline errors onto status codes.
func respondScanError(c *gin.Context, err error) {
	if failure, ok := scan.AsFailure(err); ok {
		respondError(c, failureStatus(failure.Kind), failure.Message)
		return
	}

	switch {
	case errors.Is(err, scan.ErrSessionNotFound):
		respondError(c, http.StatusNotFound, "scan session not found")
	case errors.Is(err, scan.ErrInvalidTransition):
		respondError(c, http.StatusConflict, "that step is not available right now")
	case errors.Is(err, scan.ErrCancelled):
		respondError(c, http.StatusConflict, "the scan was cancelled")
	case errors.Is(err, service.ErrFrontImageRequired):
		respondError(c, http.StatusBadRequest, "a front photo is required")
	default:
		respondError(c, http.StatusInternalServerError, "scan failed")
	}
}

func failureStatus(kind scan.Kind) int {
	switch kind {
	case scan.KindTimeout:
		return http.StatusGatewayTimeout
	case scan.KindRecognition:
		return http.StatusBadGateway
	case scan.KindPreprocess:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
