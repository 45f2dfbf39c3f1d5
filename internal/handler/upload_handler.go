package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stackscan/internal/blob"
	"github.com/stackscan/internal/imageprep"
	"github.com/stackscan/internal/service"
)

// UploadProductPhoto replaces the catalog photo of a product.
func (a *API) UploadProductPhoto(c *gin.Context) {
	data, err := a.readUpload(c, "image")
	if err != nil {
		respondUploadError(c, err)
		return
	}
	if len(data) == 0 {
		respondError(c, http.StatusBadRequest, "no photo was uploaded")
		return
	}

	jpeg, err := imageprep.Normalize(data)
	if err != nil {
		respondError(c, http.StatusUnprocessableEntity, "could not read that photo")
		return
	}

	product, err := a.catalog.AttachImage(c.Request.Context(), c.Param("id"), jpeg)
	switch {
	case errors.Is(err, service.ErrProductNotFound):
		respondError(c, http.StatusNotFound, "product not found")
		return
	case errors.Is(err, service.ErrImageStoreMissing):
		respondError(c, http.StatusServiceUnavailable, "image storage is not configured")
		return
	case err != nil:
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "could not save photo")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product_id": product.ID,
		"image_url":  product.ImageURL,
	})
}

// ServeImage streams a stored product photo.
func (a *API) ServeImage(c *gin.Context) {
	if a.images == nil {
		respondError(c, http.StatusNotFound, "image not found")
		return
	}
	data, err := a.images.Get(c.Request.Context(), c.Param("key"))
	switch {
	case errors.Is(err, blob.ErrNotFound), errors.Is(err, blob.ErrInvalidKey):
		respondError(c, http.StatusNotFound, "image not found")
		return
	case err != nil:
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "could not load image")
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, "image/jpeg", data)
}
