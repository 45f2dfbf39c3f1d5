package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type protocolPayload struct {
	ProductIDs []string `json:"product_ids"`
}

// ListLibrary returns every product the user has scanned or imported.
func (a *API) ListLibrary(c *gin.Context) {
	entries, err := a.library.List(c.Request.Context(), currentUser(c))
	if err != nil {
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "could not load library")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": entries, "total": len(entries)})
}

// SyncProtocol adds protocol products to the library without counting scans.
func (a *API) SyncProtocol(c *gin.Context) {
	var payload protocolPayload
	if !bindJSON(c, &payload, "invalid protocol list") {
		return
	}
	added, err := a.library.SyncProtocol(c.Request.Context(), currentUser(c), payload.ProductIDs)
	if err != nil {
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "could not sync protocol")
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added})
}
