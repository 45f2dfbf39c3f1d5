package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/stackscan/internal/scan"
)

// dialogSessionKey remembers the open scan dialog of a browser session.
const dialogSessionKey = "scan_session_id"

type barcodePayload struct {
	Barcode string `json:"barcode"`
}

type retakePayload struct {
	Side string `json:"side"`
}

type commitPayload struct {
	IntakeTimes             []string `json:"intake_times"`
	ApproxServingsRemaining *int     `json:"approx_servings_remaining"`
}

// ScanBottle runs the whole scan synchronously from a multipart upload.
func (a *API) ScanBottle(c *gin.Context) {
	front, err := a.readUpload(c, "front")
	if err != nil {
		respondUploadError(c, err)
		return
	}
	if len(front) == 0 {
		respondError(c, http.StatusBadRequest, "a front photo is required")
		return
	}
	back, err := a.readUpload(c, "back")
	if err != nil {
		respondUploadError(c, err)
		return
	}

	result, err := a.scans.Pipeline().ScanBottle(c.Request.Context(), currentUser(c), front, back, c.PostForm("barcode"))
	if err != nil {
		respondScanError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// OpenScanSession starts a dialog, closing the one this browser had open.
func (a *API) OpenScanSession(c *gin.Context) {
	userID := currentUser(c)
	cookie := sessions.Default(c)
	if previous, ok := cookie.Get(dialogSessionKey).(string); ok && previous != "" {
		if err := a.scans.Close(userID, previous); err != nil && !errors.Is(err, scan.ErrSessionNotFound) {
			c.Error(err)
		}
	}

	s := a.scans.Open(userID)
	cookie.Set(dialogSessionKey, s.ID)
	if err := cookie.Save(); err != nil {
		c.Error(err)
	}
	c.JSON(http.StatusCreated, s.Snapshot())
}

// GetScanSession returns the current snapshot.
func (a *API) GetScanSession(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

// CloseScanSession cancels the dialog and discards everything it captured.
func (a *API) CloseScanSession(c *gin.Context) {
	id := c.Param("id")
	if err := a.scans.Close(currentUser(c), id); err != nil {
		respondScanError(c, err)
		return
	}

	cookie := sessions.Default(c)
	if current, _ := cookie.Get(dialogSessionKey).(string); current == id {
		cookie.Delete(dialogSessionKey)
		if err := cookie.Save(); err != nil {
			c.Error(err)
		}
	}
	c.Status(http.StatusNoContent)
}

// CaptureFront stores the front photo.
func (a *API) CaptureFront(c *gin.Context) {
	a.capture(c, scan.SideFront)
}

// CaptureBack stores the back photo.
func (a *API) CaptureBack(c *gin.Context) {
	a.capture(c, scan.SideBack)
}

func (a *API) capture(c *gin.Context, side scan.Side) {
	s, ok := a.session(c)
	if !ok {
		return
	}
	data, err := a.readUpload(c, "image")
	if err != nil {
		respondUploadError(c, err)
		return
	}
	if len(data) == 0 {
		respondError(c, http.StatusBadRequest, "no photo was uploaded")
		return
	}

	if err := a.scans.Pipeline().Capture(c.Request.Context(), s, side, scan.Bytes(data)); err != nil {
		respondScanError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

// SkipBack continues without a back photo.
func (a *API) SkipBack(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}
	if err := s.SkipBack(); err != nil {
		respondScanError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

// Retake discards one photo.
func (a *API) Retake(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}
	var payload retakePayload
	if !bindJSON(c, &payload, "invalid retake request") {
		return
	}

	var side scan.Side
	switch strings.ToLower(strings.TrimSpace(payload.Side)) {
	case string(scan.SideFront):
		side = scan.SideFront
	case string(scan.SideBack):
		side = scan.SideBack
	default:
		respondError(c, http.StatusBadRequest, "side must be front or back")
		return
	}

	if err := s.Retake(side); err != nil {
		respondScanError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

// SetBarcode records a barcode typed by the user.
func (a *API) SetBarcode(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}
	var payload barcodePayload
	if !bindJSON(c, &payload, "invalid barcode") {
		return
	}
	if err := s.SetManualBarcode(payload.Barcode); err != nil {
		respondScanError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

// Analyze starts recognition in the background.
func (a *API) Analyze(c *gin.Context) {
	s, err := a.scans.Analyze(currentUser(c), c.Param("id"))
	if err != nil {
		respondScanError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, s.Snapshot())
}

// CommitScan adds the presented product to the user's stack.
func (a *API) CommitScan(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}
	var payload commitPayload
	if c.Request.ContentLength != 0 && !bindJSON(c, &payload, "invalid commit request") {
		return
	}

	item, err := a.scans.Pipeline().Commit(c.Request.Context(), s, scan.CommitInput{
		IntakeTimes:             payload.IntakeTimes,
		ApproxServingsRemaining: payload.ApproxServingsRemaining,
	})
	if err != nil {
		respondScanError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": s.Snapshot(), "stack_item": item})
}

func (a *API) session(c *gin.Context) (*scan.Session, bool) {
	s, err := a.scans.Get(currentUser(c), c.Param("id"))
	if err != nil {
		respondScanError(c, err)
		return nil, false
	}
	return s, true
}

func respondUploadError(c *gin.Context, err error) {
	if errors.Is(err, errUploadTooLarge) {
		respondError(c, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	respondError(c, http.StatusBadRequest, err.Error())
}
