package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stackscan/internal/service"
)

type intakePayload struct {
	Servings int       `json:"servings"`
	TakenAt  time.Time `json:"taken_at"`
	Note     string    `json:"note"`
}

type remainingPayload struct {
	Remaining *int `json:"approx_servings_remaining"`
}

// ListStack returns the user's stack. Paused items are included on request.
func (a *API) ListStack(c *gin.Context) {
	includePaused, _ := strconv.ParseBool(c.DefaultQuery("include_paused", "false"))
	items, err := a.stack.List(c.Request.Context(), currentUser(c), includePaused)
	if err != nil {
		respondStackError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

// GetStackItem returns one item with its intake history.
func (a *API) GetStackItem(c *gin.Context) {
	ctx := c.Request.Context()
	item, err := a.stack.Get(ctx, currentUser(c), c.Param("id"))
	if err != nil {
		respondStackError(c, err)
		return
	}
	logs, err := a.stack.IntakeLogs(ctx, currentUser(c), item.ID)
	if err != nil {
		respondStackError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item, "intake_logs": logs})
}

// LogIntake records servings taken from a bottle.
func (a *API) LogIntake(c *gin.Context) {
	var payload intakePayload
	if c.Request.ContentLength != 0 && !bindJSON(c, &payload, "invalid intake") {
		return
	}
	item, err := a.stack.LogIntake(c.Request.Context(), currentUser(c), c.Param("id"), service.IntakeInput{
		Servings: payload.Servings,
		TakenAt:  payload.TakenAt,
		Note:     payload.Note,
	})
	if err != nil {
		respondStackError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// SetRemaining stores the user's estimate of servings left.
func (a *API) SetRemaining(c *gin.Context) {
	var payload remainingPayload
	if !bindJSON(c, &payload, "invalid remaining servings") {
		return
	}
	item, err := a.stack.SetApproxRemaining(c.Request.Context(), currentUser(c), c.Param("id"), payload.Remaining)
	if err != nil {
		respondStackError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// PauseStackItem keeps the item but hides it from the active stack.
func (a *API) PauseStackItem(c *gin.Context) {
	a.setActive(c, false)
}

// ResumeStackItem returns a paused item to the active stack.
func (a *API) ResumeStackItem(c *gin.Context) {
	a.setActive(c, true)
}

func (a *API) setActive(c *gin.Context, active bool) {
	item, err := a.stack.SetActive(c.Request.Context(), currentUser(c), c.Param("id"), active)
	if err != nil {
		respondStackError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// DeleteStackItem removes the item and its intake history.
func (a *API) DeleteStackItem(c *gin.Context) {
	if err := a.stack.Delete(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		respondStackError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func respondStackError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrStackItemNotFound):
		respondError(c, http.StatusNotFound, "stack item not found")
	case errors.Is(err, service.ErrInvalidServings):
		respondError(c, http.StatusBadRequest, err.Error())
	default:
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "stack update failed")
	}
}
