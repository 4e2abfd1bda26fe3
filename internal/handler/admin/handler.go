// Package admin exposes the operational endpoints that are normally driven
// by the worker: an on-demand reconciliation sweep.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/careslot/booking-api/internal/service/reconciler"
	"github.com/careslot/booking-api/pkg/httputil"
)

type Handler struct {
	sweeper *reconciler.Service
}

func NewHandler(sweeper *reconciler.Service) *Handler {
	return &Handler{sweeper: sweeper}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/admin/reconcile", h.Reconcile)
}

// Reconcile runs one sweep immediately. An optional ?ref=RFC3339 timestamp
// overrides the reference instant, mainly for backfill after downtime.
func (h *Handler) Reconcile(c *gin.Context) {
	var ref time.Time
	if raw := c.Query("ref"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, httputil.NewErrorResponse("invalid ref timestamp"))
			return
		}
		ref = parsed
	}

	report, err := h.sweeper.Run(c.Request.Context(), ref)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, report)
}
