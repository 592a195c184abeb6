package cron

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	ierr "github.com/renewd/renewd/internal/errors"
	"github.com/renewd/renewd/internal/logger"
	"github.com/renewd/renewd/internal/service"
)

// BillingHandler exposes the periodic billing jobs to the external scheduler
type BillingHandler struct {
	billingService service.BillingService
	logger         *logger.Logger
}

// NewBillingHandler creates a new billing cron handler
func NewBillingHandler(
	billingService service.BillingService,
	logger *logger.Logger,
) *BillingHandler {
	return &BillingHandler{
		billingService: billingService,
		logger:         logger,
	}
}

// Run executes one billing batch for today. The driver never raises for a
// tenant-level fault, so a non-200 here means the batch itself could not run.
func (h *BillingHandler) Run(c *gin.Context) {
	h.logger.Infow("starting billing run cron job")

	response, err := h.billingService.Run(c.Request.Context(), time.Now().UTC())
	if err != nil {
		h.logger.Errorw("failed to run billing batch",
			"error", err)
		c.JSON(ierr.HTTPStatusFromErr(err), gin.H{"error": err.Error()})
		return
	}

	h.logger.Infow("completed billing run cron job")
	c.JSON(http.StatusOK, response)
}

// UpcomingAlerts emits upcoming-billing events for renewals inside the
// configured alert window
func (h *BillingHandler) UpcomingAlerts(c *gin.Context) {
	h.logger.Infow("starting upcoming billing alerts cron job")

	response, err := h.billingService.ProcessUpcomingBillingAlerts(c.Request.Context(), time.Now().UTC())
	if err != nil {
		h.logger.Errorw("failed to process upcoming billing alerts",
			"error", err)
		c.JSON(ierr.HTTPStatusFromErr(err), gin.H{"error": err.Error()})
		return
	}

	h.logger.Infow("completed upcoming billing alerts cron job")
	c.JSON(http.StatusOK, response)
}
