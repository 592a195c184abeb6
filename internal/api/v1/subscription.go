package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/renewd/renewd/internal/api/dto"
	ierr "github.com/renewd/renewd/internal/errors"
	"github.com/renewd/renewd/internal/logger"
	"github.com/renewd/renewd/internal/service"
	"github.com/renewd/renewd/internal/types"
)

// SubscriptionHandler exposes the tenant-initiated subscription operations
type SubscriptionHandler struct {
	subscriptionService service.SubscriptionService
	logger              *logger.Logger
}

func NewSubscriptionHandler(
	subscriptionService service.SubscriptionService,
	logger *logger.Logger,
) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
		logger:              logger,
	}
}

func (h *SubscriptionHandler) StartSubscription(c *gin.Context) {
	tenantID := c.Param("id")

	var req dto.StartSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, ierr.WithError(err).
			WithHint("Invalid request payload").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.subscriptionService.StartSubscription(c.Request.Context(), tenantID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	resp, err := h.subscriptionService.GetSubscription(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SubscriptionHandler) RequestCancellation(c *gin.Context) {
	tenantID := c.Param("id")

	var req dto.CancelSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, ierr.WithError(err).
			WithHint("Invalid request payload").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.subscriptionService.RequestCancellation(c.Request.Context(), tenantID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SubscriptionHandler) Reactivate(c *gin.Context) {
	resp, err := h.subscriptionService.Reactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SubscriptionHandler) ChangePlan(c *gin.Context) {
	tenantID := c.Param("id")

	var req dto.ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, ierr.WithError(err).
			WithHint("Invalid request payload").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.subscriptionService.ChangePlan(c.Request.Context(), tenantID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SubscriptionHandler) UpdatePaymentMethod(c *gin.Context) {
	tenantID := c.Param("id")

	var req dto.UpdatePaymentMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, ierr.WithError(err).
			WithHint("Invalid request payload").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.subscriptionService.UpdatePaymentMethod(c.Request.Context(), tenantID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SubscriptionHandler) respondError(c *gin.Context, err error) {
	h.logger.Errorw("subscription operation failed",
		"tenant_id", c.Param("id"),
		"path", c.FullPath(),
		"request_id", types.GetRequestID(c.Request.Context()),
		"error", err)

	c.JSON(ierr.HTTPStatusFromErr(err), gin.H{
		"error": err.Error(),
	})
}
