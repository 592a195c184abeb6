package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/renewd/renewd/internal/api/cron"
	v1 "github.com/renewd/renewd/internal/api/v1"
	"github.com/renewd/renewd/internal/types"
)

type Handlers struct {
	Subscription *v1.SubscriptionHandler
	CronBilling  *cron.BillingHandler
}

func NewRouter(handlers Handlers) *gin.Engine {
	router := gin.Default()
	router.Use(requestIDMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// v1 routes
	v1Group := router.Group("/v1")
	registerV1Routes(v1Group, handlers)

	// cron routes, hit by the scheduler rather than end users
	cronGroup := router.Group("/cron")
	registerCronRoutes(cronGroup, handlers)

	return router
}

// requestIDMiddleware stamps every request with an id so a failed operation
// can be traced through the logs
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_REQUEST)
		}

		ctx := context.WithValue(c.Request.Context(), types.CtxRequestID, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func registerV1Routes(router *gin.RouterGroup, handlers Handlers) {
	tenants := router.Group("/tenants")
	{
		tenants.POST("/:id/subscription", handlers.Subscription.StartSubscription)
		tenants.GET("/:id/subscription", handlers.Subscription.GetSubscription)
		tenants.POST("/:id/subscription/cancel", handlers.Subscription.RequestCancellation)
		tenants.POST("/:id/subscription/reactivate", handlers.Subscription.Reactivate)
		tenants.POST("/:id/subscription/plan", handlers.Subscription.ChangePlan)
		tenants.PUT("/:id/payment-method", handlers.Subscription.UpdatePaymentMethod)
	}
}

func registerCronRoutes(router *gin.RouterGroup, handlers Handlers) {
	billing := router.Group("/billing")
	{
		billing.POST("/run", handlers.CronBilling.Run)
		billing.POST("/upcoming-alerts", handlers.CronBilling.UpcomingAlerts)
	}
}
