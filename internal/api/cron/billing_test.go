package cron

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renewd/renewd/internal/api/dto"
	"github.com/renewd/renewd/internal/config"
	ierr "github.com/renewd/renewd/internal/errors"
	"github.com/renewd/renewd/internal/logger"
	"github.com/renewd/renewd/internal/service"
)

// stubBillingService fails or succeeds wholesale, standing in for a batch
// whose tenant listing broke.
type stubBillingService struct {
	err error
}

var _ service.BillingService = (*stubBillingService)(nil)

func (s *stubBillingService) Run(ctx context.Context, today time.Time) (*dto.BillingRunResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &dto.BillingRunResponse{RunDate: today}, nil
}

func (s *stubBillingService) ProcessUpcomingBillingAlerts(ctx context.Context, today time.Time) (*dto.UpcomingAlertsResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &dto.UpcomingAlertsResponse{}, nil
}

func newHandlerContext(t *testing.T, svc service.BillingService) (*BillingHandler, *gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, err := logger.NewLogger(config.GetDefaultConfig())
	require.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	return NewBillingHandler(svc, log), c, w
}

func TestRunReportsBatchFailureStatus(t *testing.T) {
	batchErr := ierr.NewError("listing tenants failed").
		WithHint("Failed to list tenants").
		Mark(ierr.ErrSystem)
	handler, c, w := newHandlerContext(t, &stubBillingService{err: batchErr})

	handler.Run(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}

func TestRunReturnsSummaryOnSuccess(t *testing.T) {
	handler, c, w := newHandlerContext(t, &stubBillingService{})

	handler.Run(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpcomingAlertsReportsBatchFailureStatus(t *testing.T) {
	batchErr := ierr.NewError("listing tenants failed").
		WithHint("Failed to list tenants").
		Mark(ierr.ErrSystem)
	handler, c, w := newHandlerContext(t, &stubBillingService{err: batchErr})

	handler.UpcomingAlerts(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
