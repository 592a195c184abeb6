package types

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTenantContextRoundTrip(t *testing.T) {
	ctx := SetTenantID(context.Background(), "ten_1")
	ctx = SetUserID(ctx, "usr_1")

	assert.Equal(t, "ten_1", GetTenantID(ctx))
	assert.Equal(t, "usr_1", GetUserID(ctx))
	assert.NoError(t, ValidateTenantContext(ctx))
}

func TestValidateTenantContextRejectsUnscopedContext(t *testing.T) {
	assert.Error(t, ValidateTenantContext(context.Background()))
}

func TestRequestIDRoundTrip(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))

	ctx := context.WithValue(context.Background(), CtxRequestID, "req_1")
	assert.Equal(t, "req_1", GetRequestID(ctx))
}
