package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestLimiterStore_PerKey(t *testing.T) {
	store := NewLimiterStore(rate.Every(time.Hour), 1)

	assert.Same(t, store.GetLimiter("ACME"), store.GetLimiter("ACME"))
	assert.NotSame(t, store.GetLimiter("ACME"), store.GetLimiter("GLOBEX"))

	require.NoError(t, store.Wait(context.Background(), "ACME"))
	require.NoError(t, store.Wait(context.Background(), "GLOBEX"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, store.Wait(ctx, "ACME"), "second ACME request must wait for the next token")
}
