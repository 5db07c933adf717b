package cache

import (
	"context"
	"testing"
	"time"

	"go-pos-sync/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestNewRedisCacheNeedsAddr(t *testing.T) {
	_, err := NewRedisCache("", "", 0, time.Minute)
	assert.Error(t, err)
}

func TestNewRedisCacheUnreachable(t *testing.T) {
	// Port 1 on loopback refuses connections.
	_, err := NewRedisCache("127.0.0.1:1", "", 0, time.Minute)
	assert.Error(t, err)
}

func TestNopAlwaysMisses(t *testing.T) {
	var c ProductCache = Nop{}
	ctx := context.Background()
	assert.NoError(t, c.SetProducts(ctx, []models.Product{{ID: "p1"}}))
	_, hit, err := c.Products(ctx)
	assert.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, c.Invalidate(ctx))
}
