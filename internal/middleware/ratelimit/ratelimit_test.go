package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_LimitsPerKey(t *testing.T) {
	rl := New(Config{
		MaxRequestsPerMinute: 2,
		KeyFunc:              func(c *fiber.Ctx) string { return c.Get("X-Key") },
	})
	defer rl.Stop()

	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	do := func(key string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Key", key)
		resp, err := app.Test(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, do("a"))
	assert.Equal(t, fiber.StatusOK, do("a"))
	assert.Equal(t, fiber.StatusTooManyRequests, do("a"))
	assert.Equal(t, fiber.StatusOK, do("b"))
}

func TestAllow_Refills(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 1})
	defer rl.Stop()

	now := time.Now()
	assert.True(t, rl.allow("k", now))
	assert.False(t, rl.allow("k", now.Add(time.Second)))
	assert.True(t, rl.allow("k", now.Add(61*time.Second)))
}

func TestEvict(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 10, CleanupInterval: time.Minute})
	defer rl.Stop()

	now := time.Now()
	rl.allow("old", now.Add(-time.Hour))
	rl.allow("fresh", now)
	rl.evict(now)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.visitors, "old")
	assert.Contains(t, rl.visitors, "fresh")
}

func TestStop_Idempotent(t *testing.T) {
	rl := New(Config{})
	rl.Stop()
	rl.Stop()
}
