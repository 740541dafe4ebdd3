package session

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/warmpath/backend/internal/auth"
	"github.com/warmpath/backend/internal/storage/models"
	"github.com/warmpath/backend/pkg/logger"
)

const userKey = "session_user"

// Authenticator resolves a session token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, sessionToken string) (*models.User, error)
}

type Config struct {
	Auth       Authenticator
	CookieName string
}

// Token returns the session token from the cookie, or from an
// "Authorization: Bearer" header when no cookie is set.
func Token(c *fiber.Ctx, cookieName string) string {
	if v := c.Cookies(cookieName); v != "" {
		return v
	}
	h := c.Get(fiber.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// Middleware rejects requests without a valid session and stores the user
// for handlers.
func Middleware(cfg Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := cfg.Auth.Authenticate(c.UserContext(), Token(c, cfg.CookieName))
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				logger.Error("Session lookup failed", zap.Error(err))
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Sign in required",
			})
		}
		c.Locals(userKey, user)
		return c.Next()
	}
}

// User returns the authenticated user, or nil outside the middleware.
func User(c *fiber.Ctx) *models.User {
	u, _ := c.Locals(userKey).(*models.User)
	return u
}

// UserID returns the authenticated user's id, or "".
func UserID(c *fiber.Ctx) string {
	if u := User(c); u != nil {
		return u.ID
	}
	return ""
}
