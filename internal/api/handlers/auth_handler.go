package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/warmpath/backend/internal/auth"
	"github.com/warmpath/backend/internal/metrics"
	"github.com/warmpath/backend/internal/middleware/session"
	"github.com/warmpath/backend/pkg/logger"
)

type AuthHandlerConfig struct {
	Service      *auth.Service
	CookieName   string
	SecureCookie bool
	Metrics      *metrics.Metrics
}

type AuthHandler struct {
	cfg AuthHandlerConfig
}

func NewAuthHandler(cfg AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{cfg: cfg}
}

// SignIn answers 202 whether or not a link was sent.
func (h *AuthHandler) SignIn(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	h.cfg.Metrics.ObserveSignInRequest()
	if err := h.cfg.Service.RequestSignIn(c.UserContext(), req.Email); err != nil {
		if errors.Is(err, auth.ErrInvalidEmail) {
			logger.Debug("Sign-in requested for invalid email")
		} else {
			logger.Error("Failed to issue sign-in link", zap.Error(err))
		}
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "If the address is valid, a sign-in link is on its way.",
	})
}

func (h *AuthHandler) Callback(c *fiber.Ctx) error {
	sess, user, err := h.cfg.Service.CompleteSignIn(c.UserContext(), c.Query("token"))
	if errors.Is(err, auth.ErrInvalidToken) {
		h.cfg.Metrics.ObserveSignInCompletion("invalid")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired sign-in link.",
		})
	}
	if err != nil {
		h.cfg.Metrics.ObserveSignInCompletion("error")
		logger.Error("Failed to complete sign-in", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to sign in",
		})
	}

	h.cfg.Metrics.ObserveSignInCompletion("ok")
	c.Cookie(&fiber.Cookie{
		Name:     h.cfg.CookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HTTPOnly: true,
		Secure:   h.cfg.SecureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.JSON(fiber.Map{
		"user":       user,
		"token":      sess.Token,
		"expires_at": sess.ExpiresAt,
	})
}

func (h *AuthHandler) SignOut(c *fiber.Ctx) error {
	if err := h.cfg.Service.SignOut(c.UserContext(), session.Token(c, h.cfg.CookieName)); err != nil {
		logger.Error("Failed to sign out", zap.Error(err))
	}
	c.Cookie(&fiber.Cookie{
		Name:     h.cfg.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   h.cfg.SecureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) Session(c *fiber.Ctx) error {
	user, err := h.cfg.Service.Authenticate(c.UserContext(), session.Token(c, h.cfg.CookieName))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Sign in required",
		})
	}
	return c.JSON(fiber.Map{
		"user": user,
	})
}
