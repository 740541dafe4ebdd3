package validation

import (
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/warmpath/backend/internal/contacts"
)

const filtersKey = "sanitized_filters"

type Config struct {
	// MaxFilterLength bounds each query filter, in characters.
	MaxFilterLength     int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.MaxFilterLength == 0 {
		cfg.MaxFilterLength = 200
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{fiber.MIMEApplicationJSON, fiber.MIMEMultipartForm}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return cfg
}

// Middleware rejects write requests whose body is neither JSON nor multipart.
func Middleware(cfg Config) fiber.Handler {
	cfg = cfg.withDefaults()

	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch:
			contentType := c.Get(fiber.HeaderContentType)
			if contentType != "" && !allowedType(contentType, cfg.AllowedContentTypes) {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"error": "Unsupported content type",
				})
			}
		}

		return c.Next()
	}
}

// QueryFilters parses the query filter body, strips NUL bytes, trims each
// filter and bounds its length. Mount it on the query route itself.
func QueryFilters(cfg Config) fiber.Handler {
	cfg = cfg.withDefaults()

	return func(c *fiber.Ctx) error {
		var f contacts.Filters
		if err := c.BodyParser(&f); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"results": []any{},
				"error":   "Invalid JSON format",
			})
		}

		f = contacts.Filters{
			Company: sanitizeString(f.Company),
			Role:    sanitizeString(f.Role),
			Keyword: sanitizeString(f.Keyword),
		}
		for _, v := range []string{f.Company, f.Role, f.Keyword} {
			if utf8.RuneCountInString(v) > cfg.MaxFilterLength {
				cfg.Logger.Warn("Filter too long", zap.String("ip", c.IP()), zap.Int("length", len(v)))
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"results": []any{},
					"error":   "Filter exceeds maximum length",
				})
			}
		}
		c.Locals(filtersKey, f)

		return c.Next()
	}
}

// Filters returns the sanitized query filters stored by QueryFilters.
func Filters(c *fiber.Ctx) (contacts.Filters, bool) {
	f, ok := c.Locals(filtersKey).(contacts.Filters)
	return f, ok
}

func allowedType(contentType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}

func sanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}
