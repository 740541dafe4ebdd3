package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/warmpath/backend/internal/auth"
	"github.com/warmpath/backend/internal/googlecontacts"
	"github.com/warmpath/backend/internal/importer"
	"github.com/warmpath/backend/internal/metrics"
	"github.com/warmpath/backend/internal/middleware/session"
	"github.com/warmpath/backend/pkg/logger"
)

const errNoFile = "Please select a CSV file."

// GoogleClient is the Google Contacts flow the import handler drives.
type GoogleClient interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	ListConnections(ctx context.Context, token *oauth2.Token) ([]googlecontacts.Person, error)
}

type ImportHandlerConfig struct {
	Importer *importer.Importer
	// Google is nil when the integration is not configured.
	Google     GoogleClient
	States     *auth.StateSigner
	Auth       session.Authenticator
	CookieName string
	// AppURL is the base the browser is redirected to after the Google flow.
	AppURL  string
	Metrics *metrics.Metrics
}

type ImportHandler struct {
	cfg ImportHandlerConfig
}

func NewImportHandler(cfg ImportHandlerConfig) *ImportHandler {
	cfg.AppURL = strings.TrimRight(cfg.AppURL, "/")
	return &ImportHandler{cfg: cfg}
}

func (h *ImportHandler) ImportCSV(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil || fileHeader == nil || fileHeader.Size == 0 {
		return importError(c, fiber.StatusBadRequest, errNoFile)
	}

	file, err := fileHeader.Open()
	if err != nil {
		logger.Error("Failed to open upload", zap.Error(err))
		return importError(c, fiber.StatusBadRequest, errNoFile)
	}
	defer file.Close()

	rows, err := importer.ParseCSV(file)
	if err != nil {
		logger.Warn("Rejected CSV upload", zap.String("file", fileHeader.Filename), zap.Error(err))
		return importError(c, fiber.StatusBadRequest, importer.ErrInvalidCSV.Error())
	}

	res, err := h.cfg.Importer.Import(c.UserContext(), session.UserID(c), importer.OriginCSV, rows)
	if errors.Is(err, importer.ErrNoValidRows) {
		return importError(c, fiber.StatusBadRequest, importer.ErrNoValidRows.Error())
	}
	if err != nil {
		logger.Error("CSV import failed", zap.Error(err), zap.Int("added", res.Added))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"added":   res.Added,
			"skipped": res.Skipped,
			"error":   "Import failed. Please try again.",
		})
	}

	return c.JSON(fiber.Map{
		"added":   res.Added,
		"skipped": res.Skipped,
		"message": importMessage(res),
	})
}

func importError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"added":   0,
		"skipped": 0,
		"error":   msg,
	})
}

func importMessage(res importer.Result) string {
	if res.Added == 0 && res.Skipped > 0 {
		return fmt.Sprintf("All %d row(s) were duplicates; nothing added.", res.Skipped)
	}
	plural := "s"
	if res.Added == 1 {
		plural = ""
	}
	msg := fmt.Sprintf("%d contact%s added to your private network.", res.Added, plural)
	if res.Skipped > 0 {
		msg += fmt.Sprintf(" %d duplicate(s) skipped.", res.Skipped)
	}
	return msg
}

func (h *ImportHandler) Options(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"google_enabled": h.cfg.Google != nil,
	})
}

// GoogleStart redirects the signed-in user to Google's consent screen.
func (h *ImportHandler) GoogleStart(c *fiber.Ctx) error {
	if h.cfg.Google == nil {
		return c.Redirect(h.cfg.AppURL+"/network/import?error=google_not_configured", fiber.StatusFound)
	}

	state, err := h.cfg.States.Sign(session.UserID(c))
	if err != nil {
		logger.Error("Failed to sign oauth state", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to start Google import",
		})
	}
	return c.Redirect(h.cfg.Google.AuthCodeURL(state), fiber.StatusFound)
}

// GoogleCallback finishes the consent round trip. It always redirects to the
// network page; the outcome is logged and counted.
func (h *ImportHandler) GoogleCallback(c *fiber.Ctx) error {
	outcome, added, err := h.googleImport(c)

	fields := []zap.Field{zap.String("outcome", string(outcome))}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if outcome == googlecontacts.OutcomeImported {
		logger.Info("Google import finished", append(fields, zap.Int("added", added))...)
	} else {
		logger.Warn("Google import aborted", fields...)
	}
	h.cfg.Metrics.ObserveGoogleImport(string(outcome))

	target := h.cfg.AppURL + "/network"
	if outcome == googlecontacts.OutcomeImported {
		target += "?" + url.Values{"imported": {fmt.Sprint(added)}}.Encode()
	}
	return c.Redirect(target, fiber.StatusFound)
}

func (h *ImportHandler) googleImport(c *fiber.Ctx) (googlecontacts.Outcome, int, error) {
	if c.Query("error") != "" {
		return googlecontacts.OutcomeDenied, 0, nil
	}
	code, state := c.Query("code"), c.Query("state")
	if code == "" || state == "" {
		return googlecontacts.OutcomeDenied, 0, nil
	}

	ctx := c.UserContext()
	user, err := h.cfg.Auth.Authenticate(ctx, session.Token(c, h.cfg.CookieName))
	if err != nil {
		return googlecontacts.OutcomeStateMismatch, 0, err
	}
	if err := h.cfg.States.Verify(state, user.ID); err != nil {
		return googlecontacts.OutcomeStateMismatch, 0, err
	}

	if h.cfg.Google == nil {
		return googlecontacts.OutcomeNotConfigured, 0, nil
	}

	token, err := h.cfg.Google.Exchange(ctx, code)
	if errors.Is(err, googlecontacts.ErrEmptyToken) {
		return googlecontacts.OutcomeEmptyToken, 0, err
	}
	if err != nil {
		return googlecontacts.OutcomeExchangeFailed, 0, err
	}

	people, err := h.cfg.Google.ListConnections(ctx, token)
	if err != nil {
		return googlecontacts.OutcomeListFailed, 0, err
	}

	res, err := h.cfg.Importer.Import(ctx, user.ID, importer.OriginGoogle, googlecontacts.Rows(people))
	if errors.Is(err, importer.ErrNoValidRows) {
		return googlecontacts.OutcomeImported, 0, nil
	}
	if err != nil {
		return googlecontacts.OutcomeStoreFailed, res.Added, err
	}
	return googlecontacts.OutcomeImported, res.Added, nil
}
