// Package auth implements magic-link sign-in, session lookup, and the signed
// state used by the Google import flow.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/warmpath/backend/internal/storage"
	"github.com/warmpath/backend/internal/storage/models"
	"github.com/warmpath/backend/pkg/logger"
)

var (
	ErrInvalidToken = eris.New("invalid or expired token")
	ErrInvalidEmail = eris.New("invalid email address")
)

// CallbackPath is where magic links land.
const CallbackPath = "/api/v1/auth/callback"

// Store is the persistence the auth service needs.
type Store interface {
	UpsertUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, token string) (*models.Session, error)
	DeleteSession(ctx context.Context, token string) error
	CreateVerificationToken(ctx context.Context, token *models.VerificationToken) error
	ConsumeVerificationToken(ctx context.Context, tokenHash string) (*models.VerificationToken, error)
}

// Mailer delivers a sign-in link.
type Mailer interface {
	SendSignInLink(ctx context.Context, email, link string) error
}

// LogMailer writes sign-in links to the log instead of sending mail.
type LogMailer struct{}

func (LogMailer) SendSignInLink(_ context.Context, email, link string) error {
	logger.Info("Sign-in link issued", zap.String("email", email), zap.String("link", link))
	return nil
}

type Config struct {
	BaseURL      string
	SessionTTL   time.Duration
	MagicLinkTTL time.Duration
}

type Service struct {
	store  Store
	mailer Mailer
	cfg    Config
	now    func() time.Time
}

func NewService(store Store, mailer Mailer, cfg Config) *Service {
	if mailer == nil {
		mailer = LogMailer{}
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * 24 * time.Hour
	}
	if cfg.MagicLinkTTL <= 0 {
		cfg.MagicLinkTTL = 15 * time.Minute
	}
	return &Service{store: store, mailer: mailer, cfg: cfg, now: time.Now}
}

// RequestSignIn records a single-use token for email and mails the link.
func (s *Service) RequestSignIn(ctx context.Context, email string) error {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return eris.Wrapf(ErrInvalidEmail, "%v", err)
	}
	normalized := strings.ToLower(addr.Address)

	raw, err := randomToken(32)
	if err != nil {
		return err
	}
	err = s.store.CreateVerificationToken(ctx, &models.VerificationToken{
		TokenHash: hashToken(raw),
		Email:     normalized,
		ExpiresAt: s.now().Add(s.cfg.MagicLinkTTL),
	})
	if err != nil {
		return eris.Wrap(err, "auth: store verification token")
	}

	link := strings.TrimRight(s.cfg.BaseURL, "/") + CallbackPath + "?token=" + url.QueryEscape(raw)
	return eris.Wrap(s.mailer.SendSignInLink(ctx, normalized, link), "auth: send sign-in link")
}

// CompleteSignIn consumes a magic-link token and opens a session for its
// email, creating the user on first sign-in.
func (s *Service) CompleteSignIn(ctx context.Context, rawToken string) (*models.Session, *models.User, error) {
	if rawToken == "" {
		return nil, nil, ErrInvalidToken
	}
	vt, err := s.store.ConsumeVerificationToken(ctx, hashToken(rawToken))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, ErrInvalidToken
	}
	if err != nil {
		return nil, nil, eris.Wrap(err, "auth: consume token")
	}

	user, err := s.store.UpsertUserByEmail(ctx, vt.Email)
	if err != nil {
		return nil, nil, eris.Wrap(err, "auth: upsert user")
	}

	sessionToken, err := randomToken(32)
	if err != nil {
		return nil, nil, err
	}
	sess := &models.Session{
		Token:     sessionToken,
		UserID:    user.ID,
		ExpiresAt: s.now().Add(s.cfg.SessionTTL),
		CreatedAt: s.now(),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, nil, eris.Wrap(err, "auth: create session")
	}

	logger.Info("User signed in", zap.String("user_id", user.ID))
	return sess, user, nil
}

// Authenticate resolves a session token to its user.
func (s *Service) Authenticate(ctx context.Context, sessionToken string) (*models.User, error) {
	if sessionToken == "" {
		return nil, ErrInvalidToken
	}
	sess, err := s.store.GetSession(ctx, sessionToken)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, eris.Wrap(err, "auth: get session")
	}
	user, err := s.store.GetUser(ctx, sess.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, eris.Wrap(err, "auth: get user")
	}
	return user, nil
}

func (s *Service) SignOut(ctx context.Context, sessionToken string) error {
	if sessionToken == "" {
		return nil
	}
	return eris.Wrap(s.store.DeleteSession(ctx, sessionToken), "auth: delete session")
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", eris.Wrap(err, "auth: random token")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
