package auth

import (
	"context"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warmpath/backend/internal/storage/sqlite"
)

type captureMailer struct {
	mu    sync.Mutex
	email string
	link  string
}

func (m *captureMailer) SendSignInLink(_ context.Context, email, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.email, m.link = email, link
	return nil
}

func (m *captureMailer) token(t *testing.T) string {
	t.Helper()
	u, err := url.Parse(m.link)
	require.NoError(t, err)
	return u.Query().Get("token")
}

func newTestService(t *testing.T) (*Service, *captureMailer) {
	t.Helper()
	store, err := sqlite.NewClient(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() }) //nolint:errcheck
	require.NoError(t, store.Migrate(context.Background()))

	mailer := &captureMailer{}
	return NewService(store, mailer, Config{
		BaseURL:      "http://localhost:8080/",
		SessionTTL:   time.Hour,
		MagicLinkTTL: time.Minute,
	}), mailer
}

func TestSignInFlow(t *testing.T) {
	svc, mailer := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.RequestSignIn(ctx, "  Founder@Example.com "))
	assert.Equal(t, "founder@example.com", mailer.email)
	assert.Contains(t, mailer.link, "http://localhost:8080"+CallbackPath+"?token=")

	sess, user, err := svc.CompleteSignIn(ctx, mailer.token(t))
	require.NoError(t, err)
	assert.Equal(t, "founder@example.com", user.Email)
	assert.Equal(t, user.ID, sess.UserID)
	assert.NotEmpty(t, sess.Token)

	got, err := svc.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	require.NoError(t, svc.SignOut(ctx, sess.Token))
	_, err = svc.Authenticate(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCompleteSignIn_TokenSingleUse(t *testing.T) {
	svc, mailer := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.RequestSignIn(ctx, "a@example.com"))
	token := mailer.token(t)

	_, _, err := svc.CompleteSignIn(ctx, token)
	require.NoError(t, err)

	_, _, err = svc.CompleteSignIn(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCompleteSignIn_Expired(t *testing.T) {
	svc, mailer := newTestService(t)
	ctx := context.Background()

	issued := time.Now()
	svc.now = func() time.Time { return issued.Add(-2 * time.Minute) }
	require.NoError(t, svc.RequestSignIn(ctx, "a@example.com"))
	svc.now = time.Now

	_, _, err := svc.CompleteSignIn(ctx, mailer.token(t))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequestSignIn_InvalidEmail(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.RequestSignIn(context.Background(), "not an email")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestAuthenticate_Unknown(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Authenticate(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignOut_EmptyToken(t *testing.T) {
	svc, _ := newTestService(t)
	assert.NoError(t, svc.SignOut(context.Background(), ""))
}
