package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warmpath/backend/internal/storage"
	"github.com/warmpath/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() }) //nolint:errcheck
	require.NoError(t, c.Migrate(context.Background()))
	return c
}

func newTestUser(t *testing.T, c *Client, email string) *models.User {
	t.Helper()
	u, err := c.UpsertUserByEmail(context.Background(), email)
	require.NoError(t, err)
	return u
}

func intPtr(v int) *int { return &v }

// --- Users ---

func TestUpsertUserByEmail_Idempotent(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	first, err := c.UpsertUserByEmail(ctx, "  Founder@Example.com ")
	require.NoError(t, err)
	second, err := c.UpsertUserByEmail(ctx, "founder@example.com")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "founder@example.com", second.Email)

	got, err := c.GetUser(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestGetUser_NotFound(t *testing.T) {
	c := newTestClient(t)

	_, err := c.GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// --- Sessions ---

func TestSession_CreateGetDelete(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	u := newTestUser(t, c, "a@example.com")

	require.NoError(t, c.CreateSession(ctx, &models.Session{
		Token:     "tok",
		UserID:    u.ID,
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	s, err := c.GetSession(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, u.ID, s.UserID)

	require.NoError(t, c.DeleteSession(ctx, "tok"))
	_, err = c.GetSession(ctx, "tok")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSession_Expired(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	u := newTestUser(t, c, "a@example.com")

	require.NoError(t, c.CreateSession(ctx, &models.Session{
		Token:     "old",
		UserID:    u.ID,
		ExpiresAt: time.Now().Add(-time.Minute),
	}))

	_, err := c.GetSession(ctx, "old")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// --- Verification tokens ---

func TestVerificationToken_ConsumedOnce(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.CreateVerificationToken(ctx, &models.VerificationToken{
		TokenHash: "hash",
		Email:     "a@example.com",
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	tok, err := c.ConsumeVerificationToken(ctx, "hash")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", tok.Email)

	_, err = c.ConsumeVerificationToken(ctx, "hash")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestVerificationToken_Expired(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.CreateVerificationToken(ctx, &models.VerificationToken{
		TokenHash: "stale",
		Email:     "a@example.com",
		ExpiresAt: time.Now().Add(-time.Minute),
	}))

	_, err := c.ConsumeVerificationToken(ctx, "stale")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// --- Sources ---

func TestGetOrCreateSource_ReusesRecord(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	u := newTestUser(t, c, "a@example.com")

	first, err := c.GetOrCreateSource(ctx, u.ID, "CSV Import", models.SourceImport)
	require.NoError(t, err)
	second, err := c.GetOrCreateSource(ctx, u.ID, "CSV Import", models.SourceImport)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Imported via CSV Import.", first.Description)
	assert.Equal(t, models.SourceImport, first.Type)
}

func TestGetOrCreateSource_Concurrent(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	u := newTestUser(t, c, "a@example.com")

	const workers = 8
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := c.GetOrCreateSource(ctx, u.ID, "Google", models.SourceEmail)
			if assert.NoError(t, err) {
				ids[i] = s.ID
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestGetOrCreateSource_PerOwner(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	a := newTestUser(t, c, "a@example.com")
	b := newTestUser(t, c, "b@example.com")

	sa, err := c.GetOrCreateSource(ctx, a.ID, "Google", models.SourceEmail)
	require.NoError(t, err)
	sb, err := c.GetOrCreateSource(ctx, b.ID, "Google", models.SourceEmail)
	require.NoError(t, err)

	assert.NotEqual(t, sa.ID, sb.ID)
}

// --- Contacts ---

func TestContacts_CreateListSearch(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	u := newTestUser(t, c, "a@example.com")
	src, err := c.GetOrCreateSource(ctx, u.ID, "Manual", models.SourceManual)
	require.NoError(t, err)

	for _, ct := range []models.Contact{
		{FullName: "dan Engineer", Company: "TechCo", Role: "Senior Engineer"},
		{FullName: "Alice Coordinator", Company: "Acme Inc", Role: "Operations Lead", Notes: "On track", RelationshipStrength: intPtr(4)},
		{FullName: "Eve Advisor", Role: "Advisor"},
	} {
		ct.OwnerID = u.ID
		ct.SourceID = src.ID
		require.NoError(t, c.CreateContact(ctx, &ct))
	}

	all, err := c.ListContacts(ctx, u.ID, storage.ContactFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Alice Coordinator", all[0].FullName)
	assert.Equal(t, "dan Engineer", all[1].FullName)
	assert.Equal(t, "Manual", all[0].SourceName)
	require.NotNil(t, all[0].RelationshipStrength)
	assert.Equal(t, 4, *all[0].RelationshipStrength)
	assert.Equal(t, "On track", all[0].Notes)
	assert.Empty(t, all[2].Company)
	assert.Nil(t, all[2].RelationshipStrength)

	found, err := c.ListContacts(ctx, u.ID, storage.ContactFilter{Search: "ENGINEER"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "dan Engineer", found[0].FullName)

	found, err = c.ListContacts(ctx, u.ID, storage.ContactFilter{Search: "acme"})
	require.NoError(t, err)
	require.Len(t, found, 1)

	found, err = c.ListContacts(ctx, u.ID, storage.ContactFilter{Search: "%"})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestContacts_ScopedByOwner(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	a := newTestUser(t, c, "a@example.com")
	b := newTestUser(t, c, "b@example.com")
	src, err := c.GetOrCreateSource(ctx, a.ID, "Manual", models.SourceManual)
	require.NoError(t, err)

	require.NoError(t, c.CreateContact(ctx, &models.Contact{OwnerID: a.ID, SourceID: src.ID, FullName: "Only A"}))

	list, err := c.ListContacts(ctx, b.ID, storage.ContactFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDeleteContact_OtherOwnerNotFound(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	a := newTestUser(t, c, "a@example.com")
	b := newTestUser(t, c, "b@example.com")
	src, err := c.GetOrCreateSource(ctx, a.ID, "Manual", models.SourceManual)
	require.NoError(t, err)

	ct := &models.Contact{OwnerID: a.ID, SourceID: src.ID, FullName: "Kept"}
	require.NoError(t, c.CreateContact(ctx, ct))

	err = c.DeleteContact(ctx, b.ID, ct.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	list, err := c.ListContacts(ctx, a.ID, storage.ContactFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, c.DeleteContact(ctx, a.ID, ct.ID))
	err = c.DeleteContact(ctx, a.ID, ct.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPing(t *testing.T) {
	c := newTestClient(t)
	assert.NoError(t, c.Ping(context.Background()))
}
