package network

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/warmpath/backend/internal/contacts"
	"github.com/warmpath/backend/internal/metrics"
	"github.com/warmpath/backend/internal/storage"
	"github.com/warmpath/backend/internal/storage/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStore struct {
	contacts  []models.Contact
	listCalls int
	created   []*models.Contact
	deleteErr error
	listErr   error
}

func (f *fakeStore) GetOrCreateSource(_ context.Context, ownerID, name string, t models.SourceType) (*models.Source, error) {
	return &models.Source{ID: "src-" + name, OwnerID: ownerID, Name: name, Type: t}, nil
}

func (f *fakeStore) ListContacts(_ context.Context, ownerID string, filter storage.ContactFilter) ([]models.Contact, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Contact
	for _, c := range f.contacts {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateContact(_ context.Context, c *models.Contact) error {
	c.ID = "new"
	f.created = append(f.created, c)
	return nil
}

func (f *fakeStore) DeleteContact(context.Context, string, string) error {
	return f.deleteErr
}

type fakeCache struct {
	entries     map[string][]contacts.ScoredContact
	invalidated []string
	getErr      error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]contacts.ScoredContact{}}
}

func key(owner string, f contacts.Filters) string {
	return owner + "|" + f.Company + "|" + f.Role + "|" + f.Keyword
}

func (c *fakeCache) GetQuery(_ context.Context, owner string, f contacts.Filters) ([]contacts.ScoredContact, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.entries[key(owner, f)]
	return v, ok, nil
}

func (c *fakeCache) SetQuery(_ context.Context, owner string, f contacts.Filters, r []contacts.ScoredContact) error {
	c.entries[key(owner, f)] = r
	return nil
}

func (c *fakeCache) InvalidateOwner(_ context.Context, owner string) error {
	c.invalidated = append(c.invalidated, owner)
	for k := range c.entries {
		if len(k) > len(owner) && k[:len(owner)+1] == owner+"|" {
			delete(c.entries, k)
		}
	}
	return nil
}

func sampleStore() *fakeStore {
	rs := 4
	return &fakeStore{contacts: []models.Contact{
		{ID: "1", OwnerID: "u1", FullName: "Alice", Company: "Acme Inc", Role: "Operations Lead"},
		{ID: "2", OwnerID: "u1", FullName: "Bob", Company: "Globex", RelationshipStrength: &rs},
		{ID: "3", OwnerID: "u2", FullName: "Mallory", Company: "Acme Inc"},
	}}
}

func TestQuery_EmptyFiltersSkipStore(t *testing.T) {
	store := sampleStore()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	svc := NewService(store, WithMetrics(m))

	for _, f := range []contacts.Filters{{}, {Company: "  ", Role: "\t", Keyword: " "}} {
		_, err := svc.Query(context.Background(), "u1", f)
		assert.ErrorIs(t, err, ErrEmptyFilters)
	}
	assert.Zero(t, store.listCalls)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueryTotal.WithLabelValues("empty_filters")))
	assert.Equal(t, "Enter at least one filter (company, role, or keyword).", ErrEmptyFilters.Error())
}

func TestQuery_ScopedToOwner(t *testing.T) {
	svc := NewService(sampleStore())

	got, err := svc.Query(context.Background(), "u1", contacts.Filters{Company: " acme inc "})
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"1", "2"}, ids)
	assert.Equal(t, 3.0, got[0].Score)
}

func TestQuery_UsesCache(t *testing.T) {
	store := sampleStore()
	cache := newFakeCache()
	svc := NewService(store, WithCache(cache))
	ctx := context.Background()
	f := contacts.Filters{Role: "operations"}

	first, err := svc.Query(ctx, "u1", f)
	require.NoError(t, err)
	second, err := svc.Query(ctx, "u1", f)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.listCalls)

	_, err = svc.CreateContact(ctx, "u1", NewContact{FullName: "Carol", Role: "Operations"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, cache.invalidated)

	_, err = svc.Query(ctx, "u1", f)
	require.NoError(t, err)
	assert.Equal(t, 2, store.listCalls)
}

func TestQuery_CacheErrorFallsBackToStore(t *testing.T) {
	store := sampleStore()
	cache := newFakeCache()
	cache.getErr = errors.New("redis down")
	svc := NewService(store, WithCache(cache))

	got, err := svc.Query(context.Background(), "u1", contacts.Filters{Keyword: "alice"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, store.listCalls)
}

func TestQuery_StoreError(t *testing.T) {
	store := sampleStore()
	store.listErr = errors.New("db gone")

	_, err := NewService(store).Query(context.Background(), "u1", contacts.Filters{Keyword: "x"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptyFilters)
}

func TestCreateContact(t *testing.T) {
	store := sampleStore()
	svc := NewService(store)
	rs := 3

	c, err := svc.CreateContact(context.Background(), "u1", NewContact{
		FullName:             "  Eve Advisor ",
		Company:              "  Big   Corp ",
		RelationshipStrength: &rs,
	})
	require.NoError(t, err)
	assert.Equal(t, "Eve Advisor", c.FullName)
	assert.Equal(t, "Big Corp", c.Company)
	assert.Equal(t, "src-Manual", c.SourceID)
	assert.Equal(t, ManualSource, c.SourceName)

	_, err = svc.CreateContact(context.Background(), "u1", NewContact{FullName: "  "})
	assert.ErrorIs(t, err, ErrNameRequired)

	bad := 9
	_, err = svc.CreateContact(context.Background(), "u1", NewContact{FullName: "X", RelationshipStrength: &bad})
	assert.ErrorIs(t, err, ErrInvalidStrength)
	assert.Len(t, store.created, 1)
}

func TestDeleteContact(t *testing.T) {
	store := sampleStore()
	cache := newFakeCache()
	svc := NewService(store, WithCache(cache))

	require.NoError(t, svc.DeleteContact(context.Background(), "u1", "1"))
	assert.Equal(t, []string{"u1"}, cache.invalidated)

	store.deleteErr = storage.ErrNotFound
	err := svc.DeleteContact(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, ErrContactNotFound)
	assert.Equal(t, "Contact not found or you do not own it.", err.Error())
	assert.Len(t, cache.invalidated, 1)
}
