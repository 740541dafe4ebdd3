package importer

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warmpath/backend/internal/storage"
	"github.com/warmpath/backend/internal/storage/models"
	"github.com/warmpath/backend/internal/storage/sqlite"
)

func newStore(t *testing.T) (*sqlite.Client, string) {
	t.Helper()
	c, err := sqlite.NewClient(filepath.Join(t.TempDir(), "import.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() }) //nolint:errcheck
	require.NoError(t, c.Migrate(context.Background()))

	u, err := c.UpsertUserByEmail(context.Background(), "owner@example.com")
	require.NoError(t, err)
	return c, u.ID
}

type countingInvalidator struct {
	owners []string
}

func (c *countingInvalidator) InvalidateOwner(_ context.Context, ownerID string) error {
	c.owners = append(c.owners, ownerID)
	return nil
}

const sampleCSV = "name,company,role\n" +
	"Alice Coordinator,Acme Inc,Operations Lead\n" +
	"Bob Connector,Startup Hub,Community Manager\n" +
	"  alice   coordinator ,ACME   inc,Duplicate Row\n" +
	"Missing Role,Acme Inc,\n"

func TestImport_CSVTwice(t *testing.T) {
	store, owner := newStore(t)
	inv := &countingInvalidator{}
	im := New(store, WithInvalidator(inv))
	ctx := context.Background()

	rows, err := ParseCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	first, err := im.Import(ctx, owner, OriginCSV, rows)
	require.NoError(t, err)
	assert.Equal(t, Result{Added: 2, Skipped: 1}, first)

	second, err := im.Import(ctx, owner, OriginCSV, rows)
	require.NoError(t, err)
	assert.Equal(t, Result{Added: 0, Skipped: 3}, second)

	assert.Equal(t, []string{owner}, inv.owners, "only the import that added rows invalidates")

	list, err := store.ListContacts(ctx, owner, storage.ContactFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Acme Inc", list[0].Company)
	assert.Equal(t, "CSV Import", list[0].SourceName)
}

func TestImport_StoresNormalizedCompany(t *testing.T) {
	store, owner := newStore(t)
	im := New(store)
	ctx := context.Background()

	_, err := im.Import(ctx, owner, OriginCSV, []Row{{Name: " Jane ", Company: "  Big   Corp  ", Role: " CTO "}})
	require.NoError(t, err)

	list, err := store.ListContacts(ctx, owner, storage.ContactFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Jane", list[0].FullName)
	assert.Equal(t, "Big Corp", list[0].Company)
	assert.Equal(t, "CTO", list[0].Role)
}

func TestImport_GoogleRowsNeedOnlyName(t *testing.T) {
	store, owner := newStore(t)
	im := New(store)
	ctx := context.Background()

	res, err := im.Import(ctx, owner, OriginGoogle, []Row{
		{Name: "Dan Engineer", Email: "dan@example.com"},
		{Name: "   "},
		{Name: "Dan Engineer"},
	})
	require.NoError(t, err)
	assert.Equal(t, Result{Added: 1, Skipped: 1}, res)

	list, err := store.ListContacts(ctx, owner, storage.ContactFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "dan@example.com", list[0].Email)
	assert.Empty(t, list[0].Company)
	assert.Equal(t, "Google", list[0].SourceName)
}

func TestImport_DedupesAgainstOtherSources(t *testing.T) {
	store, owner := newStore(t)
	ctx := context.Background()

	manual, err := store.GetOrCreateSource(ctx, owner, "Manual", models.SourceManual)
	require.NoError(t, err)
	require.NoError(t, store.CreateContact(ctx, &models.Contact{
		OwnerID: owner, SourceID: manual.ID, FullName: "Alice Coordinator", Company: "Acme Inc",
	}))

	res, err := New(store).Import(ctx, owner, OriginGoogle, []Row{{Name: "ALICE coordinator", Company: "acme inc"}})
	require.NoError(t, err)
	assert.Equal(t, Result{Added: 0, Skipped: 1}, res)
}

func TestImport_NoValidRows(t *testing.T) {
	store, owner := newStore(t)

	_, err := New(store).Import(context.Background(), owner, OriginCSV, nil)
	assert.ErrorIs(t, err, ErrNoValidRows)
	assert.Equal(t, "No valid rows (need name, company, role).", ErrNoValidRows.Error())
}

type failingStore struct {
	Store
	createErr error
	created   int
	failAfter int
}

func (f *failingStore) CreateContact(ctx context.Context, c *models.Contact) error {
	if f.created >= f.failAfter {
		return f.createErr
	}
	f.created++
	return f.Store.CreateContact(ctx, c)
}

func TestImport_WriteFailureReturnsPartialCounts(t *testing.T) {
	store, owner := newStore(t)
	boom := errors.New("disk full")
	fs := &failingStore{Store: store, createErr: boom, failAfter: 1}

	res, err := New(fs).Import(context.Background(), owner, OriginCSV, []Row{
		{Name: "A", Company: "X", Role: "R"},
		{Name: "B", Company: "X", Role: "R"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Result{Added: 1}, res)
}

func TestImport_Cancelled(t *testing.T) {
	store, owner := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(store).Import(ctx, owner, OriginCSV, []Row{{Name: "A", Company: "X", Role: "R"}})
	assert.ErrorIs(t, err, context.Canceled)
}
