// Package importer turns extracted contact rows into stored contacts for one
// owner, skipping any row whose dedupe key is already present.
package importer

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/warmpath/backend/internal/contacts"
	"github.com/warmpath/backend/internal/metrics"
	"github.com/warmpath/backend/internal/storage"
	"github.com/warmpath/backend/internal/storage/models"
	"github.com/warmpath/backend/pkg/logger"
)

// ErrNoValidRows is returned when no row survives extraction.
var ErrNoValidRows = eris.New("No valid rows (need name, company, role).")

// Row is one extracted contact before persistence.
type Row struct {
	Name    string
	Company string
	Role    string
	Email   string
}

// Origin names the source an import is recorded under.
type Origin struct {
	Name  string
	Type  models.SourceType
	Label string
}

var (
	OriginCSV    = Origin{Name: "CSV Import", Type: models.SourceImport, Label: "csv"}
	OriginGoogle = Origin{Name: "Google", Type: models.SourceEmail, Label: "google"}
)

type Result struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// Store is the persistence the importer needs.
type Store interface {
	GetOrCreateSource(ctx context.Context, ownerID, name string, sourceType models.SourceType) (*models.Source, error)
	ListContacts(ctx context.Context, ownerID string, filter storage.ContactFilter) ([]models.Contact, error)
	CreateContact(ctx context.Context, contact *models.Contact) error
}

// Invalidator drops cached query results for an owner.
type Invalidator interface {
	InvalidateOwner(ctx context.Context, ownerID string) error
}

type Importer struct {
	store       Store
	metrics     *metrics.Metrics
	invalidator Invalidator
}

type Option func(*Importer)

func WithMetrics(m *metrics.Metrics) Option {
	return func(im *Importer) { im.metrics = m }
}

func WithInvalidator(inv Invalidator) Option {
	return func(im *Importer) { im.invalidator = inv }
}

func New(store Store, opts ...Option) *Importer {
	im := &Importer{store: store}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Import persists rows for ownerID under origin. Rows without a name are
// ignored; if none remain ErrNoValidRows is returned. Rows are written one at
// a time, so a failed write returns the counts reached so far with the error.
func (im *Importer) Import(ctx context.Context, ownerID string, origin Origin, rows []Row) (Result, error) {
	var res Result

	candidates := make([]Row, 0, len(rows))
	for _, r := range rows {
		if strings.TrimSpace(r.Name) != "" {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return res, ErrNoValidRows
	}

	source, err := im.store.GetOrCreateSource(ctx, ownerID, origin.Name, origin.Type)
	if err != nil {
		return res, eris.Wrapf(err, "importer: source %s", origin.Name)
	}

	existing, err := im.store.ListContacts(ctx, ownerID, storage.ContactFilter{})
	if err != nil {
		return res, eris.Wrap(err, "importer: list existing contacts")
	}
	seen := make(map[string]struct{}, len(existing)+len(candidates))
	for _, c := range existing {
		seen[contacts.DedupeKey(c.FullName, c.Company)] = struct{}{}
	}

	defer im.finish(ctx, ownerID, origin, &res)

	for _, r := range candidates {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "importer: cancelled")
		}

		key := contacts.DedupeKey(r.Name, r.Company)
		if _, dup := seen[key]; dup {
			res.Skipped++
			continue
		}

		contact := &models.Contact{
			OwnerID:  ownerID,
			SourceID: source.ID,
			FullName: strings.TrimSpace(r.Name),
			Company:  contacts.NormalizeForStorage(r.Company),
			Role:     strings.TrimSpace(r.Role),
			Email:    strings.TrimSpace(r.Email),
		}
		if err := im.store.CreateContact(ctx, contact); err != nil {
			return res, eris.Wrapf(err, "importer: create contact after %d added", res.Added)
		}
		seen[key] = struct{}{}
		res.Added++
	}

	return res, nil
}

func (im *Importer) finish(ctx context.Context, ownerID string, origin Origin, res *Result) {
	im.metrics.ObserveImport(origin.Label, res.Added, res.Skipped)

	logger.Info("Contacts imported",
		zap.String("owner_id", ownerID),
		zap.String("origin", origin.Label),
		zap.Int("added", res.Added),
		zap.Int("skipped", res.Skipped),
	)

	if res.Added == 0 || im.invalidator == nil {
		return
	}
	if err := im.invalidator.InvalidateOwner(context.WithoutCancel(ctx), ownerID); err != nil {
		logger.Warn("Failed to invalidate query cache", zap.String("owner_id", ownerID), zap.Error(err))
	}
}
