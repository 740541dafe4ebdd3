// Package network answers ranking queries over an owner's contacts and
// manages the contacts themselves.
package network

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/warmpath/backend/internal/contacts"
	"github.com/warmpath/backend/internal/metrics"
	"github.com/warmpath/backend/internal/storage"
	"github.com/warmpath/backend/internal/storage/models"
	"github.com/warmpath/backend/pkg/logger"
)

var (
	ErrEmptyFilters    = eris.New("Enter at least one filter (company, role, or keyword).")
	ErrNameRequired    = eris.New("Full name is required.")
	ErrInvalidStrength = eris.New("Relationship strength must be between 1 and 5.")
	ErrContactNotFound = eris.New("Contact not found or you do not own it.")
)

// ManualSource is the source manual contacts are recorded under.
const ManualSource = "Manual"

// Store is the persistence the service needs.
type Store interface {
	GetOrCreateSource(ctx context.Context, ownerID, name string, sourceType models.SourceType) (*models.Source, error)
	ListContacts(ctx context.Context, ownerID string, filter storage.ContactFilter) ([]models.Contact, error)
	CreateContact(ctx context.Context, contact *models.Contact) error
	DeleteContact(ctx context.Context, ownerID, contactID string) error
}

// Cache holds ranked results per owner. Errors are logged, never returned.
type Cache interface {
	GetQuery(ctx context.Context, ownerID string, filters contacts.Filters) ([]contacts.ScoredContact, bool, error)
	SetQuery(ctx context.Context, ownerID string, filters contacts.Filters, results []contacts.ScoredContact) error
	InvalidateOwner(ctx context.Context, ownerID string) error
}

type Service struct {
	store   Store
	cache   Cache
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query ranks the owner's contacts against filters. Empty filters fail with
// ErrEmptyFilters before the store is touched.
func (s *Service) Query(ctx context.Context, ownerID string, filters contacts.Filters) ([]contacts.ScoredContact, error) {
	start := time.Now()
	filters = filters.Trimmed()
	if filters.Empty() {
		s.metrics.ObserveQuery("empty_filters", time.Since(start).Seconds(), 0)
		return nil, ErrEmptyFilters
	}

	if s.cache != nil {
		cached, ok, err := s.cache.GetQuery(ctx, ownerID, filters)
		if err != nil {
			logger.Warn("Query cache lookup failed", zap.Error(err))
		}
		s.metrics.ObserveCache(ok)
		if ok {
			s.metrics.ObserveQuery("ok", time.Since(start).Seconds(), len(cached))
			return cached, nil
		}
	}

	list, err := s.store.ListContacts(ctx, ownerID, storage.ContactFilter{})
	if err != nil {
		s.metrics.ObserveQuery("error", time.Since(start).Seconds(), 0)
		return nil, eris.Wrap(err, "network: list contacts")
	}

	results := contacts.ScoreAndRank(list, filters)

	if s.cache != nil {
		if err := s.cache.SetQuery(ctx, ownerID, filters, results); err != nil {
			logger.Warn("Failed to cache query", zap.Error(err))
		}
	}

	s.metrics.ObserveQuery("ok", time.Since(start).Seconds(), len(results))
	logger.Debug("Query ranked",
		zap.String("owner_id", ownerID),
		zap.Int("candidates", len(list)),
		zap.Int("results", len(results)),
		zap.Duration("latency", time.Since(start)),
	)
	return results, nil
}

func (s *Service) ListContacts(ctx context.Context, ownerID, search string) ([]models.Contact, error) {
	list, err := s.store.ListContacts(ctx, ownerID, storage.ContactFilter{Search: search})
	if err != nil {
		return nil, eris.Wrap(err, "network: list contacts")
	}
	return list, nil
}

// NewContact is a contact entered by hand.
type NewContact struct {
	FullName             string `json:"full_name"`
	Email                string `json:"email"`
	Company              string `json:"company"`
	Role                 string `json:"role"`
	Notes                string `json:"notes"`
	RelationshipStrength *int   `json:"relationship_strength"`
}

func (s *Service) CreateContact(ctx context.Context, ownerID string, in NewContact) (*models.Contact, error) {
	name := strings.TrimSpace(in.FullName)
	if name == "" {
		return nil, ErrNameRequired
	}
	if rs := in.RelationshipStrength; rs != nil && (*rs < 1 || *rs > 5) {
		return nil, ErrInvalidStrength
	}

	source, err := s.store.GetOrCreateSource(ctx, ownerID, ManualSource, models.SourceManual)
	if err != nil {
		return nil, eris.Wrap(err, "network: manual source")
	}

	c := &models.Contact{
		OwnerID:              ownerID,
		SourceID:             source.ID,
		SourceName:           source.Name,
		FullName:             name,
		Email:                strings.TrimSpace(in.Email),
		Company:              contacts.NormalizeForStorage(in.Company),
		Role:                 strings.TrimSpace(in.Role),
		Notes:                strings.TrimSpace(in.Notes),
		RelationshipStrength: in.RelationshipStrength,
	}
	if err := s.store.CreateContact(ctx, c); err != nil {
		return nil, eris.Wrap(err, "network: create contact")
	}

	s.metrics.ObserveContactCreated()
	s.invalidate(ctx, ownerID)
	return c, nil
}

// DeleteContact removes a contact of ownerID. A missing id and a contact of
// another owner both yield ErrContactNotFound.
func (s *Service) DeleteContact(ctx context.Context, ownerID, contactID string) error {
	err := s.store.DeleteContact(ctx, ownerID, contactID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrContactNotFound
	}
	if err != nil {
		return eris.Wrap(err, "network: delete contact")
	}

	s.metrics.ObserveContactDeleted()
	s.invalidate(ctx, ownerID)
	return nil
}

func (s *Service) invalidate(ctx context.Context, ownerID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateOwner(ctx, ownerID); err != nil {
		logger.Warn("Failed to invalidate query cache", zap.String("owner_id", ownerID), zap.Error(err))
	}
}
