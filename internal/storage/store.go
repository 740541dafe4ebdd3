// Package storage defines the persistence contract shared by the SQLite and
// Postgres backends. Every contact and source operation is scoped by owner.
package storage

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/warmpath/backend/internal/storage/models"
)

// ErrNotFound is returned when a row does not exist or is not visible to the
// requesting owner. Callers must not distinguish the two cases.
var ErrNotFound = eris.New("not found")

// ContactFilter narrows ListContacts. Search matches name, company or role,
// case-insensitively.
type ContactFilter struct {
	Search string
}

type Store interface {
	// Users and sessions
	UpsertUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, token string) (*models.Session, error)
	DeleteSession(ctx context.Context, token string) error
	CreateVerificationToken(ctx context.Context, token *models.VerificationToken) error
	ConsumeVerificationToken(ctx context.Context, tokenHash string) (*models.VerificationToken, error)

	// Sources
	GetOrCreateSource(ctx context.Context, ownerID, name string, sourceType models.SourceType) (*models.Source, error)

	// Contacts
	ListContacts(ctx context.Context, ownerID string, filter ContactFilter) ([]models.Contact, error)
	CreateContact(ctx context.Context, contact *models.Contact) error
	DeleteContact(ctx context.Context, ownerID, contactID string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// SourceDescription is the description recorded for a source created on first use.
func SourceDescription(name string) string {
	return "Imported via " + name + "."
}

// Expired reports whether t is in the past relative to now.
func Expired(t, now time.Time) bool {
	return !t.After(now)
}
