// Package postgres implements storage.Store on a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/warmpath/backend/internal/storage"
	"github.com/warmpath/backend/internal/storage/models"
	"github.com/warmpath/backend/pkg/logger"
)

// Pool is the subset of pgxpool.Pool the store needs. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PoolConfig holds optional connection pool sizing.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

type Store struct {
	pool Pool
	now  func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New connects a pool to connString and verifies it with a ping.
func New(ctx context.Context, connString string, poolCfg PoolConfig) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	cfg.MaxConns = 10
	cfg.MinConns = 2
	if poolCfg.MaxConns > 0 {
		cfg.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		cfg.MinConns = poolCfg.MinConns
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	logger.Info("Postgres pool initialized", zap.Int32("max_conns", cfg.MaxConns))
	return NewWithPool(pool), nil
}

// NewWithPool wraps an existing pool.
func NewWithPool(pool Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

const migration = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL UNIQUE,
	name       TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sessions (
	token      TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);

CREATE TABLE IF NOT EXISTS verification_tokens (
	token_hash TEXT PRIMARY KEY,
	email      TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS network_sources (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	type        TEXT NOT NULL,
	name        TEXT NOT NULL,
	description TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (owner_id, name)
);

CREATE TABLE IF NOT EXISTS contacts (
	id                    TEXT PRIMARY KEY,
	owner_id              TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	source_id             TEXT NOT NULL REFERENCES network_sources(id) ON DELETE CASCADE,
	full_name             TEXT NOT NULL,
	email                 TEXT,
	company               TEXT,
	role                  TEXT,
	notes                 TEXT,
	relationship_strength INTEGER,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_contacts_owner ON contacts(owner_id);
CREATE INDEX IF NOT EXISTS idx_contacts_owner_name ON contacts(owner_id, full_name);
`

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migration)
	if err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	logger.Info("Postgres schema initialized")
	return nil
}

func (s *Store) UpsertUserByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, created_at) VALUES ($1, $2, $3) ON CONFLICT (email) DO NOTHING`,
		uuid.New().String(), email, s.now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert user")
	}
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT id, email, name, created_at FROM users WHERE email = $1`, email))
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT id, email, name, created_at FROM users WHERE id = $1`, id))
}

func scanUser(row pgx.Row) (*models.User, error) {
	var (
		u    models.User
		name *string
	)
	if err := row.Scan(&u.ID, &u.Email, &name, &u.CreatedAt); err != nil {
		return nil, notFound(err, "postgres: get user")
	}
	u.Name = deref(name)
	return &u, nil
}

func (s *Store) CreateSession(ctx context.Context, session *models.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = s.now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (token, user_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`,
		session.Token, session.UserID, session.ExpiresAt, session.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert session")
}

func (s *Store) GetSession(ctx context.Context, token string) (*models.Session, error) {
	var sess models.Session
	err := s.pool.QueryRow(ctx,
		`SELECT token, user_id, expires_at, created_at FROM sessions WHERE token = $1`, token,
	).Scan(&sess.Token, &sess.UserID, &sess.ExpiresAt, &sess.CreatedAt)
	if err != nil {
		return nil, notFound(err, "postgres: get session")
	}
	if storage.Expired(sess.ExpiresAt, s.now()) {
		if err := s.DeleteSession(ctx, token); err != nil {
			logger.Warn("Failed to delete expired session", zap.Error(err))
		}
		return nil, eris.Wrap(storage.ErrNotFound, "postgres: session expired")
	}
	return &sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return eris.Wrap(err, "postgres: delete session")
}

func (s *Store) CreateVerificationToken(ctx context.Context, token *models.VerificationToken) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO verification_tokens (token_hash, email, expires_at) VALUES ($1, $2, $3)`,
		token.TokenHash, token.Email, token.ExpiresAt,
	)
	return eris.Wrap(err, "postgres: insert verification token")
}

func (s *Store) ConsumeVerificationToken(ctx context.Context, tokenHash string) (*models.VerificationToken, error) {
	var t models.VerificationToken
	err := s.pool.QueryRow(ctx,
		`DELETE FROM verification_tokens WHERE token_hash = $1 RETURNING token_hash, email, expires_at`, tokenHash,
	).Scan(&t.TokenHash, &t.Email, &t.ExpiresAt)
	if err != nil {
		return nil, notFound(err, "postgres: consume verification token")
	}
	if storage.Expired(t.ExpiresAt, s.now()) {
		return nil, eris.Wrap(storage.ErrNotFound, "postgres: verification token expired")
	}
	return &t, nil
}

func (s *Store) GetOrCreateSource(ctx context.Context, ownerID, name string, sourceType models.SourceType) (*models.Source, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO network_sources (id, owner_id, type, name, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner_id, name) DO NOTHING`,
		uuid.New().String(), ownerID, string(sourceType), name, storage.SourceDescription(name), s.now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert source %s", name)
	}

	var (
		src         models.Source
		sType       string
		description *string
	)
	err = s.pool.QueryRow(ctx,
		`SELECT id, owner_id, type, name, description, created_at FROM network_sources WHERE owner_id = $1 AND name = $2`,
		ownerID, name,
	).Scan(&src.ID, &src.OwnerID, &sType, &src.Name, &description, &src.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get source %s", name)
	}
	src.Type = models.SourceType(sType)
	src.Description = deref(description)
	return &src, nil
}

func (s *Store) ListContacts(ctx context.Context, ownerID string, filter storage.ContactFilter) ([]models.Contact, error) {
	query := `
		SELECT c.id, c.owner_id, c.source_id, s.name, c.full_name, c.email, c.company, c.role,
			c.notes, c.relationship_strength, c.created_at
		FROM contacts c
		JOIN network_sources s ON s.id = c.source_id
		WHERE c.owner_id = $1`
	args := []any{ownerID}

	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		query += ` AND (c.full_name ILIKE $2 OR c.company ILIKE $2 OR c.role ILIKE $2)`
	}
	query += ` ORDER BY c.full_name ASC, c.created_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list contacts")
	}
	defer rows.Close()

	var list []models.Contact
	for rows.Next() {
		var (
			c                           models.Contact
			email, company, role, notes *string
			strength                    *int32
		)
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.SourceID, &c.SourceName, &c.FullName,
			&email, &company, &role, &notes, &strength, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan contact")
		}
		c.Email = deref(email)
		c.Company = deref(company)
		c.Role = deref(role)
		c.Notes = deref(notes)
		if strength != nil {
			v := int(*strength)
			c.RelationshipStrength = &v
		}
		list = append(list, c)
	}
	return list, eris.Wrap(rows.Err(), "postgres: iterate contacts")
}

func (s *Store) CreateContact(ctx context.Context, contact *models.Contact) error {
	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = s.now().UTC()
	}

	var strength *int32
	if contact.RelationshipStrength != nil {
		v := int32(*contact.RelationshipStrength)
		strength = &v
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO contacts (id, owner_id, source_id, full_name, email, company, role, notes,
			relationship_strength, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		contact.ID, contact.OwnerID, contact.SourceID, contact.FullName,
		nullable(contact.Email), nullable(contact.Company), nullable(contact.Role), nullable(contact.Notes),
		strength, contact.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert contact")
}

func (s *Store) DeleteContact(ctx context.Context, ownerID, contactID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM contacts WHERE id = $1 AND owner_id = $2`, contactID, ownerID)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete contact %s", contactID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(storage.ErrNotFound, "postgres: delete contact %s", contactID)
	}
	return nil
}

func notFound(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrap(storage.ErrNotFound, msg)
	}
	return eris.Wrap(err, msg)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
