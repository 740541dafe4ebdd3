package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/warmpath/backend/internal/storage"
	"github.com/warmpath/backend/internal/storage/models"
	"github.com/warmpath/backend/pkg/logger"
)

type Client struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.Store = (*Client)(nil)

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open database")
	}
	// One writer at a time; pragmas in the DSN apply to every connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: ping")
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db, now: time.Now}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return eris.Wrap(c.db.PingContext(ctx), "sqlite: ping")
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT UNIQUE NOT NULL,
	name TEXT,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	token TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);

CREATE TABLE IF NOT EXISTS verification_tokens (
	token_hash TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS network_sources (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	type TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT,
	created_at INTEGER NOT NULL,
	UNIQUE (owner_id, name),
	FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS contacts (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	source_id TEXT NOT NULL,
	full_name TEXT NOT NULL,
	email TEXT,
	company TEXT,
	role TEXT,
	notes TEXT,
	relationship_strength INTEGER,
	created_at INTEGER NOT NULL,
	FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE CASCADE,
	FOREIGN KEY (source_id) REFERENCES network_sources(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_contacts_owner ON contacts(owner_id);
CREATE INDEX IF NOT EXISTS idx_contacts_owner_name ON contacts(owner_id, full_name);
`

func (c *Client) Migrate(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) UpsertUserByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO users (id, email, created_at) VALUES (?, ?, ?) ON CONFLICT(email) DO NOTHING`,
		uuid.New().String(), email, c.now().Unix(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert user")
	}

	return c.scanUser(c.db.QueryRowContext(ctx,
		`SELECT id, email, name, created_at FROM users WHERE email = ?`, email))
}

func (c *Client) GetUser(ctx context.Context, id string) (*models.User, error) {
	return c.scanUser(c.db.QueryRowContext(ctx,
		`SELECT id, email, name, created_at FROM users WHERE id = ?`, id))
}

func (c *Client) scanUser(row *sql.Row) (*models.User, error) {
	var (
		u         models.User
		name      sql.NullString
		createdAt int64
	)
	if err := row.Scan(&u.ID, &u.Email, &name, &createdAt); err != nil {
		return nil, notFound(err, "sqlite: get user")
	}
	u.Name = name.String
	u.CreatedAt = time.Unix(createdAt, 0)
	return &u, nil
}

func (c *Client) CreateSession(ctx context.Context, session *models.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = c.now()
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		session.Token, session.UserID, session.ExpiresAt.Unix(), session.CreatedAt.Unix(),
	)
	return eris.Wrap(err, "sqlite: insert session")
}

func (c *Client) GetSession(ctx context.Context, token string) (*models.Session, error) {
	var (
		s                    models.Session
		expiresAt, createdAt int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT token, user_id, expires_at, created_at FROM sessions WHERE token = ?`, token,
	).Scan(&s.Token, &s.UserID, &expiresAt, &createdAt)
	if err != nil {
		return nil, notFound(err, "sqlite: get session")
	}
	s.ExpiresAt = time.Unix(expiresAt, 0)
	s.CreatedAt = time.Unix(createdAt, 0)

	if storage.Expired(s.ExpiresAt, c.now()) {
		if err := c.DeleteSession(ctx, token); err != nil {
			logger.Warn("Failed to delete expired session", zap.Error(err))
		}
		return nil, eris.Wrap(storage.ErrNotFound, "sqlite: session expired")
	}
	return &s, nil
}

func (c *Client) DeleteSession(ctx context.Context, token string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	return eris.Wrap(err, "sqlite: delete session")
}

func (c *Client) CreateVerificationToken(ctx context.Context, token *models.VerificationToken) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO verification_tokens (token_hash, email, expires_at) VALUES (?, ?, ?)`,
		token.TokenHash, token.Email, token.ExpiresAt.Unix(),
	)
	return eris.Wrap(err, "sqlite: insert verification token")
}

func (c *Client) ConsumeVerificationToken(ctx context.Context, tokenHash string) (*models.VerificationToken, error) {
	var (
		t         models.VerificationToken
		expiresAt int64
	)
	err := c.db.QueryRowContext(ctx,
		`DELETE FROM verification_tokens WHERE token_hash = ? RETURNING token_hash, email, expires_at`, tokenHash,
	).Scan(&t.TokenHash, &t.Email, &expiresAt)
	if err != nil {
		return nil, notFound(err, "sqlite: consume verification token")
	}
	t.ExpiresAt = time.Unix(expiresAt, 0)

	if storage.Expired(t.ExpiresAt, c.now()) {
		return nil, eris.Wrap(storage.ErrNotFound, "sqlite: verification token expired")
	}
	return &t, nil
}

func (c *Client) GetOrCreateSource(ctx context.Context, ownerID, name string, sourceType models.SourceType) (*models.Source, error) {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO network_sources (id, owner_id, type, name, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, name) DO NOTHING`,
		uuid.New().String(), ownerID, string(sourceType), name, storage.SourceDescription(name), c.now().Unix(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert source %s", name)
	}

	var (
		s           models.Source
		sType       string
		description sql.NullString
		createdAt   int64
	)
	err = c.db.QueryRowContext(ctx,
		`SELECT id, owner_id, type, name, description, created_at FROM network_sources WHERE owner_id = ? AND name = ?`,
		ownerID, name,
	).Scan(&s.ID, &s.OwnerID, &sType, &s.Name, &description, &createdAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get source %s", name)
	}
	s.Type = models.SourceType(sType)
	s.Description = description.String
	s.CreatedAt = time.Unix(createdAt, 0)

	logger.Debug("Source resolved", zap.String("owner_id", ownerID), zap.String("source", name), zap.String("source_id", s.ID))
	return &s, nil
}

func (c *Client) ListContacts(ctx context.Context, ownerID string, filter storage.ContactFilter) ([]models.Contact, error) {
	query := `
		SELECT c.id, c.owner_id, c.source_id, s.name, c.full_name, c.email, c.company, c.role,
			c.notes, c.relationship_strength, c.created_at
		FROM contacts c
		JOIN network_sources s ON s.id = c.source_id
		WHERE c.owner_id = ?`
	args := []any{ownerID}

	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		query += ` AND (lower(c.full_name) LIKE ? ESCAPE '\' OR lower(c.company) LIKE ? ESCAPE '\' OR lower(c.role) LIKE ? ESCAPE '\')`
		args = append(args, pattern, pattern, pattern)
	}
	query += ` ORDER BY c.full_name COLLATE NOCASE, c.created_at`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list contacts")
	}
	defer rows.Close()

	var list []models.Contact
	for rows.Next() {
		var (
			ct                          models.Contact
			email, company, role, notes sql.NullString
			strength                    sql.NullInt64
			createdAt                   int64
		)
		err := rows.Scan(&ct.ID, &ct.OwnerID, &ct.SourceID, &ct.SourceName, &ct.FullName,
			&email, &company, &role, &notes, &strength, &createdAt)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contact")
		}
		ct.Email = email.String
		ct.Company = company.String
		ct.Role = role.String
		ct.Notes = notes.String
		if strength.Valid {
			v := int(strength.Int64)
			ct.RelationshipStrength = &v
		}
		ct.CreatedAt = time.Unix(createdAt, 0)
		list = append(list, ct)
	}

	return list, eris.Wrap(rows.Err(), "sqlite: iterate contacts")
}

func (c *Client) CreateContact(ctx context.Context, contact *models.Contact) error {
	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = c.now()
	}

	var strength any
	if contact.RelationshipStrength != nil {
		strength = *contact.RelationshipStrength
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO contacts (id, owner_id, source_id, full_name, email, company, role, notes,
			relationship_strength, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		contact.ID, contact.OwnerID, contact.SourceID, contact.FullName,
		nullString(contact.Email), nullString(contact.Company), nullString(contact.Role), nullString(contact.Notes),
		strength, contact.CreatedAt.Unix(),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert contact")
	}

	logger.Debug("Contact inserted", zap.String("contact_id", contact.ID), zap.String("owner_id", contact.OwnerID))
	return nil
}

func (c *Client) DeleteContact(ctx context.Context, ownerID, contactID string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = ? AND owner_id = ?`, contactID, ownerID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete contact %s", contactID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(storage.ErrNotFound, "sqlite: delete contact %s", contactID)
	}
	return nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
}

func notFound(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrap(storage.ErrNotFound, msg)
	}
	return eris.Wrap(err, msg)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
