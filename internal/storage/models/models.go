package models

import "time"

type SourceType string

const (
	SourceManual SourceType = "MANUAL"
	SourceImport SourceType = "IMPORT"
	SourceEmail  SourceType = "EMAIL"
	SourceSocial SourceType = "SOCIAL"
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// VerificationToken is a pending magic-link sign-in. Only the token hash is stored.
type VerificationToken struct {
	TokenHash string
	Email     string
	ExpiresAt time.Time
}

type Source struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Type        SourceType `json:"type"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Contact is a personal contact. Empty strings stand for absent values and are
// stored as NULL.
type Contact struct {
	ID                   string    `json:"id"`
	OwnerID              string    `json:"-"`
	SourceID             string    `json:"source_id"`
	SourceName           string    `json:"source_name,omitempty"`
	FullName             string    `json:"full_name"`
	Email                string    `json:"email,omitempty"`
	Company              string    `json:"company,omitempty"`
	Role                 string    `json:"role,omitempty"`
	Notes                string    `json:"notes,omitempty"`
	RelationshipStrength *int      `json:"relationship_strength,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}
