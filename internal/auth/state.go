package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"
)

// StateTTL bounds how long a Google consent round trip may take.
const StateTTL = 10 * time.Minute

// ErrInvalidState covers every way an OAuth state can fail verification.
var ErrInvalidState = eris.New("invalid oauth state")

type stateClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// StateSigner binds an OAuth round trip to the user who started it.
type StateSigner struct {
	secret []byte
	now    func() time.Time
}

func NewStateSigner(secret string) *StateSigner {
	return &StateSigner{secret: []byte(secret), now: time.Now}
}

// Sign returns an HS256 token carrying userID.
func (s *StateSigner) Sign(userID string) (string, error) {
	now := s.now()
	claims := stateClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(StateTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", eris.Wrap(err, "auth: sign state")
	}
	return signed, nil
}

// Verify checks the signature and expiry of state and that it was issued to
// currentUserID.
func (s *StateSigner) Verify(state, currentUserID string) error {
	var claims stateClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return eris.Wrapf(ErrInvalidState, "parse: %v", err)
	}
	if claims.UserID == "" {
		return eris.Wrap(ErrInvalidState, "missing uid")
	}
	if claims.UserID != currentUserID {
		return eris.Wrap(ErrInvalidState, "user mismatch")
	}
	return nil
}
