// internal/admin/sessions.go
package admin

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidSession     = errors.New("invalid session")
	ErrSessionExpired     = errors.New("session expired")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const (
	SessionTTL = 24 * time.Hour
	CookieName = "admin_session"
)

// Session is a verified admin session.
type Session struct {
	Username  string    `json:"username"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Credentials are the single configured admin identity.
// PasswordHash, when set, takes precedence over Password.
type Credentials struct {
	Username     string
	Password     string
	PasswordHash string
}

type sessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Sessions issues and verifies stateless HS256-signed admin sessions.
type Sessions struct {
	creds  Credentials
	secret []byte
	now    func() time.Time
}

// NewSessions creates a session service. An empty secret is replaced by a random
// per-process secret, so sessions do not survive a restart.
func NewSessions(creds Credentials, secret string) (*Sessions, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		slog.Warn("no session secret configured, using an ephemeral secret")
	}
	return &Sessions{creds: creds, secret: key, now: time.Now}, nil
}

// VerifyCredentials reports whether username and password match the configured admin.
// It is false whenever the configured username or password is missing.
func (s *Sessions) VerifyCredentials(username, password string) bool {
	if s.creds.Username == "" || (s.creds.Password == "" && s.creds.PasswordHash == "") {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.creds.Username)) == 1

	var passOK bool
	if s.creds.PasswordHash != "" {
		ok, err := VerifyPassword(password, s.creds.PasswordHash)
		if err != nil {
			slog.Error("admin password hash is unusable", "error", err)
		}
		passOK = ok
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(s.creds.Password)) == 1
	}
	return userOK && passOK
}

// CreateSession signs a 24 hour session for username.
func (s *Sessions) CreateSession(username string) (string, Session, error) {
	issued := s.now().UTC().Truncate(time.Second)
	sess := Session{
		Username:  username,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(SessionTTL),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(sess.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", Session{}, fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, sess, nil
}

// VerifySession checks signature, expiry and that the session belongs to the current admin.
func (s *Sessions) VerifySession(raw string) (Session, error) {
	if raw == "" {
		return Session{}, ErrInvalidSession
	}
	parsed, err := jwt.ParseWithClaims(raw, &sessionClaims{}, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Session{}, ErrSessionExpired
		}
		return Session{}, ErrInvalidSession
	}
	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid || claims.IssuedAt == nil {
		return Session{}, ErrInvalidSession
	}
	if s.creds.Username == "" || subtle.ConstantTimeCompare([]byte(claims.Username), []byte(s.creds.Username)) != 1 {
		return Session{}, ErrInvalidSession
	}
	return Session{
		Username:  claims.Username,
		IssuedAt:  claims.IssuedAt.Time.UTC(),
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}
