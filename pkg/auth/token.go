package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// TokenPrefix identifies Canopy tokens
	TokenPrefix = "canopy_"
	// TokenLength is the total length of random bytes (32 bytes = 256 bits)
	TokenLength = 32
)

// ErrInvalidToken is returned when a token is malformed, unknown, revoked,
// or expired. Callers get a single error for all four cases so the response
// does not reveal which one applied.
var ErrInvalidToken = errors.New("invalid or expired token")

// TokenGenerator generates and validates API tokens
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken creates a new API token.
// Format: canopy_<base64url(32 random bytes)>
func (tg *TokenGenerator) GenerateToken() (token string, tokenHash string, tokenPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encodedToken := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullToken := TokenPrefix + encodedToken

	hash := sha256.Sum256([]byte(fullToken))
	hashStr := hex.EncodeToString(hash[:])

	// First 8 chars after the prefix identify the token in UIs and logs
	prefix := TokenPrefix
	if len(encodedToken) >= 8 {
		prefix = TokenPrefix + encodedToken[:8]
	}

	return fullToken, hashStr, prefix, nil
}

// HashToken computes the SHA256 hash of a token for lookup
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks if a token has the correct format
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) == 0 {
		return fmt.Errorf("token is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encodedPart); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}

	return nil
}

// TokenStore manages API token persistence and validation
type TokenStore struct {
	db        *sql.DB
	generator *TokenGenerator
}

// NewTokenStore creates a new token store
func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{
		db:        db,
		generator: NewTokenGenerator(),
	}
}

// CreateToken issues a new API token for a user. The plaintext token is
// returned exactly once; only the hash is stored.
func (s *TokenStore) CreateToken(ctx context.Context, userID, name string, expiresAt *time.Time) (*APIToken, string, error) {
	token, tokenHash, tokenPrefix, err := s.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	apiToken := &APIToken{
		UserID:      userID,
		TokenHash:   tokenHash,
		TokenPrefix: tokenPrefix,
		Name:        name,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now(),
	}

	query := `
		INSERT INTO api_tokens (user_id, token_hash, token_prefix, name, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query,
		apiToken.UserID, apiToken.TokenHash, apiToken.TokenPrefix,
		apiToken.Name, apiToken.ExpiresAt, apiToken.CreatedAt,
	).Scan(&apiToken.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to store token: %w", err)
	}

	return apiToken, token, nil
}

// ValidateToken resolves a bearer token to an Identity, or ErrInvalidToken.
func (s *TokenStore) ValidateToken(ctx context.Context, token string) (*Identity, error) {
	if err := s.generator.ValidateTokenFormat(token); err != nil {
		return nil, ErrInvalidToken
	}

	tokenHash := s.generator.HashToken(token)

	query := `
		SELECT t.user_id, u.username, t.expires_at, t.revoked_at
		FROM api_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = $1 AND u.is_active = TRUE
	`
	var identity Identity
	var expiresAt, revokedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&identity.UserID, &identity.Username, &expiresAt, &revokedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	if revokedAt.Valid {
		return nil, ErrInvalidToken
	}
	if expiresAt.Valid && time.Now().After(expiresAt.Time) {
		return nil, ErrInvalidToken
	}

	// Best-effort usage stamp; validation does not depend on it
	_, _ = s.db.ExecContext(ctx,
		`UPDATE api_tokens SET last_used_at = NOW() WHERE token_hash = $1`, tokenHash)

	return &identity, nil
}

// RevokeToken revokes a token by id
func (s *TokenStore) RevokeToken(ctx context.Context, tokenID int64, reason string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE api_tokens SET revoked_at = NOW(), revoke_reason = $1 WHERE id = $2 AND revoked_at IS NULL`,
		reason, tokenID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("token not found or already revoked")
	}

	return nil
}

// ListTokens returns all tokens for a user, newest first. Hashes are never
// included in the response type's JSON form.
func (s *TokenStore) ListTokens(ctx context.Context, userID string) ([]*APIToken, error) {
	query := `
		SELECT id, user_id, token_prefix, name, expires_at, last_used_at, created_at, revoked_at, COALESCE(revoke_reason, '')
		FROM api_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*APIToken
	for rows.Next() {
		var t APIToken
		var expiresAt, lastUsedAt, revokedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.UserID, &t.TokenPrefix, &t.Name,
			&expiresAt, &lastUsedAt, &t.CreatedAt, &revokedAt, &t.RevokeReason); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		if expiresAt.Valid {
			t.ExpiresAt = &expiresAt.Time
		}
		if lastUsedAt.Valid {
			t.LastUsedAt = &lastUsedAt.Time
		}
		if revokedAt.Valid {
			t.RevokedAt = &revokedAt.Time
		}
		tokens = append(tokens, &t)
	}
	return tokens, rows.Err()
}

// GetUser loads a user by id
func (s *TokenStore) GetUser(ctx context.Context, userID string) (*User, error) {
	query := `
		SELECT id, username, email, full_name, is_active, created_at, updated_at, last_login_at
		FROM users
		WHERE id = $1
	`
	var u User
	var lastLogin sql.NullTime
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&u.ID, &u.Username, &u.Email, &u.FullName, &u.IsActive,
		&u.CreatedAt, &u.UpdatedAt, &lastLogin,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user: not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	return &u, nil
}
