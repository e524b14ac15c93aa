package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/fadmann/chat/internal/models"
	"github.com/fadmann/chat/internal/realtime"
)

// ErrInvalidCredential is returned for every verification failure: missing,
// malformed, expired or revoked credentials and unknown or inactive users.
var ErrInvalidCredential = errors.New("auth: invalid credential")

// Verifier resolves an opaque credential to an identity. Implementations do
// not retry; a failed verification is final for that connection attempt.
type Verifier interface {
	Verify(ctx context.Context, credential string) (realtime.Identity, error)
}

// TokenVerifier validates access tokens and loads the identity from the users table.
type TokenVerifier struct {
	jwt *JWTService
	db  *gorm.DB
}

// NewTokenVerifier constructs a TokenVerifier.
func NewTokenVerifier(jwt *JWTService, db *gorm.DB) (*TokenVerifier, error) {
	if jwt == nil {
		return nil, errors.New("token verifier: jwt service is required")
	}
	if db == nil {
		return nil, errors.New("token verifier: db is required")
	}
	return &TokenVerifier{jwt: jwt, db: db}, nil
}

// Verify implements Verifier.
func (v *TokenVerifier) Verify(ctx context.Context, credential string) (realtime.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return realtime.Identity{}, fmt.Errorf("%w: missing token", ErrInvalidCredential)
	}

	claims, err := v.jwt.ValidateAccessToken(credential)
	if err != nil {
		return realtime.Identity{}, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}

	var user models.User
	err = v.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(claims.UserID)).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return realtime.Identity{}, fmt.Errorf("%w: user not found", ErrInvalidCredential)
		}
		return realtime.Identity{}, fmt.Errorf("%w: lookup user: %w", ErrInvalidCredential, err)
	}
	if !user.IsActive {
		return realtime.Identity{}, fmt.Errorf("%w: user inactive", ErrInvalidCredential)
	}

	identity := realtime.Identity{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
	}
	identity.DisplayName = identity.Name()
	return identity, nil
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, credential string) (realtime.Identity, error)

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, credential string) (realtime.Identity, error) {
	return f(ctx, credential)
}
