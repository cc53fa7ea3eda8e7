package driven

import (
	"context"
	"errors"

	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
)

// Sentinel errors returned by TokenStore implementations.
var (
	// ErrTokenNotFound indicates the requested provider token does not exist.
	ErrTokenNotFound = errors.New("token not found")

	// ErrEncryptionKeyNotSet is returned when DORAMETRICS_SECRET_KEY has not been configured.
	ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set DORAMETRICS_SECRET_KEY")
)

// TokenStore defines the driven port for encrypted provider token persistence.
// The adapter is responsible for encryption; this interface operates on
// plaintext values at the domain boundary.
type TokenStore interface {
	Set(ctx context.Context, token model.Token) error
	Get(ctx context.Context, id string) (*model.Token, error)
	Delete(ctx context.Context, id string) error
}
