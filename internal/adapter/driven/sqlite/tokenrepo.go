package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
	"github.com/parthraninga/DORA-Metrics/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TokenStore = (*TokenRepo)(nil)

// TokenRepo is the SQLite implementation of the TokenStore port interface.
// Token values are encrypted with AES-256-GCM before write and decrypted after read.
type TokenRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil when encryption is disabled.
}

// NewTokenRepo creates a new TokenRepo. key must be 32 bytes for AES-256-GCM,
// or nil to disable token storage (Set and Get return ErrEncryptionKeyNotSet).
func NewTokenRepo(db *DB, key []byte) *TokenRepo {
	return &TokenRepo{db: db, key: key}
}

// Set stores or replaces a provider token.
func (r *TokenRepo) Set(ctx context.Context, token model.Token) error {
	encrypted, err := r.encrypt(token.Value)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO tokens (id, provider, value, email, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			provider = excluded.provider,
			value = excluded.value,
			email = excluded.email,
			updated_at = excluded.updated_at
	`
	_, err = r.db.Writer.ExecContext(ctx, query,
		token.ID, string(token.Provider), encrypted, token.Email, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("set token %q: %w", token.ID, err)
	}
	return nil
}

// Get retrieves and decrypts a provider token.
func (r *TokenRepo) Get(ctx context.Context, id string) (*model.Token, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	const query = `SELECT id, provider, value, email, updated_at FROM tokens WHERE id = ?`

	var token model.Token
	var provider, encrypted, updatedAt string
	err := r.db.Reader.QueryRowContext(ctx, query, id).Scan(&token.ID, &provider, &encrypted, &token.Email, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get token %q: %w", id, driven.ErrTokenNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get token %q: %w", id, err)
	}

	token.Provider = model.Provider(provider)

	token.Value, err = r.decrypt(encrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt token %q: %w", id, err)
	}

	token.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at for token %q: %w", id, err)
	}

	return &token, nil
}

// Delete removes a provider token.
func (r *TokenRepo) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM tokens WHERE id = ?`
	_, err := r.db.Writer.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete token %q: %w", id, err)
	}
	return nil
}

// encrypt encrypts plaintext using AES-256-GCM and returns a base64-encoded string
// containing the nonce (12 bytes) prepended to the ciphertext.
func (r *TokenRepo) encrypt(plaintext string) (string, error) {
	if r.key == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}

	gcm, err := r.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a base64-encoded AES-256-GCM ciphertext.
func (r *TokenRepo) decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	gcm, err := r.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}

	return string(plaintext), nil
}

func (r *TokenRepo) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(r.key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}
