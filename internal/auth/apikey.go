package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// keyBytes is the entropy of a generated key. 32 bytes hex-encoded
// yields a 64-character key string.
const keyBytes = 32

// APIKey is the stored form of a key: metadata plus the digest. The raw
// key value never persists.
type APIKey struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	KeyHash   string     `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
}

// GenerateKey returns a fresh random key in its raw, presentable form.
func GenerateKey() (string, error) {
	buf := make([]byte, keyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashKey computes the SHA-256 digest stored in place of the raw key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// KeyRepository defines the interface for API key persistence.
type KeyRepository interface {
	// Create stores a key digest under a human-readable name.
	Create(ctx context.Context, key *APIKey) error

	// GetByHash retrieves a key by its digest.
	// Returns ErrKeyNotFound if no key matches.
	GetByHash(ctx context.Context, keyHash string) (*APIKey, error)

	// List retrieves all keys, newest first.
	List(ctx context.Context) ([]APIKey, error)

	// Delete revokes a key by id.
	// Returns ErrKeyNotFound if the key does not exist.
	Delete(ctx context.Context, id string) error

	// TouchLastUsed records a successful authentication.
	TouchLastUsed(ctx context.Context, id string, used time.Time) error
}

// SQLiteKeyRepository implements KeyRepository using SQLite.
type SQLiteKeyRepository struct {
	db *sql.DB
}

// NewSQLiteKeyRepository creates a new SQLite-backed key repository.
func NewSQLiteKeyRepository(db *sql.DB) *SQLiteKeyRepository {
	return &SQLiteKeyRepository{db: db}
}

// Create stores a key digest under a human-readable name.
func (r *SQLiteKeyRepository) Create(ctx context.Context, key *APIKey) error {
	if key.ID == "" {
		key.ID = "key-" + uuid.NewString()[:8]
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO api_keys (id, name, key_hash, created_at) VALUES (?, ?, ?, ?)",
		key.ID, key.Name, key.KeyHash, key.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("inserting api key: %w", err)
	}
	return nil
}

// GetByHash retrieves a key by its digest.
func (r *SQLiteKeyRepository) GetByHash(ctx context.Context, keyHash string) (*APIKey, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, name, key_hash, created_at, last_used FROM api_keys WHERE key_hash = ?",
		keyHash)

	key, err := scanKey(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("querying api key: %w", err)
	}
	return key, nil
}

// List retrieves all keys, newest first.
func (r *SQLiteKeyRepository) List(ctx context.Context) ([]APIKey, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, key_hash, created_at, last_used FROM api_keys ORDER BY created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("querying api keys: %w", err)
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning api key: %w", err)
		}
		keys = append(keys, *key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating api keys: %w", err)
	}
	return keys, nil
}

// Delete revokes a key by id.
func (r *SQLiteKeyRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM api_keys WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting api key: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if rows == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// TouchLastUsed records a successful authentication. Unknown ids are
// ignored so a race with revocation stays harmless.
func (r *SQLiteKeyRepository) TouchLastUsed(ctx context.Context, id string, used time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE api_keys SET last_used = ? WHERE id = ?", used.UTC().Unix(), id)
	if err != nil {
		return fmt.Errorf("touching api key: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner) (*APIKey, error) {
	var k APIKey
	var createdAt int64
	var lastUsed sql.NullInt64

	if err := row.Scan(&k.ID, &k.Name, &k.KeyHash, &createdAt, &lastUsed); err != nil {
		return nil, err
	}
	k.CreatedAt = time.Unix(createdAt, 0).UTC()
	if lastUsed.Valid {
		t := time.Unix(lastUsed.Int64, 0).UTC()
		k.LastUsed = &t
	}
	return &k, nil
}

// Verifier authenticates presented keys against the repository.
type Verifier struct {
	repo KeyRepository
}

// NewVerifier creates a verifier backed by the given repository.
func NewVerifier(repo KeyRepository) *Verifier {
	return &Verifier{repo: repo}
}

// Verify authenticates a raw key. On success the key's last-used
// timestamp is updated and its metadata returned.
// Returns ErrInvalidKey when the key matches nothing.
func (v *Verifier) Verify(ctx context.Context, raw string) (*APIKey, error) {
	if raw == "" {
		return nil, ErrInvalidKey
	}

	key, err := v.repo.GetByHash(ctx, HashKey(raw))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, err
	}

	if err := v.repo.TouchLastUsed(ctx, key.ID, time.Now()); err != nil {
		return nil, err
	}
	return key, nil
}
