package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/jmoiron/sqlx"

	"studygroup-chat/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionRepository persists the signed-in identity between restarts.
type SessionRepository interface {
	Load(ctx context.Context) (models.Identity, error)
	Save(ctx context.Context, identity models.Identity) error
	Clear(ctx context.Context) error
}

// SessionRepo is a sqlx implementation of SessionRepository. The table
// holds at most one row.
type SessionRepo struct {
	db *sqlx.DB
}

// NewSessionRepo constructs a SessionRepo.
func NewSessionRepo(db *sqlx.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Load returns the stored identity.
func (r *SessionRepo) Load(ctx context.Context) (models.Identity, error) {
	var identity models.Identity
	err := r.db.GetContext(ctx, &identity, `SELECT token, user_id, user_name, email FROM client_session WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Identity{}, ErrSessionNotFound
	}
	return identity, err
}

// Save replaces the stored identity.
func (r *SessionRepo) Save(ctx context.Context, identity models.Identity) error {
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO client_session (id, token, user_id, user_name, email, updated_at)
        VALUES (1, :token, :user_id, :user_name, :email, NOW())
        ON CONFLICT (id) DO UPDATE SET token = EXCLUDED.token, user_id = EXCLUDED.user_id,
            user_name = EXCLUDED.user_name, email = EXCLUDED.email, updated_at = NOW()`, identity)
	return err
}

// Clear forgets the stored identity.
func (r *SessionRepo) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM client_session WHERE id = 1`)
	return err
}

// MemorySessionRepo keeps the identity in process memory.
type MemorySessionRepo struct {
	mu       sync.RWMutex
	identity *models.Identity
}

func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{}
}

func (r *MemorySessionRepo) Load(context.Context) (models.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.identity == nil {
		return models.Identity{}, ErrSessionNotFound
	}
	return *r.identity, nil
}

func (r *MemorySessionRepo) Save(_ context.Context, identity models.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identity = &identity
	return nil
}

func (r *MemorySessionRepo) Clear(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identity = nil
	return nil
}
