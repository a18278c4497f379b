package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"

	"github.com/jmoiron/sqlx"

	"studygroup-chat/internal/models"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotRepository caches the last history page fetched per group so
// that reads still work while the backend is unreachable.
type SnapshotRepository interface {
	Save(ctx context.Context, groupID string, msgs []models.Message) error
	Load(ctx context.Context, groupID string) ([]models.Message, error)
}

// SnapshotRepo stores snapshots as JSONB in Postgres.
type SnapshotRepo struct {
	db *sqlx.DB
}

// NewSnapshotRepo constructs a SnapshotRepo.
func NewSnapshotRepo(db *sqlx.DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

func (r *SnapshotRepo) Save(ctx context.Context, groupID string, msgs []models.Message) error {
	payload, err := json.Marshal(msgs)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO history_snapshots (group_id, payload, updated_at) VALUES ($1, $2, NOW())
        ON CONFLICT (group_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`, models.GroupKey(groupID), payload)
	return err
}

func (r *SnapshotRepo) Load(ctx context.Context, groupID string) ([]models.Message, error) {
	var payload []byte
	err := r.db.GetContext(ctx, &payload, `SELECT payload FROM history_snapshots WHERE group_id = $1`, models.GroupKey(groupID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	var msgs []models.Message
	if err := json.Unmarshal(payload, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// MemorySnapshotRepo keeps snapshots in process memory.
type MemorySnapshotRepo struct {
	mu    sync.RWMutex
	pages map[string][]models.Message
}

func NewMemorySnapshotRepo() *MemorySnapshotRepo {
	return &MemorySnapshotRepo{pages: make(map[string][]models.Message)}
}

func (r *MemorySnapshotRepo) Save(_ context.Context, groupID string, msgs []models.Message) error {
	page := make([]models.Message, len(msgs))
	for i, m := range msgs {
		page[i] = m.Clone()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages[models.GroupKey(groupID)] = page
	return nil
}

func (r *MemorySnapshotRepo) Load(_ context.Context, groupID string) ([]models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	page, ok := r.pages[models.GroupKey(groupID)]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	out := make([]models.Message, len(page))
	for i, m := range page {
		out[i] = m.Clone()
	}
	return out, nil
}
