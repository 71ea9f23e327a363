// Package storage provides persistence for workflows, records, and feeds.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const statusKeyPrefix = "workflow:status:"

// StatusStore keeps live workflow status snapshots in Redis so the query
// surface can serve them without touching the running workflow.
type StatusStore struct {
	redis *redis.Client
}

// NewStatusStore creates a new status store.
func NewStatusStore(redisClient *redis.Client) *StatusStore {
	return &StatusStore{redis: redisClient}
}

// SaveSnapshot stores the serialized status for a run, kept for 24h.
func (s *StatusStore) SaveSnapshot(ctx context.Context, runID string, snapshot interface{}) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal status snapshot: %w", err)
	}
	return s.redis.Set(ctx, statusKeyPrefix+runID, data, 24*time.Hour).Err()
}

// GetSnapshot retrieves the raw serialized status for a run. Returns nil when
// the run is unknown or expired.
func (s *StatusStore) GetSnapshot(ctx context.Context, runID string) ([]byte, error) {
	data, err := s.redis.Get(ctx, statusKeyPrefix+runID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get status snapshot: %w", err)
	}
	return data, nil
}
