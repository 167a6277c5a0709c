package cache

import (
	"context"
	"errors"
	"time"

	"github.com/xnotip/tipbot_service/internal/domain/entities"
	domainerrors "github.com/xnotip/tipbot_service/internal/domain/errors"
)

const pendingSignaturePrefix = "pending_signature:"

// PendingSignatureStore keeps unsigned blocks alive between the
// "please sign" post and the user's signature reply. Entries expire:
// the frontier they were built against goes stale over time anyway.
type PendingSignatureStore struct {
	redis RedisClient
	ttl   time.Duration
}

// NewPendingSignatureStore creates a new pending signature store
func NewPendingSignatureStore(redis RedisClient, ttl time.Duration) *PendingSignatureStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &PendingSignatureStore{redis: redis, ttl: ttl}
}

// Put stores a pending signature keyed by the "please sign" status id.
func (s *PendingSignatureStore) Put(ctx context.Context, pending *entities.PendingSignature) error {
	if pending.CreatedAt.IsZero() {
		pending.CreatedAt = time.Now().UTC()
	}
	return s.redis.Set(ctx, pendingSignaturePrefix+pending.StatusID, pending, s.ttl)
}

// Get retrieves a pending signature by the status id it was posted
// under. Returns ErrNotFound when absent or expired.
func (s *PendingSignatureStore) Get(ctx context.Context, statusID string) (*entities.PendingSignature, error) {
	var pending entities.PendingSignature
	err := s.redis.Get(ctx, pendingSignaturePrefix+statusID, &pending)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, domainerrors.NotFoundError("pending signature")
		}
		return nil, err
	}
	return &pending, nil
}

// Delete removes a completed or abandoned pending signature.
func (s *PendingSignatureStore) Delete(ctx context.Context, statusID string) error {
	return s.redis.Del(ctx, pendingSignaturePrefix+statusID)
}
