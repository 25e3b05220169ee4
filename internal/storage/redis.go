package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-redis/redis/v8"

	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/models"
)

const dialogueContextPrefix = "dlg:ctx:"

// RedisContextStore keeps dialogue contexts as JSON values whose Redis TTL
// mirrors ExpiresAt, so expired contexts disappear without a sweeper.
type RedisContextStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisContextStore(client *redis.Client) *RedisContextStore {
	return &RedisContextStore{client: client, now: time.Now}
}

func (s *RedisContextStore) key(customerID, businessID string) string {
	return dialogueContextPrefix + contextKey(customerID, businessID)
}

func (s *RedisContextStore) GetContext(ctx context.Context, customerID, businessID string) (*models.DialogueContext, error) {
	data, err := s.client.Get(ctx, s.key(customerID, businessID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get dialogue context")
	}
	var dc models.DialogueContext
	if err := json.Unmarshal(data, &dc); err != nil {
		return nil, errors.Wrap(err, "decode dialogue context")
	}
	return &dc, nil
}

func (s *RedisContextStore) UpsertContext(ctx context.Context, dc *models.DialogueContext) error {
	b, err := json.Marshal(dc)
	if err != nil {
		return errors.Wrap(err, "encode dialogue context")
	}
	ttl := dc.ExpiresAt.Sub(s.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	err = s.client.Set(ctx, s.key(dc.CustomerID, dc.BusinessID), b, ttl).Err()
	return errors.Wrap(err, "redis set dialogue context")
}

func (s *RedisContextStore) DeleteContext(ctx context.Context, customerID, businessID string) error {
	err := s.client.Del(ctx, s.key(customerID, businessID)).Err()
	return errors.Wrap(err, "redis delete dialogue context")
}

// PurgeExpiredContexts is a no-op: Redis evicts keys on TTL.
func (s *RedisContextStore) PurgeExpiredContexts(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (s *RedisContextStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
