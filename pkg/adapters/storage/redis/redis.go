package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aescanero/bago/pkg/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "bago:responses:"

// ResponseStore implements ResponseStore using Redis with a per-response
// TTL so the archive stays bounded.
type ResponseStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewResponseStore creates a new Redis response store
func NewResponseStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ResponseStore {
	return &ResponseStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Save archives a batch response with the configured TTL
func (s *ResponseStore) Save(ctx context.Context, resp *domain.BatchResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	if err := s.client.Set(ctx, keyPrefix+resp.BatchID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save response: %w", err)
	}

	s.logger.Debug("batch response archived",
		zap.String("batch_id", resp.BatchID),
		zap.Duration("ttl", s.ttl))

	return nil
}

// Get retrieves an archived batch response
func (s *ResponseStore) Get(ctx context.Context, batchID string) (*domain.BatchResponse, error) {
	data, err := s.client.Get(ctx, keyPrefix+batchID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("batch response not found: %s", batchID)
		}
		return nil, fmt.Errorf("failed to get response: %w", err)
	}

	var resp domain.BatchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &resp, nil
}

// List returns all archived batch ids
func (s *ResponseStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len(keyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}
	return ids, nil
}

// Delete removes an archived batch response
func (s *ResponseStore) Delete(ctx context.Context, batchID string) error {
	if err := s.client.Del(ctx, keyPrefix+batchID).Err(); err != nil {
		return fmt.Errorf("failed to delete response: %w", err)
	}
	return nil
}
