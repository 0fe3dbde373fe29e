package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/models"

	"github.com/go-redis/redis/v8"
)

// ErrNotFound is returned when no session exists for a gateway order id.
// A miss must not abort payment capture; the caller decides how to degrade.
var ErrNotFound = errors.New("checkout session not found")

const keyPrefix = "checkout:session:"

// Store keeps checkout sessions in Redis between gateway order creation and
// capture. Sessions are TTL-bounded so abandoned checkouts do not accumulate,
// and any instance can serve the capture phase.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore connects to Redis and verifies the connection.
func NewStore(addr, password string, db int, ttl time.Duration) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Store{rdb: rdb, ttl: ttl}, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Put stores a session under its gateway order id.
func (s *Store) Put(ctx context.Context, gatewayOrderID string, sess *models.CheckoutSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.rdb.Set(ctx, keyPrefix+gatewayOrderID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Get retrieves a session. Returns ErrNotFound when the key is absent or
// expired.
func (s *Store) Get(ctx context.Context, gatewayOrderID string) (*models.CheckoutSession, error) {
	data, err := s.rdb.Get(ctx, keyPrefix+gatewayOrderID).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var sess models.CheckoutSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

// Delete removes a consumed session. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, gatewayOrderID string) error {
	return s.rdb.Del(ctx, keyPrefix+gatewayOrderID).Err()
}
