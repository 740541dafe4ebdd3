package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/warmpath/backend/internal/contacts"
	"github.com/warmpath/backend/pkg/logger"
)

const keyPrefix = "query:"

// Client caches ranked query results per owner.
type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "redis: connect %s", addr)
	}

	logger.Info("Redis client initialized", zap.String("addr", addr), zap.Duration("ttl", ttl))

	return &Client{client: client, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// QueryKey is query:<owner>:<sha256 of the trimmed filters>.
func QueryKey(ownerID string, filters contacts.Filters) string {
	f := filters.Trimmed()
	sum := sha256.Sum256([]byte(f.Company + "\x00" + f.Role + "\x00" + f.Keyword))
	return ownerPattern(ownerID) + hex.EncodeToString(sum[:])
}

func ownerPattern(ownerID string) string {
	return keyPrefix + ownerID + ":"
}

func (c *Client) SetQuery(ctx context.Context, ownerID string, filters contacts.Filters, results []contacts.ScoredContact) error {
	data, err := json.Marshal(results)
	if err != nil {
		return eris.Wrap(err, "redis: marshal results")
	}

	key := QueryKey(ownerID, filters)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return eris.Wrap(err, "redis: set query cache")
	}

	logger.Debug("Query cached", zap.String("key", key), zap.Duration("ttl", c.ttl))
	return nil
}

func (c *Client) GetQuery(ctx context.Context, ownerID string, filters contacts.Filters) ([]contacts.ScoredContact, bool, error) {
	key := QueryKey(ownerID, filters)
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "redis: get query cache")
	}

	var results []contacts.ScoredContact
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, false, eris.Wrap(err, "redis: unmarshal results")
	}

	logger.Debug("Query cache hit", zap.String("key", key))
	return results, true, nil
}

// InvalidateOwner deletes every cached query of ownerID.
func (c *Client) InvalidateOwner(ctx context.Context, ownerID string) error {
	iter := c.client.Scan(ctx, 0, ownerPattern(ownerID)+"*", 100).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		deleted++
	}

	if err := iter.Err(); err != nil {
		return eris.Wrap(err, "redis: iterate cache keys")
	}

	logger.Debug("Query cache invalidated", zap.String("owner_id", ownerID), zap.Int("keys", deleted))
	return nil
}
