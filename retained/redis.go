package retained

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a shared retained-log backend for a multi-broker
// deployment where several broker processes observe the same retained
// log. Each topic maps onto a Redis LIST; Append is RPUSH, Tail is
// LRANGE, and GC is LTRIM. Records are JSON-encoded, matching the
// teacher's own RedisStore (store/redis.go uses encoding/json, not CBOR,
// for its generic value type — this backend follows that precedent rather
// than the CBOR encoding used by PebbleStore).
type RedisStore struct {
	client *redis.Client
	prefix string
}

type RedisStoreConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	Options  *redis.Options
}

func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	var client *redis.Client
	if cfg.Options != nil {
		client = redis.NewClient(cfg.Options)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("retained: connect to redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "retained:"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (r *RedisStore) key(topic string) string {
	return r.prefix + topic
}

func (r *RedisStore) Append(topic string, rec Record) (int, error) {
	ctx := context.Background()
	data, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("retained: marshal record: %w", err)
	}
	n, err := r.client.RPush(ctx, r.key(topic), data).Result()
	if err != nil {
		return 0, fmt.Errorf("retained: rpush: %w", err)
	}
	return int(n), nil
}

func (r *RedisStore) Tail(topic string, from int) ([]Record, error) {
	ctx := context.Background()
	length, err := r.client.LLen(ctx, r.key(topic)).Result()
	if err != nil {
		return nil, fmt.Errorf("retained: llen: %w", err)
	}
	if from < 0 || int64(from) > length {
		return nil, ErrInvalidRange
	}
	raw, err := r.client.LRange(ctx, r.key(topic), int64(from), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("retained: lrange: %w", err)
	}
	out := make([]Record, 0, len(raw))
	for _, s := range raw {
		var rec Record
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("retained: unmarshal record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *RedisStore) Len(topic string) (int, error) {
	ctx := context.Background()
	n, err := r.client.LLen(ctx, r.key(topic)).Result()
	if err != nil {
		return 0, fmt.Errorf("retained: llen: %w", err)
	}
	return int(n), nil
}

func (r *RedisStore) GC(topic string, popCount int) error {
	if popCount == 0 {
		return nil
	}
	ctx := context.Background()
	if err := r.client.LTrim(ctx, r.key(topic), int64(popCount), -1).Err(); err != nil {
		return fmt.Errorf("retained: ltrim: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
