package session

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisStore keeps the session in redis so a terminal can be replaced
// without logging the cashier out.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(addr string, password string, db int, terminalID string, ttl time.Duration) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return NewRedisStoreWithClient(client, terminalID, ttl)
}

func NewRedisStoreWithClient(client *redis.Client, terminalID string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "pos:session:" + terminalID + ":",
		ttl:    ttl,
	}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set writes value; a zero ttl keeps the key until logout.
func (s *RedisStore) Set(ctx context.Context, key string, value string) error {
	return s.client.Set(ctx, s.prefix+key, value, s.ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
