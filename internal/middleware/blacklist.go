package middleware

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const blacklistPrefix = "blacklist:"

// Blacklist отозванные токены
type Blacklist interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// RedisBlacklist хранит отозванные токены ключами blacklist:<token>
type RedisBlacklist struct {
	client *redis.Client
}

func NewRedisBlacklist(client *redis.Client) *RedisBlacklist {
	return &RedisBlacklist{client: client}
}

func (b *RedisBlacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	exists, err := b.client.Exists(ctx, blacklistPrefix+token).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

// Revoke кладёт токен в чёрный список до истечения ttl
func (b *RedisBlacklist) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	return b.client.Set(ctx, blacklistPrefix+token, "revoked", ttl).Err()
}

// NoBlacklist используется, когда Redis не настроен
type NoBlacklist struct{}

func (NoBlacklist) IsRevoked(context.Context, string) (bool, error) {
	return false, nil
}
