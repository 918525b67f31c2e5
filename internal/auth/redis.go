package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jaam8/surbate/internal/models"
	"go.uber.org/zap"
)

const sessionKeyPrefix = "surbate:session:"

type RedisConfig struct {
	Addr     string `yaml:"REDIS_ADDR" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"REDIS_PASSWORD" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"REDIS_DB" env:"REDIS_DB" env-default:"0"`
}

func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("auth: redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

type RedisSessions struct {
	client *redis.Client
	ttl    time.Duration
	l      *zap.Logger
}

func NewRedisSessions(client *redis.Client, ttl time.Duration, l *zap.Logger) *RedisSessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisSessions{client: client, ttl: ttl, l: l}
}

func (s *RedisSessions) Create(ctx context.Context, subject string) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	if err = s.client.Set(ctx, sessionKeyPrefix+token, subject, s.ttl).Err(); err != nil {
		s.l.Debug("failed to store session", zap.Error(err))
		return "", fmt.Errorf("auth: store session: %w", err)
	}
	return token, nil
}

func (s *RedisSessions) Validate(ctx context.Context, token string) (string, error) {
	key := sessionKeyPrefix + token
	subject, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", models.ErrUnauthorized
	}
	if err != nil {
		s.l.Debug("failed to load session", zap.Error(err))
		return "", fmt.Errorf("auth: load session: %w", err)
	}
	if err = s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
		s.l.Warn("failed to refresh session", zap.Error(err))
	}
	return subject, nil
}

func (s *RedisSessions) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("auth: delete session: %w", err)
	}
	return nil
}
