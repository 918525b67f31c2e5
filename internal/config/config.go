package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jaam8/surbate/internal/auth"
	"github.com/jaam8/surbate/internal/events"
	"github.com/jaam8/surbate/internal/models"
	"github.com/jaam8/surbate/internal/notify"
	"github.com/jaam8/surbate/pkg/tarantool"
	"github.com/joho/godotenv"
)

const (
	DriverTarantool = "tarantool"
	DriverRedis     = "redis"
	DriverMemory    = "memory"
)

type QualityConfig struct {
	SecondsPerAnswer   int `yaml:"QUALITY_SECONDS_PER_ANSWER"   env:"QUALITY_SECONDS_PER_ANSWER"   env-default:"2"`
	TooFastPenalty     int `yaml:"QUALITY_TOO_FAST_PENALTY"     env:"QUALITY_TOO_FAST_PENALTY"     env-default:"30"`
	SameAnswerMinCount int `yaml:"QUALITY_SAME_ANSWER_MIN"      env:"QUALITY_SAME_ANSWER_MIN"      env-default:"3"`
	SameAnswerPenalty  int `yaml:"QUALITY_SAME_ANSWER_PENALTY"  env:"QUALITY_SAME_ANSWER_PENALTY"  env-default:"20"`
	MinTextLength      int `yaml:"QUALITY_MIN_TEXT_LENGTH"      env:"QUALITY_MIN_TEXT_LENGTH"      env-default:"5"`
	MinimalTextPenalty int `yaml:"QUALITY_MINIMAL_TEXT_PENALTY" env:"QUALITY_MINIMAL_TEXT_PENALTY" env-default:"15"`
}

func (q QualityConfig) Rules() models.QualityRules {
	return models.QualityRules{
		SecondsPerAnswer:   q.SecondsPerAnswer,
		TooFastPenalty:     q.TooFastPenalty,
		SameAnswerMinCount: q.SameAnswerMinCount,
		SameAnswerPenalty:  q.SameAnswerPenalty,
		MinTextLength:      q.MinTextLength,
		MinimalTextPenalty: q.MinimalTextPenalty,
	}
}

type Config struct {
	RestPort        string        `yaml:"REST_PORT"        env:"REST_PORT"        env-default:"8080"`
	LogLevel        string        `yaml:"LOG_LEVEL"        env:"LOG_LEVEL"        env-default:"debug"`
	StorageDriver   string        `yaml:"STORAGE_DRIVER"   env:"STORAGE_DRIVER"   env-default:"tarantool"`
	SessionDriver   string        `yaml:"SESSION_DRIVER"   env:"SESSION_DRIVER"   env-default:"redis"`
	SessionTTL      time.Duration `yaml:"SESSION_TTL"      env:"SESSION_TTL"      env-default:"24h"`
	BcryptCost      int           `yaml:"BCRYPT_COST"      env:"BCRYPT_COST"      env-default:"10"`
	IPHashSalt      string        `yaml:"IP_HASH_SALT"     env:"IP_HASH_SALT"`
	CORSOrigins     []string      `yaml:"CORS_ORIGINS"     env:"CORS_ORIGINS"     env-default:"*" env-separator:","`
	TrustedProxies  []string      `yaml:"TRUSTED_PROXIES"  env:"TRUSTED_PROXIES"  env-separator:","`
	BaseURL         string        `yaml:"BASE_URL"         env:"BASE_URL"         env-default:"http://localhost:8080"`
	SaveRetries     int           `yaml:"SAVE_RETRIES"     env:"SAVE_RETRIES"     env-default:"5"`
	ShutdownTimeout time.Duration `yaml:"SHUTDOWN_TIMEOUT" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`

	Quality    QualityConfig    `yaml:"QUALITY"`
	Tarantool  tarantool.Config `yaml:"TARANTOOL"  env:"TARANTOOL"`
	Redis      auth.RedisConfig `yaml:"REDIS"      env:"REDIS"`
	Kafka      events.Config    `yaml:"KAFKA"      env:"KAFKA"`
	Mattermost notify.Config    `yaml:"MATTERMOST" env:"MATTERMOST"`
}

// New reads the environment after loading an optional .env file.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	var config Config
	if err := cleanenv.ReadEnv(&config); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case DriverTarantool, DriverMemory:
	default:
		return fmt.Errorf("config: unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	switch c.SessionDriver {
	case DriverRedis, DriverMemory:
	default:
		return fmt.Errorf("config: unknown SESSION_DRIVER %q", c.SessionDriver)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("config: SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	return nil
}
