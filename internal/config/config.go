package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const EnvPrefix = "TEXTSWAP_"

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	AuthJWT      = "jwt"
	AuthFirebase = "firebase"

	BrokerLocal = "local"
	BrokerNATS  = "nats"
)

type Config struct {
	Server struct {
		Port         string        `koanf:"port"`
		ReadTimeout  time.Duration `koanf:"read_timeout"`
		WriteTimeout time.Duration `koanf:"write_timeout"`
	} `koanf:"server"`

	Log struct {
		Level       string `koanf:"level"`
		Development bool   `koanf:"development"`
	} `koanf:"log"`

	Store struct {
		Driver       string `koanf:"driver"`
		SeedFixtures bool   `koanf:"seed_fixtures"`
	} `koanf:"store"`

	DB struct {
		Host     string `koanf:"host"`
		Port     string `koanf:"port"`
		User     string `koanf:"user"`
		Password string `koanf:"password"`
		Name     string `koanf:"name"`
		SSLMode  string `koanf:"sslmode"`
	} `koanf:"db"`

	Auth struct {
		Mode                    string `koanf:"mode"`
		JWTSecret               string `koanf:"jwt_secret"`
		FirebaseProjectID       string `koanf:"firebase_project_id"`
		FirebaseCredentialsFile string `koanf:"firebase_credentials_file"`
	} `koanf:"auth"`

	Live struct {
		Broker     string `koanf:"broker"`
		NATSURL    string `koanf:"nats_url"`
		MaxPending int    `koanf:"max_pending"`
	} `koanf:"live"`

	Rating struct {
		MaxAttempts int `koanf:"max_attempts"`
	} `koanf:"rating"`

	RateLimit struct {
		Requests int           `koanf:"requests"`
		Window   time.Duration `koanf:"window"`
	} `koanf:"ratelimit"`

	Tracing struct {
		Enabled  bool   `koanf:"enabled"`
		Endpoint string `koanf:"endpoint"`
	} `koanf:"tracing"`

	Cache struct {
		Size int `koanf:"size"`
	} `koanf:"cache"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.port":          "8080",
		"server.read_timeout":  "15s",
		"server.write_timeout": "15s",
		"log.level":            "info",
		"log.development":      false,
		"store.driver":         StoreMemory,
		"store.seed_fixtures":  true,
		"db.host":              "localhost",
		"db.port":              "5432",
		"db.user":              "textswap",
		"db.password":          "textswap_dev_password",
		"db.name":              "textswap",
		"db.sslmode":           "disable",
		"auth.mode":            AuthJWT,
		"auth.jwt_secret":      "dev-secret-change-me",
		"live.broker":          BrokerLocal,
		"live.nats_url":        "nats://localhost:4222",
		"live.max_pending":     256,
		"rating.max_attempts":  3,
		"ratelimit.requests":   120,
		"ratelimit.window":     "1m",
		"tracing.enabled":      false,
		"tracing.endpoint":     "localhost:4318",
		"cache.size":           1024,
	}
}

// Load merges defaults, an optional TOML file and TEXTSWAP_* environment
// variables, in that order. A .env file in the working directory is read
// first if present.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	}

	// TEXTSWAP_AUTH_JWT_SECRET -> auth.jwt_secret. Only the first underscore
	// separates the section so multi-word keys survive.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Auth.Mode {
	case AuthJWT:
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is required for jwt auth")
		}
	case AuthFirebase:
		if c.Auth.FirebaseProjectID == "" {
			return fmt.Errorf("auth.firebase_project_id is required for firebase auth")
		}
	default:
		return fmt.Errorf("unknown auth mode %q", c.Auth.Mode)
	}

	switch c.Live.Broker {
	case BrokerLocal:
	case BrokerNATS:
		if c.Live.NATSURL == "" {
			return fmt.Errorf("live.nats_url is required for the nats broker")
		}
	default:
		return fmt.Errorf("unknown live broker %q", c.Live.Broker)
	}

	if c.Rating.MaxAttempts < 1 {
		return fmt.Errorf("rating.max_attempts must be at least 1")
	}
	if c.Live.MaxPending < 1 {
		return fmt.Errorf("live.max_pending must be at least 1")
	}
	if c.Cache.Size < 1 {
		return fmt.Errorf("cache.size must be at least 1")
	}
	return nil
}

// DSN builds the Postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}
