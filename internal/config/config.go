package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

// Keys double as environment variable names.
const (
	KeyAddr           = "API_ADDR"
	KeyDatabaseURL    = "DATABASE_URL"
	KeyCORSOrigin     = "SHIPTIVITY_CORS_ORIGIN"
	KeyRedisURL       = "REDIS_URL"
	KeyCacheTTL       = "SHIPTIVITY_CACHE_TTL_SECONDS"
	KeyMeiliURL       = "MEILI_URL"
	KeyMeiliMasterKey = "MEILI_MASTER_KEY"
	KeyLogLevel       = "LOG_LEVEL"
	KeySeed           = "SHIPTIVITY_SEED"
)

type Config struct {
	Addr        string
	DatabaseURL string
	CORSOrigin  string
	// Redis is optional; empty disables the listing cache and the
	// cross-instance reorder lock.
	RedisURL string
	CacheTTL time.Duration
	// Meilisearch is optional; empty leaves search on the SQL fallback.
	MeiliURL       string
	MeiliMasterKey string
	LogLevel       string
	Seed           bool
}

// NewViper returns a viper instance with every default registered and the
// environment bound. Flags and an optional config file layer on top.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyAddr, ":3001")
	v.SetDefault(KeyDatabaseURL, "./clients.db")
	v.SetDefault(KeyCORSOrigin, "*")
	v.SetDefault(KeyRedisURL, "")
	v.SetDefault(KeyCacheTTL, 60)
	v.SetDefault(KeyMeiliURL, "")
	v.SetDefault(KeyMeiliMasterKey, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeySeed, true)
	v.AutomaticEnv()
	return v
}

// ReadFile merges a YAML or TOML config file into v. A missing file is not
// an error.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func FromViper(v *viper.Viper) Config {
	ttl := v.GetInt(KeyCacheTTL)
	if ttl < 0 {
		ttl = 0
	}
	return Config{
		Addr:           v.GetString(KeyAddr),
		DatabaseURL:    v.GetString(KeyDatabaseURL),
		CORSOrigin:     v.GetString(KeyCORSOrigin),
		RedisURL:       v.GetString(KeyRedisURL),
		CacheTTL:       time.Duration(ttl) * time.Second,
		MeiliURL:       v.GetString(KeyMeiliURL),
		MeiliMasterKey: v.GetString(KeyMeiliMasterKey),
		LogLevel:       v.GetString(KeyLogLevel),
		Seed:           v.GetBool(KeySeed),
	}
}

// Load reads the configuration from the environment alone.
func Load() Config {
	return FromViper(NewViper())
}
