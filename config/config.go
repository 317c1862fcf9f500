// Package config loads server configuration from environment variables.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/harborchat/harbor/src/presence"
)

// Config is the full server configuration.
type Config struct {
	Addr      string `env:"HARBOR_ADDR" envDefault:":8080"`
	JWTSecret string `env:"HARBOR_JWT_SECRET,required"`
	DBPath    string `env:"HARBOR_DB_PATH" envDefault:"harbor.db"`

	// Presence store; tracking is disabled when RedisAddr is empty.
	RedisAddr     string `env:"HARBOR_REDIS_ADDR"`
	RedisPassword string `env:"HARBOR_REDIS_PASSWORD"`
	RedisDB       int    `env:"HARBOR_REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"HARBOR_REDIS_PREFIX" envDefault:"harbor:presence:"`

	ReadBufferSize  int `env:"HARBOR_WS_READ_BUFFER" envDefault:"1024"`
	WriteBufferSize int `env:"HARBOR_WS_WRITE_BUFFER" envDefault:"1024"`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Presence returns the presence store configuration and whether presence
// tracking is enabled.
func (c Config) Presence() (presence.Config, bool) {
	if c.RedisAddr == "" {
		return presence.Config{}, false
	}
	return presence.Config{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
		Prefix:   c.RedisPrefix,
	}, true
}
