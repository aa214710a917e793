/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package relay

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the relay server configuration, loaded from environment
// variables.
type Config struct {
	ListenAddr string        `env:"RELAY_LISTEN_ADDR" envDefault:":8391"`
	Secret     string        `env:"RELAY_SECRET,required"`
	TokenTTL   time.Duration `env:"RELAY_TOKEN_TTL" envDefault:"24h"`

	RedisAddr     string        `env:"RELAY_REDIS_ADDR"`
	RedisUsername string        `env:"RELAY_REDIS_USERNAME"`
	RedisPassword string        `env:"RELAY_REDIS_PASSWORD"`
	RedisDB       int           `env:"RELAY_REDIS_DB" envDefault:"0"`
	PresenceTTL   time.Duration `env:"RELAY_PRESENCE_TTL" envDefault:"5m"`
}

// LoadEnv loads the contents of ENV_FILE (or .env) into the process
// environment. A missing file is not an error in production, where the
// environment is set directly.
func LoadEnv() error {
	envfile := os.Getenv("ENV_FILE")
	if envfile == "" {
		envfile = ".env"
	}
	if _, err := os.Stat(envfile); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(envfile)
}

// LoadConfig parses the relay configuration from the environment.
func LoadConfig() (*Config, error) {
	cfg := new(Config)
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
