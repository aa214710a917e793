/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package relay

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("RELAY_SECRET", "s3cret")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.ListenAddr != ":8391" {
			t.Errorf("Expected default listen addr :8391, got %s", cfg.ListenAddr)
		}
		if cfg.Secret != "s3cret" {
			t.Errorf("Expected secret from env, got %s", cfg.Secret)
		}
		if cfg.TokenTTL != 24*time.Hour {
			t.Errorf("Expected default token TTL 24h, got %v", cfg.TokenTTL)
		}
		if cfg.PresenceTTL != 5*time.Minute {
			t.Errorf("Expected default presence TTL 5m, got %v", cfg.PresenceTTL)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("RELAY_SECRET", "s3cret")
		t.Setenv("RELAY_LISTEN_ADDR", ":9999")
		t.Setenv("RELAY_TOKEN_TTL", "1h")
		t.Setenv("RELAY_REDIS_ADDR", "localhost:6379")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.ListenAddr != ":9999" {
			t.Errorf("Expected :9999, got %s", cfg.ListenAddr)
		}
		if cfg.TokenTTL != time.Hour {
			t.Errorf("Expected 1h token TTL, got %v", cfg.TokenTTL)
		}
		if cfg.RedisAddr != "localhost:6379" {
			t.Errorf("Expected redis addr, got %s", cfg.RedisAddr)
		}
	})

	t.Run("secret is required", func(t *testing.T) {
		// t.Setenv registers the restore; the variable must then be
		// genuinely absent, not empty.
		t.Setenv("RELAY_SECRET", "placeholder")
		_ = os.Unsetenv("RELAY_SECRET")
		if _, err := LoadConfig(); err == nil {
			t.Error("Expected an error without RELAY_SECRET")
		}
	})
}
