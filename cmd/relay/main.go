/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// The relay command runs the signaling relay server. Configuration
// comes from the environment (see relay.Config); with RELAY_REDIS_ADDR
// set, presence is shared across relay instances.
package main

import (
	"context"
	"log"
	"net/http"

	"github.com/techstandakmr/callcore/relay"
)

func main() {
	if err := relay.LoadEnv(); err != nil {
		log.Fatalf("failed to load env file: %v", err)
	}

	cfg, err := relay.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var presence relay.Presence
	if cfg.RedisAddr != "" {
		presence, err = relay.NewRedisPresence(context.Background(), relay.RedisOptions{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.PresenceTTL,
		})
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer presence.Close()
		log.Printf("relay: presence backed by redis at %s", cfg.RedisAddr)
	}

	hub := relay.NewHub([]byte(cfg.Secret), presence)

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	log.Printf("relay: listening on %s", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
		log.Fatalf("relay: server stopped: %v", err)
	}
}
