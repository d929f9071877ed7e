/*
 * Copyright 2025 Metalgrid Labs.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/metalgrid/hwinv/pkg/config"
	"github.com/metalgrid/hwinv/pkg/inventory"
	"github.com/metalgrid/hwinv/pkg/logger"
)

func main() {
	configPath := flag.String("config", "/etc/hwinv/hwinv.json", "Path to config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfgLoader := config.NewConfig(nil)

	var cfg inventory.Config
	if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Logging); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	mainLogger := logger.WithComponent("hwinvd")

	store, err := newStore(ctx, &cfg)
	if err != nil {
		mainLogger.Fatal().Err(err).Msg("Failed to create record store")
	}

	svc, err := inventory.New(ctx, store, &cfg, logger.WithComponent("inventory"))
	if err != nil {
		mainLogger.Fatal().Err(err).Msg("Failed to create inventory service")
	}

	mainLogger.Info().
		Str("store_backend", cfg.StoreBackend).
		Msg("Hardware inventory service ready")

	<-ctx.Done()

	mainLogger.Info().Msg("Shutting down")

	if err := svc.Close(); err != nil {
		mainLogger.Error().Err(err).Msg("Error closing inventory service")
	}
}

func newStore(ctx context.Context, cfg *inventory.Config) (inventory.RecordStore, error) {
	if cfg.StoreBackend == inventory.StoreBackendNats {
		return inventory.NewNatsStore(ctx, cfg.NATSURL, cfg.Bucket)
	}

	return inventory.NewMemoryStore(), nil
}
