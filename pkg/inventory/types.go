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

package inventory

import (
	"github.com/metalgrid/hwinv/pkg/logger"
)

// Store backends selectable in config.
const (
	StoreBackendMemory = "memory"
	StoreBackendNats   = "nats"
)

// Config holds the configuration for the inventory service.
type Config struct {
	StoreBackend   string        `json:"store_backend"`
	NATSURL        string        `json:"nats_url,omitempty"`
	Bucket         string        `json:"bucket,omitempty"`
	WatchQueueSize int           `json:"watch_queue_size,omitempty"`
	Logging        logger.Config `json:"logging,omitempty"`
}

// Validate ensures the configuration is valid and fills in defaults.
func (c *Config) Validate() error {
	if c.StoreBackend == "" {
		c.StoreBackend = StoreBackendMemory
	}

	if c.StoreBackend != StoreBackendMemory && c.StoreBackend != StoreBackendNats {
		return errStoreBackendInvalid
	}

	if c.StoreBackend == StoreBackendNats && c.NATSURL == "" {
		return errNatsURLRequired
	}

	if c.Bucket == "" {
		c.Bucket = "hwinv"
	}

	if c.WatchQueueSize < 0 {
		return errWatchQueueNegative
	}

	if c.WatchQueueSize == 0 {
		c.WatchQueueSize = DefaultWatchQueueSize
	}

	return nil
}
