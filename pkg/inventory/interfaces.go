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

//go:generate mockgen -destination=mock_store.go -package=inventory github.com/metalgrid/hwinv/pkg/inventory RecordStore

package inventory

import (
	"context"

	"github.com/metalgrid/hwinv/pkg/models"
)

// RecordStore is the authoritative mapping from hardware id to the current
// record. Implementations assign versions; index maintenance is the caller's
// responsibility, never performed by the store itself.
type RecordStore interface {
	// Get returns the current record for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*models.HardwareRecord, error)

	// Put replaces any existing record for id and returns the newly assigned
	// version. Versions strictly increase and are never reused; any version
	// on the supplied record is ignored.
	Put(ctx context.Context, id string, record *models.HardwareRecord) (uint64, error)

	// Delete removes the record for id. It reports whether a record existed.
	Delete(ctx context.Context, id string) (bool, error)

	// Scan returns a point-in-time snapshot of all records: mutations
	// committed after the call do not surface in it. The Records channel is
	// closed after the last record or when ctx is canceled, and the
	// Snapshot's Err then reports whether the scan completed. The sequence
	// is single-pass and not restartable.
	Scan(ctx context.Context) (*Snapshot, error)

	// Close releases backend resources.
	Close() error
}
