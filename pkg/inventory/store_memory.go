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
	"context"
	"sync"

	"github.com/metalgrid/hwinv/pkg/models"
)

// MemoryStore is the in-process RecordStore. Versions come from a single
// store-wide counter, so a re-created id never reuses an earlier version.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.HardwareRecord
	version uint64
}

// NewMemoryStore returns an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*models.HardwareRecord),
	}
}

// Get returns a copy of the current record for id.
func (s *MemoryStore) Get(_ context.Context, id string) (*models.HardwareRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}

	return record.Clone(), nil
}

// Put replaces the record for id and returns the assigned version.
func (s *MemoryStore) Put(_ context.Context, id string, record *models.HardwareRecord) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.version++

	stored := record.Clone()
	stored.ID = id
	stored.Version = s.version
	s.records[id] = stored

	return s.version, nil
}

// Delete removes the record for id, reporting whether it existed.
func (s *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return false, nil
	}

	delete(s.records, id)

	return true, nil
}

// Scan snapshots the record set under the read lock and streams copies
// lazily. Mutations after the call do not affect an in-flight scan.
func (s *MemoryStore) Scan(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	records := make([]*models.HardwareRecord, 0, len(s.records))

	for _, record := range s.records {
		records = append(records, record.Clone())
	}
	s.mu.RUnlock()

	snap := newSnapshot()

	go func() {
		defer close(snap.records)

		for _, record := range records {
			select {
			case snap.records <- record:
			case <-ctx.Done():
				snap.fail(ctx.Err())
				return
			}
		}
	}()

	return snap, nil
}

// Close implements RecordStore; the memory store holds no resources.
func (*MemoryStore) Close() error {
	return nil
}

var _ RecordStore = (*MemoryStore)(nil)
