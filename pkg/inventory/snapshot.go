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
	"sync"

	"github.com/metalgrid/hwinv/pkg/models"
)

// Snapshot is a single-pass stream of records produced by RecordStore.Scan.
// The producer closes Records after the last record; Err then reports nil
// for a complete snapshot, or the error that cut it short.
type Snapshot struct {
	records chan *models.HardwareRecord

	mu  sync.Mutex
	err error
}

func newSnapshot() *Snapshot {
	return &Snapshot{records: make(chan *models.HardwareRecord)}
}

// Records delivers the snapshot's records. Consumers drain it to completion
// or cancel the scan's context to abandon it.
func (s *Snapshot) Records() <-chan *models.HardwareRecord {
	return s.records
}

// Err reports how the snapshot ended. It is meaningful once Records has
// closed.
func (s *Snapshot) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

func (s *Snapshot) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
