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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/metalgrid/hwinv/pkg/models"
)

// NatsStore is the durable RecordStore, backed by a NATS JetStream KV bucket
// with one JSON-encoded record per hardware id. The bucket revision of each
// entry serves as the record version: revisions are bucket-wide monotonic,
// so versions strictly increase and survive delete/re-create of an id.
type NatsStore struct {
	nc *nats.Conn
	kv jetstream.KeyValue
}

// natsKVHistory is the per-key revision depth kept in the bucket. Scan
// resolves keys at a pinned revision from this history, so keep as much as
// JetStream supports.
const natsKVHistory = 64

// NewNatsStore connects to NATS and creates (or binds to) the KV bucket.
func NewNatsStore(ctx context.Context, natsURL, bucket string) (*NatsStore, error) {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()

		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  bucket,
		History: natsKVHistory,
	})
	if err != nil {
		nc.Close()

		return nil, fmt.Errorf("failed to create KV bucket: %w", err)
	}

	return &NatsStore{nc: nc, kv: kv}, nil
}

// Get fetches and decodes the record for id.
func (s *NatsStore) Get(ctx context.Context, id string) (*models.HardwareRecord, error) {
	entry, err := s.kv.Get(ctx, id)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", id, err)
	}

	return decodeRecord(id, entry)
}

// Put stores the JSON-encoded record and returns the bucket revision as the
// assigned version. The version field is stripped before encoding; it only
// exists as the entry revision.
func (s *NatsStore) Put(ctx context.Context, id string, record *models.HardwareRecord) (uint64, error) {
	stored := record.Clone()
	stored.ID = id
	stored.Version = 0

	data, err := json.Marshal(stored)
	if err != nil {
		return 0, fmt.Errorf("failed to encode record %s: %w", id, err)
	}

	revision, err := s.kv.Put(ctx, id, data)
	if err != nil {
		return 0, fmt.Errorf("failed to put record %s: %w", id, err)
	}

	return revision, nil
}

// Delete removes the record for id, reporting whether it existed.
func (s *NatsStore) Delete(ctx context.Context, id string) (bool, error) {
	_, err := s.kv.Get(ctx, id)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to get record %s: %w", id, err)
	}

	// Delete rather than Purge: the prior revisions stay in the bucket
	// history, and a scan pinned before the delete resolves them from there.
	if err := s.kv.Delete(ctx, id); err != nil {
		return false, fmt.Errorf("failed to delete record %s: %w", id, err)
	}

	return true, nil
}

// Scan pins the bucket's last revision at call time and replays key history
// up to that pin, so a mutation committed after the call never surfaces in
// the snapshot and a record deleted mid-scan is still delivered at its
// pinned revision. A backend failure mid-replay surfaces as ErrUnavailable
// through the Snapshot's Err.
func (s *NatsStore) Scan(ctx context.Context) (*Snapshot, error) {
	status, err := s.kv.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read bucket status: %w", err)
	}

	bucket, ok := status.(*jetstream.KeyValueBucketStatus)
	if !ok {
		return nil, fmt.Errorf("unexpected bucket status %T", status)
	}

	pin := bucket.StreamInfo().State.LastSeq

	watcher, err := s.kv.WatchAll(ctx, jetstream.IncludeHistory())
	if err != nil {
		return nil, fmt.Errorf("failed to watch bucket: %w", err)
	}

	snap := newSnapshot()

	go func() {
		defer close(snap.records)
		defer func() { _ = watcher.Stop() }()

		pinned := make(map[string]jetstream.KeyValueEntry)

	replay:
		for {
			select {
			case <-ctx.Done():
				snap.fail(ctx.Err())
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					snap.fail(fmt.Errorf("%w: bucket watch ended before history replay completed", ErrUnavailable))
					return
				}

				if entry == nil {
					// History replay complete.
					break replay
				}

				applyPinned(pinned, entry, pin)
			}
		}

		for id, entry := range pinned {
			record, err := decodeRecord(id, entry)
			if err != nil {
				snap.fail(fmt.Errorf("%w: %s", ErrUnavailable, err))
				return
			}

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

// applyPinned folds one history entry into the pinned view of the bucket.
// Entries newer than the pin are mutations that started after the scan and
// are ignored; delete and purge markers at or below the pin remove the key.
func applyPinned(pinned map[string]jetstream.KeyValueEntry, entry jetstream.KeyValueEntry, pin uint64) {
	if entry.Revision() > pin {
		return
	}

	if entry.Operation() == jetstream.KeyValuePut {
		pinned[entry.Key()] = entry
	} else {
		delete(pinned, entry.Key())
	}
}

// Close shuts down the NATS connection.
func (s *NatsStore) Close() error {
	s.nc.Close()

	return nil
}

func decodeRecord(id string, entry jetstream.KeyValueEntry) (*models.HardwareRecord, error) {
	record := &models.HardwareRecord{}
	if err := json.Unmarshal(entry.Value(), record); err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", id, err)
	}

	record.ID = id
	record.Version = entry.Revision()

	return record, nil
}

var _ RecordStore = (*NatsStore)(nil)
