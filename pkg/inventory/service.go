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
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/metalgrid/hwinv/pkg/models"
)

// Service is the hardware inventory data plane: the push/delete pipelines,
// the query facade and the change feed, over an injected RecordStore.
type Service struct {
	store       RecordStore
	index       *Index
	locks       lockTable
	broadcaster *Broadcaster
	log         zerolog.Logger
}

// New builds a Service over the given store and hydrates the MAC/IP indices
// from its current contents, so a restart with a durable backend resumes with
// consistent indices. Records whose keys collide with an already-hydrated
// record are stored but left unindexed, and logged.
func New(ctx context.Context, store RecordStore, cfg *Config, log zerolog.Logger) (*Service, error) {
	s := &Service{
		store:       store,
		index:       NewIndex(),
		broadcaster: NewBroadcaster(cfg.WatchQueueSize, log),
		log:         log,
	}

	if err := s.hydrate(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) hydrate(ctx context.Context) error {
	snap, err := s.store.Scan(ctx)
	if err != nil {
		return fmt.Errorf("%w: hydration scan: %s", ErrUnavailable, err)
	}

	count := 0

	for record := range snap.Records() {
		macs, ips, err := recordKeys(record)
		if err != nil {
			s.log.Warn().Err(err).Str("id", record.ID).Msg("Skipping index hydration for malformed record")
			continue
		}

		if err := s.index.Reserve(record.ID, macs, ips); err != nil {
			s.log.Warn().Err(err).Str("id", record.ID).Msg("Skipping index hydration for conflicting record")
			continue
		}

		s.index.Commit(record.ID, macs, ips)
		count++
	}

	if err := snap.Err(); err != nil {
		return fmt.Errorf("hydration scan: %w", err)
	}

	if count > 0 {
		s.log.Info().Int("records", count).Msg("Hydrated hardware indices")
	}

	return nil
}

// Push validates the record, serializes against other mutations of the same
// id, claims its MAC/IP keys, writes it to the store and publishes an upsert
// event. On a key conflict nothing is mutated; on a store failure the key
// reservation is rolled back before returning.
func (s *Service) Push(ctx context.Context, record *models.HardwareRecord) (*models.HardwareRecord, error) {
	if record == nil || strings.TrimSpace(record.ID) == "" {
		recordPush(ctx, "invalid")

		return nil, fmt.Errorf("%w: missing id", ErrInvalidRecord)
	}

	macs, ips, err := recordKeys(record)
	if err != nil {
		recordPush(ctx, "invalid")

		return nil, err
	}

	unlock := s.locks.lock(record.ID)
	defer unlock()

	if err := s.index.Reserve(record.ID, macs, ips); err != nil {
		recordPush(ctx, "conflict")

		return nil, err
	}

	version, err := s.store.Put(ctx, record.ID, record)
	if err != nil {
		s.index.Abandon(record.ID, macs, ips)
		recordPush(ctx, "unavailable")

		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}

	s.index.Commit(record.ID, macs, ips)

	stored := record.Clone()
	stored.Version = version

	s.broadcaster.Publish(ctx, models.ChangeEvent{
		Kind:    models.ChangeUpsert,
		ID:      record.ID,
		Version: version,
		Record:  stored.Clone(),
	})

	recordPush(ctx, "ok")
	s.log.Debug().Str("id", record.ID).Uint64("version", version).Msg("Pushed hardware record")

	return stored, nil
}

// Delete removes the record and its index entries and publishes a tombstone
// carrying the last live state. Deleting an unknown id returns ErrNotFound
// and mutates nothing.
func (s *Service) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRecord)
	}

	unlock := s.locks.lock(id)
	defer unlock()

	last, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			recordDelete(ctx, "not_found")

			return ErrNotFound
		}

		recordDelete(ctx, "unavailable")

		return fmt.Errorf("%w: %s", ErrUnavailable, err)
	}

	found, err := s.store.Delete(ctx, id)
	if err != nil {
		recordDelete(ctx, "unavailable")

		return fmt.Errorf("%w: %s", ErrUnavailable, err)
	}

	if !found {
		recordDelete(ctx, "not_found")

		return ErrNotFound
	}

	s.index.Release(id)

	s.broadcaster.Publish(ctx, models.ChangeEvent{
		Kind:    models.ChangeTombstone,
		ID:      id,
		Version: last.Version,
		Record:  last,
	})

	recordDelete(ctx, "ok")
	s.log.Debug().Str("id", id).Uint64("version", last.Version).Msg("Deleted hardware record")

	return nil
}

// ByID returns the current record for id.
func (s *Service) ByID(ctx context.Context, id string) (*models.HardwareRecord, error) {
	record, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}

	return record, nil
}

// ByMAC resolves a MAC through the index and fetches the owning record. If a
// concurrent delete or re-push interleaves between the index lookup and the
// store read, the mismatch is detected and reported as ErrNotFound rather
// than returning a record that no longer owns the key.
func (s *Service) ByMAC(ctx context.Context, mac string) (*models.HardwareRecord, error) {
	normalized, err := normalizeMAC(mac)
	if err != nil {
		return nil, ErrNotFound
	}

	id, ok := s.index.LookupMAC(normalized)
	if !ok {
		return nil, ErrNotFound
	}

	return s.fetchOwning(ctx, id, func(macs, _ []string) bool {
		return contains(macs, normalized)
	})
}

// ByIP resolves a static IP through the index and fetches the owning record,
// with the same index-to-store consistency check as ByMAC.
func (s *Service) ByIP(ctx context.Context, ip string) (*models.HardwareRecord, error) {
	normalized := normalizeIP(ip)
	if normalized == "" {
		return nil, ErrNotFound
	}

	id, ok := s.index.LookupIP(normalized)
	if !ok {
		return nil, ErrNotFound
	}

	return s.fetchOwning(ctx, id, func(_, ips []string) bool {
		return contains(ips, normalized)
	})
}

func (s *Service) fetchOwning(ctx context.Context, id string, owns func(macs, ips []string) bool) (*models.HardwareRecord, error) {
	record, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}

	macs, ips, err := recordKeys(record)
	if err != nil || !owns(macs, ips) {
		return nil, ErrNotFound
	}

	return record, nil
}

// All streams a snapshot of the full inventory. The caller drains Records,
// cancels ctx to abandon the scan early, and checks the Snapshot's Err once
// the channel closes: a backend failure mid-scan surfaces there as
// ErrUnavailable. There is no atomicity between an All snapshot and a
// subsequent Watch subscription; callers wanting a consistent starting
// point subscribe first, then snapshot, and tolerate overlapping events.
func (s *Service) All(ctx context.Context) (*Snapshot, error) {
	snap, err := s.store.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}

	return snap, nil
}

// Watch subscribes to the live change feed, optionally filtered by id, MAC
// or IP. Only events published after the call are observed.
func (s *Service) Watch(filter WatchFilter) *Subscription {
	return s.broadcaster.Subscribe(filter)
}

// Close tears down the change feed and the underlying store.
func (s *Service) Close() error {
	s.broadcaster.Close()

	return s.store.Close()
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}

	return false
}
