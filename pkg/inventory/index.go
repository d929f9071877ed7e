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
)

// Index maintains the MAC->id and IP->id secondary indices derived from the
// record store. Updates are two-phase: Reserve claims the new keys (failing
// fast on a collision with a different id, before the store is touched),
// Commit then drops the keys the id no longer holds. Abandon rolls a
// reservation back when the store write fails in between.
type Index struct {
	mu       sync.RWMutex
	byMAC    map[string]string
	byIP     map[string]string
	keysByID map[string]recordKeySet
}

type recordKeySet struct {
	macs []string
	ips  []string
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		byMAC:    make(map[string]string),
		byIP:     make(map[string]string),
		keysByID: make(map[string]recordKeySet),
	}
}

// Reserve checks that every key is unclaimed or already claimed by id, and
// claims the new keys on success. On conflict nothing is mutated and a
// ConflictError naming the offending key is returned. The claim makes
// concurrent reservations of the same key by different ids mutually
// exclusive without holding the index lock across the store write.
func (x *Index) Reserve(id string, macs, ips []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, mac := range macs {
		if owner, ok := x.byMAC[mac]; ok && owner != id {
			return &ConflictError{Key: mac}
		}
	}

	for _, ip := range ips {
		if owner, ok := x.byIP[ip]; ok && owner != id {
			return &ConflictError{Key: ip}
		}
	}

	for _, mac := range macs {
		x.byMAC[mac] = id
	}

	for _, ip := range ips {
		x.byIP[ip] = id
	}

	return nil
}

// Commit atomically replaces the key sets claimed by id with the given sets,
// releasing keys from the previous commit that are absent from the new one.
// Idempotent.
func (x *Index) Commit(id string, macs, ips []string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	prev := x.keysByID[id]
	x.dropStaleLocked(id, prev.macs, macs, x.byMAC)
	x.dropStaleLocked(id, prev.ips, ips, x.byIP)

	for _, mac := range macs {
		x.byMAC[mac] = id
	}

	for _, ip := range ips {
		x.byIP[ip] = id
	}

	x.keysByID[id] = recordKeySet{macs: macs, ips: ips}
}

// Abandon undoes a reservation that never committed: keys claimed by id that
// are not part of its last committed set are released again.
func (x *Index) Abandon(id string, macs, ips []string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	prev := x.keysByID[id]
	x.dropStaleLocked(id, macs, prev.macs, x.byMAC)
	x.dropStaleLocked(id, ips, prev.ips, x.byIP)
}

// Release removes all keys claimed by id. Keys become immediately reusable
// by other records.
func (x *Index) Release(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	prev, ok := x.keysByID[id]
	if !ok {
		return
	}

	x.dropStaleLocked(id, prev.macs, nil, x.byMAC)
	x.dropStaleLocked(id, prev.ips, nil, x.byIP)
	delete(x.keysByID, id)
}

// LookupMAC resolves a normalized MAC to the owning record id.
func (x *Index) LookupMAC(mac string) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	id, ok := x.byMAC[mac]

	return id, ok
}

// LookupIP resolves a normalized IP to the owning record id.
func (x *Index) LookupIP(ip string) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	id, ok := x.byIP[ip]

	return id, ok
}

// dropStaleLocked deletes id's claims on keys present in old but not in keep.
func (*Index) dropStaleLocked(id string, old, keep []string, m map[string]string) {
	kept := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		kept[k] = struct{}{}
	}

	for _, k := range old {
		if _, ok := kept[k]; ok {
			continue
		}

		if m[k] == id {
			delete(m, k)
		}
	}
}
