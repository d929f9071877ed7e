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
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no record matches the given id, MAC or IP.
	ErrNotFound = errors.New("hardware record not found")

	// ErrConflict is the sentinel wrapped by ConflictError; use errors.Is to
	// detect conflicts without caring about the offending key.
	ErrConflict = errors.New("hardware key conflict")

	// ErrFellBehind terminates a watch subscription whose delivery queue
	// overflowed. Only the slow subscriber is affected.
	ErrFellBehind = errors.New("watch subscriber fell behind")

	// ErrUnavailable wraps failures of the underlying record store.
	ErrUnavailable = errors.New("record store unavailable")

	// ErrInvalidRecord rejects pushes with no id or malformed hardware keys.
	ErrInvalidRecord = errors.New("invalid hardware record")

	errStoreBackendInvalid = errors.New("store_backend must be \"memory\" or \"nats\"")
	errNatsURLRequired     = errors.New("nats_url is required for the nats store backend")
	errWatchQueueNegative  = errors.New("watch_queue_size must not be negative")
)

// ConflictError reports a MAC or IP already claimed by a different record.
type ConflictError struct {
	Key string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("hardware key conflict: %q is claimed by another record", e.Key)
}

func (*ConflictError) Unwrap() error {
	return ErrConflict
}
