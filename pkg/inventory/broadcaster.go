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
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/metalgrid/hwinv/pkg/models"
)

// DefaultWatchQueueSize bounds a subscriber's delivery queue when the config
// does not say otherwise.
const DefaultWatchQueueSize = 64

// WatchFilter restricts a subscription to events whose record matches the
// given id, MAC or IP at publication time. The zero value matches everything.
type WatchFilter struct {
	ID  string
	MAC string
	IP  string
}

// Subscription is a live handle on the change feed. Events() is closed when
// the subscription ends; Err() then reports why (nil for a consumer-initiated
// close, ErrFellBehind when the broadcaster dropped the subscriber).
type Subscription struct {
	id     string
	filter WatchFilter
	events chan models.ChangeEvent

	mu     sync.Mutex
	closed bool
	err    error

	broadcaster *Broadcaster
}

// Events returns the subscriber's delivery channel.
func (s *Subscription) Events() <-chan models.ChangeEvent {
	return s.events
}

// Err reports why the subscription ended. Read it only after Events() closed.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// Close unsubscribes and releases the delivery queue. Safe to call more than
// once.
func (s *Subscription) Close() {
	s.broadcaster.unsubscribe(s, nil)
}

func (s *Subscription) matches(event *models.ChangeEvent) bool {
	if s.filter == (WatchFilter{}) {
		return true
	}

	if s.filter.ID != "" && s.filter.ID == event.ID {
		return true
	}

	record := event.Record
	if record == nil {
		return false
	}

	for _, iface := range record.Network {
		if iface == nil || iface.DHCP == nil {
			continue
		}

		if s.filter.MAC != "" && strings.EqualFold(s.filter.MAC, iface.DHCP.MAC) {
			return true
		}

		if s.filter.IP != "" && iface.DHCP.IP != nil && s.filter.IP == normalizeIP(iface.DHCP.IP.Address) {
			return true
		}
	}

	return false
}

// Broadcaster fans change events out to all live subscribers. Delivery is
// asynchronous: Publish enqueues into each subscriber's bounded queue and
// never blocks on a consumer. A subscriber whose queue is full is dropped
// with ErrFellBehind; publishers and other subscribers are unaffected. There
// is no replay: a subscriber only observes events published after Subscribe.
type Broadcaster struct {
	mu        sync.Mutex
	subs      map[string]*Subscription
	queueSize int
	log       zerolog.Logger
}

// NewBroadcaster creates a broadcaster with the given per-subscriber queue
// size (DefaultWatchQueueSize when zero).
func NewBroadcaster(queueSize int, log zerolog.Logger) *Broadcaster {
	if queueSize <= 0 {
		queueSize = DefaultWatchQueueSize
	}

	return &Broadcaster{
		subs:      make(map[string]*Subscription),
		queueSize: queueSize,
		log:       log,
	}
}

// Subscribe registers a new watcher. The filter is normalized once here so
// every publish does cheap comparisons.
func (b *Broadcaster) Subscribe(filter WatchFilter) *Subscription {
	if filter.MAC != "" {
		filter.MAC = strings.ToUpper(strings.TrimSpace(filter.MAC))
	}

	if filter.IP != "" {
		filter.IP = normalizeIP(filter.IP)
	}

	sub := &Subscription{
		id:          uuid.NewString(),
		filter:      filter,
		events:      make(chan models.ChangeEvent, b.queueSize),
		broadcaster: b,
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()

	b.log.Debug().Str("subscription", sub.id).Msg("Watcher subscribed")

	return sub
}

// Publish delivers the event to every matching subscriber. Subscribers whose
// queue is full are dropped. Events reach each subscriber in publication
// order; the broadcaster lock makes that order identical for all of them.
func (b *Broadcaster) Publish(ctx context.Context, event models.ChangeEvent) {
	b.mu.Lock()

	var dropped []*Subscription

	for _, sub := range b.subs {
		if !sub.matches(&event) {
			continue
		}

		select {
		case sub.events <- event:
		default:
			dropped = append(dropped, sub)
		}
	}

	for _, sub := range dropped {
		delete(b.subs, sub.id)
	}
	b.mu.Unlock()

	for _, sub := range dropped {
		sub.finish(ErrFellBehind)
		recordWatchDropped(ctx)
		b.log.Warn().Str("subscription", sub.id).Msg("Dropping watcher that fell behind")
	}
}

// Close terminates every subscription; their Err() stays nil.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))

	for _, sub := range b.subs {
		subs = append(subs, sub)
	}

	b.subs = make(map[string]*Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.finish(nil)
	}
}

func (b *Broadcaster) unsubscribe(sub *Subscription, err error) {
	b.mu.Lock()
	delete(b.subs, sub.id)
	b.mu.Unlock()

	sub.finish(err)
}

// finish closes the delivery channel exactly once. The subscription is
// already out of the broadcaster map by the time this runs, so no publish
// can race the close.
func (s *Subscription) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	s.err = err
	close(s.events)
}
