// SSVC Gateway
// Copyright (c) 2026 The SSVC Gateway Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of SSVC Gateway.
//
// SSVC Gateway is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SSVC Gateway is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with SSVC Gateway.  If not, see <http://www.gnu.org/licenses/>.

package notify

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/ssvc-open-connect/gateway/pkg/helpers/syncutil"
)

// Broker broadcasts every message read from its source to all subscribers.
type Broker struct {
	source      <-chan Message
	subscribers map[int]chan Message
	mu          syncutil.RWMutex
	nextID      int
}

func NewBroker(source <-chan Message) *Broker {
	return &Broker{
		source:      source,
		subscribers: make(map[int]chan Message),
	}
}

// Run broadcasts until the source closes or ctx is done, then closes every
// subscriber channel.
func (b *Broker) Run(ctx context.Context) error {
	defer b.closeAll()
	for {
		select {
		case msg, ok := <-b.source:
			if !ok {
				log.Debug().Msg("broker: source closed")
				return nil
			}
			b.broadcast(msg)
		case <-ctx.Done():
			return nil
		}
	}
}

func (b *Broker) broadcast(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
			log.Warn().Int("subscriber_id", id).Str("type", msg.Type).
				Msg("subscriber channel full, dropping message")
		}
	}
}

// Subscribe registers a subscriber with a buffer of bufferSize messages.
func (b *Broker) Subscribe(bufferSize int) (msgs <-chan Message, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id = b.nextID
	b.nextID++
	ch := make(chan Message, bufferSize)
	b.subscribers[id] = ch
	log.Debug().Int("subscriber_id", id).Msg("subscriber registered")
	return ch, id
}

// Unsubscribe closes the subscriber's channel. Unknown ids are ignored.
func (b *Broker) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

func (b *Broker) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
