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

// Package signals implements the notification bus shared by the serial
// reader, the command queue consumer and the process state consumer.
//
// A signal is a named boolean flag. Producers set it, consumers wait for any
// of a set of signals, and a successful wait clears the signals it matched.
// Setting an already set signal is a no-op.
package signals

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ssvc-open-connect/gateway/pkg/helpers/syncutil"
)

// ErrTimeout is returned by WaitAny when none of the wanted signals fired in time.
var ErrTimeout = errors.New("signal wait timed out")

type Signal uint8

const (
	TelemetryReady Signal = iota
	SettingsReady
	VersionReady
	CommandOk
	CommandError
	signalCount
)

var signalNames = [signalCount]string{
	TelemetryReady: "telemetry_ready",
	SettingsReady:  "settings_ready",
	VersionReady:   "version_ready",
	CommandOk:      "command_ok",
	CommandError:   "command_error",
}

func (s Signal) String() string {
	if s >= signalCount {
		return "unknown"
	}
	return signalNames[s]
}

// Set is a bitmask of signals.
type Set uint8

func SetOf(sigs ...Signal) Set {
	var s Set
	for _, sig := range sigs {
		s |= 1 << sig
	}
	return s
}

func (s Set) Has(sig Signal) bool {
	return s&(1<<sig) != 0
}

func (s Set) Empty() bool {
	return s == 0
}

func (s Set) Signals() []Signal {
	var out []Signal
	for sig := Signal(0); sig < signalCount; sig++ {
		if s.Has(sig) {
			out = append(out, sig)
		}
	}
	return out
}

func (s Set) String() string {
	sigs := s.Signals()
	names := make([]string, 0, len(sigs))
	for _, sig := range sigs {
		names = append(names, sig.String())
	}
	return "{" + strings.Join(names, ",") + "}"
}

// Bus holds the current signal bits. The zero value is not usable, create
// one with NewBus.
type Bus struct {
	clock   clockwork.Clock
	changed chan struct{}
	mu      syncutil.Mutex
	bits    Set
}

func NewBus(clock clockwork.Clock) *Bus {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Bus{
		clock:   clock,
		changed: make(chan struct{}),
	}
}

// Set raises a signal and wakes every waiter.
func (b *Bus) Set(sig Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bits |= SetOf(sig)
	close(b.changed)
	b.changed = make(chan struct{})
}

// Clear lowers the given signals.
func (b *Bus) Clear(sigs ...Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bits &^= SetOf(sigs...)
}

func (b *Bus) IsSet(sig Signal) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bits.Has(sig)
}

// WaitAny blocks until at least one signal in want is set, the timeout
// elapses or ctx is done. The signals that matched are cleared and returned.
// A timeout of zero or less waits without a deadline.
func (b *Bus) WaitAny(ctx context.Context, want Set, timeout time.Duration) (Set, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := b.clock.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.Chan()
	}

	for {
		b.mu.Lock()
		if fired := b.bits & want; fired != 0 {
			b.bits &^= fired
			b.mu.Unlock()
			return fired, nil
		}
		changed := b.changed
		b.mu.Unlock()

		select {
		case <-changed:
		case <-deadline:
			return 0, ErrTimeout
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}
