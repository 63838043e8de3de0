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

package commands

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Keepalive enqueues AT every interval after an initial delay until ctx is
// done. A non-positive interval returns immediately.
func Keepalive(ctx context.Context, clock clockwork.Clock, q *Queue, initial, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	next := initial
	for {
		timer := clock.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.Chan():
		}
		if err := q.At(); err != nil {
			log.Debug().Err(err).Msg("keepalive skipped")
		}
		next = interval
	}
}
