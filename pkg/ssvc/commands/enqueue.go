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
	"fmt"
	"slices"
	"strings"
)

// The helpers below enqueue with the queue's default attempts and timeout.

func (q *Queue) At() error          { return q.Enqueue(At, "", 0, 0) }
func (q *Queue) Next() error        { return q.Enqueue(Next, "", 0, 0) }
func (q *Queue) Pause() error       { return q.Enqueue(Pause, "", 0, 0) }
func (q *Queue) Stop() error        { return q.Enqueue(Stop, "", 0, 0) }
func (q *Queue) Start() error       { return q.Enqueue(Start, "", 0, 0) }
func (q *Queue) Resume() error      { return q.Enqueue(Resume, "", 0, 0) }
func (q *Queue) Version() error     { return q.Enqueue(Version, "", 0, 0) }
func (q *Queue) GetSettings() error { return q.Enqueue(GetSettings, "", 0, 0) }

// Set enqueues a SET line carrying comma joined key=value fragments.
func (q *Queue) Set(params string) error {
	return q.Enqueue(Set, params, 0, 0)
}

// Status pushes text to the controller display.
func (q *Queue) Status(text string) error {
	return q.Enqueue(Status, EncodeStatusText(text), 0, 0)
}

var dispatchTable = map[string]func(q *Queue, params string) error{
	"at":             func(q *Queue, _ string) error { return q.At() },
	"next":           func(q *Queue, _ string) error { return q.Next() },
	"pause":          func(q *Queue, _ string) error { return q.Pause() },
	"stop":           func(q *Queue, _ string) error { return q.Stop() },
	"emergency_stop": func(q *Queue, _ string) error { return q.Stop() },
	"start":          func(q *Queue, _ string) error { return q.Start() },
	"resume":         func(q *Queue, _ string) error { return q.Resume() },
	"version":        func(q *Queue, _ string) error { return q.Version() },
	"get_settings":   func(q *Queue, _ string) error { return q.GetSettings() },
	"settings":       func(q *Queue, _ string) error { return q.GetSettings() },
	"status":         func(q *Queue, params string) error { return q.Status(params) },
	"set":            func(q *Queue, params string) error { return q.Set(params) },
}

// Dispatch enqueues a command by its lower case name, as received from the
// MQTT command topic or the REST API.
func (q *Queue) Dispatch(name, params string) error {
	fn, ok := dispatchTable[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return fn(q, params)
}

// CommandNames lists every name accepted by Dispatch.
func CommandNames() []string {
	names := make([]string, 0, len(dispatchTable))
	for name := range dispatchTable {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
