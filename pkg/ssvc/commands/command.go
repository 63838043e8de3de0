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

// Package commands serializes outbound controller commands. One consumer
// pops commands in FIFO order, transmits each one, waits for the correlated
// response signal and retries on failure or timeout until the attempt
// budget is spent.
package commands

import (
	"errors"
	"time"

	"github.com/ssvc-open-connect/gateway/pkg/ssvc/signals"
)

var (
	ErrQueueFull       = errors.New("command queue full")
	ErrQueueClosed     = errors.New("command queue closed")
	ErrCommandTimeout  = errors.New("no controller response before timeout")
	ErrCommandRejected = errors.New("controller rejected command")
	ErrExhausted       = errors.New("command attempts exhausted")
	ErrUnknownCommand  = errors.New("unknown command")
)

type Kind uint8

const (
	At Kind = iota
	Next
	Pause
	Stop
	Start
	Resume
	Version
	GetSettings
	Set
	Status
	kindCount
)

var kindVerbs = [kindCount]string{
	At:          "AT",
	Next:        "NEXT",
	Pause:       "PAUSE",
	Stop:        "STOP",
	Start:       "START",
	Resume:      "RESUME",
	Version:     "VERSION",
	GetSettings: "GET_SETTINGS",
	Set:         "SET",
	Status:      "STATUS",
}

// String returns the protocol verb.
func (k Kind) String() string {
	if k >= kindCount {
		return "UNKNOWN"
	}
	return kindVerbs[k]
}

// Expected is the signal that acknowledges a command of this kind.
func (k Kind) Expected() signals.Signal {
	switch k {
	case GetSettings:
		return signals.SettingsReady
	case Version:
		return signals.VersionReady
	default:
		return signals.CommandOk
	}
}

// takesParams reports whether the line carries a parameter string.
func (k Kind) takesParams() bool {
	return k == Set || k == Status
}

type Command struct {
	Params   string
	Attempts int
	Timeout  time.Duration
	Kind     Kind
}

// Line renders the newline terminated protocol line.
func (c Command) Line() string {
	if c.Kind.takesParams() {
		return c.Kind.String() + " " + c.Params + "\n"
	}
	return c.Kind.String() + "\n"
}
