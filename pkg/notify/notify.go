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

// Package notify carries gateway events to live subscribers. Notifications
// and telemetry frames are pushed into one source channel and a Broker fans
// them out without letting a slow consumer block the producers.
package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Severity uint8

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", uint8(s))
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s Severity) level() zerolog.Level {
	switch s {
	case Warning:
		return zerolog.WarnLevel
	case Error:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

const (
	TypeNotification = "notification"
	TypeTelemetry    = "telemetry"
)

// Message is one event on the broker.
type Message struct {
	Data any    `json:"data"`
	Type string `json:"type"`
}

type Notification struct {
	Time     time.Time `json:"time"`
	Message  string    `json:"message"`
	ID       string    `json:"id"`
	Severity Severity  `json:"severity"`
}

// Notifier feeds a broker source channel. Sends never block, a full channel
// drops the event.
type Notifier struct {
	out chan<- Message
	now func() time.Time
}

func NewNotifier(out chan<- Message) *Notifier {
	return &Notifier{out: out, now: time.Now}
}

// Push logs the message at its severity and forwards it to subscribers. A
// nil or zero Notifier only logs.
func (n *Notifier) Push(message string, severity Severity) {
	log.WithLevel(severity.level()).Str("severity", severity.String()).Msg(message)
	if n == nil || n.out == nil {
		return
	}
	n.send(Message{
		Type: TypeNotification,
		Data: Notification{
			ID:       uuid.NewString(),
			Time:     n.now(),
			Message:  message,
			Severity: severity,
		},
	})
}

// Telemetry forwards a telemetry frame to subscribers.
func (n *Notifier) Telemetry(frame any) {
	n.send(Message{Type: TypeTelemetry, Data: frame})
}

func (n *Notifier) send(msg Message) {
	if n == nil || n.out == nil {
		return
	}
	select {
	case n.out <- msg:
	default:
		log.Warn().Str("type", msg.Type).Msg("notification source full, dropping event")
	}
}
