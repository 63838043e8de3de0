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
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSeverityString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		want string
		sev  Severity
	}{
		{sev: Info, want: "info"},
		{sev: Warning, want: "warning"},
		{sev: Error, want: "error"},
		{sev: Severity(9), want: "severity(9)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.sev.String())
	}
}

func TestNotificationJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Notification{Message: "hi", Severity: Warning})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"severity":"warning"`)
}

func TestPushDropsWhenFull(t *testing.T) {
	t.Parallel()

	source := make(chan Message, 1)
	n := NewNotifier(source)
	n.Push("first", Info)
	n.Push("second", Error)

	require.Len(t, source, 1)
	msg := <-source
	assert.Equal(t, TypeNotification, msg.Type)
	notif, ok := msg.Data.(Notification)
	require.True(t, ok)
	assert.Equal(t, "first", notif.Message)
	assert.NotEmpty(t, notif.ID)
}

func TestNilNotifierIsSafe(t *testing.T) {
	t.Parallel()

	var n *Notifier
	assert.NotPanics(t, func() {
		n.Push("x", Info)
		n.Telemetry(map[string]int{"a": 1})
	})
	assert.NotPanics(t, func() {
		(&Notifier{}).Push("x", Warning)
	})
}

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func TestBrokerBroadcastsToAllSubscribers(t *testing.T) {
	t.Parallel()

	source := make(chan Message, 4)
	b := NewBroker(source)
	first, _ := b.Subscribe(4)
	second, secondID := b.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	NewNotifier(source).Telemetry("frame")
	assert.Equal(t, "frame", receive(t, first).Data)
	assert.Equal(t, "frame", receive(t, second).Data)

	b.Unsubscribe(secondID)
	b.Unsubscribe(secondID)
	_, open := <-second
	assert.False(t, open)

	cancel()
	require.NoError(t, <-done)
	_, open = <-first
	assert.False(t, open)
}

func TestBrokerStopsWhenSourceCloses(t *testing.T) {
	t.Parallel()

	source := make(chan Message)
	b := NewBroker(source)
	sub, _ := b.Subscribe(1)

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()
	close(source)

	require.NoError(t, <-done)
	_, open := <-sub
	assert.False(t, open)
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	t.Parallel()

	b := NewBroker(nil)
	slow, _ := b.Subscribe(1)
	b.broadcast(Message{Type: TypeTelemetry, Data: 1})
	b.broadcast(Message{Type: TypeTelemetry, Data: 2})

	assert.Len(t, slow, 1)
	assert.Equal(t, 1, (<-slow).Data)
}
