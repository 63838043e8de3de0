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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettings struct {
	ingestErr  error
	ingested   []string
	version    string
	api        float64
	mu         sync.Mutex
	apiSet     bool
	versionSet bool
}

func (f *fakeSettings) Ingest(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingested = append(f.ingested, text)
	return f.ingestErr
}

func (f *fakeSettings) SetControllerVersion(version string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.version = version
	f.versionSet = true
}

func (f *fakeSettings) SetControllerAPI(api float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.api = api
	f.apiSet = true
}

func TestSettingsReadyIngestsLastResponse(t *testing.T) {
	t.Parallel()

	settings := &fakeSettings{ingestErr: errors.New("bad")}
	in := &Interpreters{
		Responses: &fakeResponses{text: `{"type":"response","request":"GET_SETTINGS","settings":{}}`},
		Settings:  settings,
	}
	assert.True(t, in.settingsReady(context.Background(), Command{Kind: GetSettings}))
	assert.Equal(t, []string{`{"type":"response","request":"GET_SETTINGS","settings":{}}`}, settings.ingested)
}

func TestVersionReady(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		response    string
		wantVersion string
		wantAPI     float64
		wantOK      bool
		wantAPISet  bool
	}{
		{
			name:        "string api",
			response:    `{"type":"response","request":"VERSION","version":"2.2.1","api":"2.1"}`,
			wantOK:      true,
			wantVersion: "2.2.1",
			wantAPI:     2.1,
			wantAPISet:  true,
		},
		{
			name:        "numeric api",
			response:    `{"type":"response","request":"VERSION","version":"2.3.0","api":1.5}`,
			wantOK:      true,
			wantVersion: "2.3.0",
			wantAPI:     1.5,
			wantAPISet:  true,
		},
		{
			name:        "version only",
			response:    `{"type":"response","request":"VERSION","version":"2.2.4"}`,
			wantOK:      true,
			wantVersion: "2.2.4",
		},
		{
			name:     "neither field",
			response: `{"type":"response","request":"VERSION"}`,
		},
		{
			name:     "null version",
			response: `{"type":"response","request":"VERSION","version":null}`,
		},
		{
			name:     "numeric version",
			response: `{"type":"response","request":"VERSION","version":2}`,
		},
		{
			name:       "null version with api",
			response:   `{"type":"response","request":"VERSION","version":null,"api":"2.0"}`,
			wantOK:     true,
			wantAPI:    2.0,
			wantAPISet: true,
		},
		{
			name:     "not json",
			response: `VERSION 2.2`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			settings := &fakeSettings{}
			called := make(chan string, 1)
			in := &Interpreters{
				Responses: &fakeResponses{text: tt.response},
				Versions:  settings,
				OnVersion: func(version string, _ float64) { called <- version },
			}

			assert.Equal(t, tt.wantOK, in.versionReady(context.Background(), Command{Kind: Version}))
			assert.Equal(t, tt.wantVersion, settings.version)
			assert.Equal(t, tt.wantVersion != "", settings.versionSet)
			assert.Equal(t, tt.wantAPISet, settings.apiSet)
			assert.InDelta(t, tt.wantAPI, settings.api, 1e-9)

			if tt.wantOK {
				select {
				case v := <-called:
					assert.Equal(t, tt.wantVersion, v)
				case <-time.After(time.Second):
					t.Fatal("version hook not called")
				}
			} else {
				assert.Empty(t, called)
			}
		})
	}
}

func TestCommandOkSchedulesResyncForSet(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	var fired atomic.Int32
	resync := NewDebouncer(clock, DefaultResyncDelay, func() { fired.Add(1) })
	responses := &fakeResponses{}
	in := &Interpreters{Responses: responses, Resync: resync}

	responses.set(`{"type":"response","request":"AT","result":"OK"}`)
	assert.True(t, in.commandOk(context.Background(), Command{Kind: At}))
	assert.False(t, resync.Pending())

	responses.set(`{"type":"response","request":"SET","result":"OK"}`)
	assert.True(t, in.commandOk(context.Background(), Command{Kind: Set}))
	assert.True(t, resync.Pending())

	responses.set(`{"type":"response","request":"SET","result":"FAIL"}`)
	assert.False(t, in.commandOk(context.Background(), Command{Kind: Set}))

	resync.Stop()
	assert.False(t, resync.Pending())
	assert.Equal(t, int32(0), fired.Load())
}

func TestCommandErrorAlwaysFails(t *testing.T) {
	t.Parallel()
	assert.False(t, commandError(context.Background(), Command{Kind: Set}))
}

func TestDebouncerCoalescesTriggers(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	fired := make(chan struct{}, 4)
	d := NewDebouncer(clock, 30*time.Second, func() { fired <- struct{}{} })

	d.Trigger()
	clock.Advance(20 * time.Second)
	d.Trigger()
	clock.Advance(20 * time.Second)
	assert.Empty(t, fired)

	clock.Advance(10 * time.Second)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("debounced function not run")
	}
	assert.Eventually(t, func() bool { return !d.Pending() }, time.Second, time.Millisecond)
	assert.Empty(t, fired)
}

func TestParseAPILevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw    string
		want   float64
		wantOK bool
	}{
		{raw: `"2.1"`, want: 2.1, wantOK: true},
		{raw: `2`, want: 2, wantOK: true},
		{raw: `" 1.75 "`, want: 1.75, wantOK: true},
		{raw: `"beta"`},
		{raw: `true`},
		{raw: ``},
	}
	for _, tt := range tests {
		got, ok := parseAPILevel([]byte(tt.raw))
		assert.Equal(t, tt.wantOK, ok, tt.raw)
		assert.InDelta(t, tt.want, got, 1e-9, tt.raw)
	}
}

func TestRegisterInstallsAllInterpreters(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{})
	(&Interpreters{Responses: &fakeResponses{}, Settings: &fakeSettings{}, Versions: &fakeSettings{}}).Register(h.queue)
	for _, sig := range []string{"settings_ready", "version_ready", "command_ok", "command_error"} {
		found := false
		for s := range h.queue.interpreters {
			if s.String() == sig {
				found = true
			}
		}
		require.True(t, found, sig)
	}
}
