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
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/ssvc-open-connect/gateway/pkg/helpers/syncutil"
	"github.com/ssvc-open-connect/gateway/pkg/ssvc/signals"
)

const DefaultResyncDelay = 30 * time.Second

// Responses exposes the most recent command response text.
type Responses interface {
	LastResponse() string
}

// SettingsIngester loads a GET_SETTINGS response into the settings model.
type SettingsIngester interface {
	Ingest(text string) error
}

// VersionRecorder stores what the controller reported for VERSION.
type VersionRecorder interface {
	SetControllerVersion(version string)
	SetControllerAPI(api float64)
}

// Debouncer runs fn once, delay after the last Trigger.
type Debouncer struct {
	clock clockwork.Clock
	timer clockwork.Timer
	fn    func()
	delay time.Duration
	gen   uint64
	mu    syncutil.Mutex
}

func NewDebouncer(clock clockwork.Clock, delay time.Duration, fn func()) *Debouncer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Debouncer{clock: clock, delay: delay, fn: fn}
}

// Trigger starts the countdown or restarts a pending one.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()
	d.fn()
}

// Stop cancels a pending run.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Interpreters holds the reactions to each response signal.
type Interpreters struct {
	Responses Responses
	Settings  SettingsIngester
	Versions  VersionRecorder
	Resync    *Debouncer
	// OnVersion runs in its own goroutine after a VERSION response set
	// the version or the api level.
	OnVersion func(version string, api float64)
}

// Register installs one interpreter per response signal on q.
func (in *Interpreters) Register(q *Queue) {
	q.Register(signals.SettingsReady, in.settingsReady)
	q.Register(signals.VersionReady, in.versionReady)
	q.Register(signals.CommandOk, in.commandOk)
	q.Register(signals.CommandError, commandError)
}

func (in *Interpreters) settingsReady(_ context.Context, _ Command) bool {
	if err := in.Settings.Ingest(in.Responses.LastResponse()); err != nil {
		log.Warn().Err(err).Msg("failed to ingest controller settings")
	}
	return true
}

func (in *Interpreters) versionReady(_ context.Context, _ Command) bool {
	var resp struct {
		Version json.RawMessage `json:"version"`
		API     json.RawMessage `json:"api"`
	}
	if err := json.Unmarshal([]byte(in.Responses.LastResponse()), &resp); err != nil {
		log.Warn().Err(err).Msg("failed to parse version response")
		return false
	}

	updated := false
	version, ok := jsonString(resp.Version)
	if ok {
		in.Versions.SetControllerVersion(version)
		updated = true
	}
	api, ok := parseAPILevel(resp.API)
	if ok {
		in.Versions.SetControllerAPI(api)
		updated = true
	}
	if !updated {
		return false
	}

	log.Info().Str("version", version).Float64("api", api).Msg("controller version reported")
	if in.OnVersion != nil {
		go in.OnVersion(version, api)
	}
	return true
}

// jsonString decodes raw only when it holds a JSON string, so null and
// numbers are not taken as a version.
func jsonString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// parseAPILevel accepts "2.1" as well as 2.1.
func parseAPILevel(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return f, true
}

func (in *Interpreters) commandOk(_ context.Context, _ Command) bool {
	resp := in.Responses.LastResponse()
	if strings.Contains(resp, "SET") && in.Resync != nil {
		log.Debug().Msg("settings written, scheduling re-read")
		in.Resync.Trigger()
	}
	return strings.Contains(resp, "OK")
}

func commandError(_ context.Context, cmd Command) bool {
	log.Warn().Str("command", cmd.Kind.String()).Msg("controller reported command error")
	return false
}
