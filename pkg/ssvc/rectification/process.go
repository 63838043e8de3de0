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

package rectification

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/ssvc-open-connect/gateway/pkg/helpers/syncutil"
	"github.com/ssvc-open-connect/gateway/pkg/ssvc/settings"
	"github.com/ssvc-open-connect/gateway/pkg/ssvc/signals"
)

// TimeFormat is the layout of run start and end timestamps.
const TimeFormat = "2006-01-02 15:04:05"

// Messages supplies the most recent telemetry document.
type Messages interface {
	LastMessage() string
}

// SettingsSource supplies the calibration and inversion flags the metrics
// depend on.
type SettingsSource interface {
	Snapshot() settings.Settings
	Controller() settings.Controller
}

type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retain bool) error
}

// Sink receives every report, typically for the WebSocket stream.
type Sink interface {
	Telemetry(frame any)
}

type Options struct {
	Messages  Messages
	Bus       *signals.Bus
	Settings  SettingsSource
	Clock     clockwork.Clock
	Publisher Publisher
	Sink      Sink
	Location  *time.Location
	// Topic is where reports are published. Empty disables publishing.
	Topic string
}

// Process tracks the controller's run. Telemetry is applied by a single
// consumer; the snapshots may be read from anywhere.
type Process struct {
	opts     Options
	history  map[Stage]State
	volumes  map[Stage]int
	metrics  Metrics
	current  Stage
	previous Stage
	state    State
	started  string
	ended    string
	event    Event
	pid      int
	mu       syncutil.RWMutex
}

func NewProcess(opts Options) (*Process, error) {
	if opts.Messages == nil {
		return nil, errors.New("process requires a message source")
	}
	if opts.Bus == nil {
		return nil, errors.New("process requires a signal bus")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Process{
		opts:     opts,
		history:  make(map[Stage]State),
		volumes:  make(map[Stage]int),
		current:  StageEmpty,
		previous: StageEmpty,
		state:    StateIdle,
	}, nil
}

// Run applies every telemetry document the transport announces until ctx
// is done.
func (p *Process) Run(ctx context.Context) error {
	want := signals.SetOf(signals.TelemetryReady)
	for {
		if _, err := p.opts.Bus.WaitAny(ctx, want, 0); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if p.Handle(p.opts.Messages.LastMessage()) {
			p.publish()
		}
	}
}

func (p *Process) now() string {
	return p.opts.Clock.Now().In(p.opts.Location).Format(TimeFormat)
}

// Handle applies one telemetry document. It reports false when the document
// was ignored.
func (p *Process) Handle(text string) bool {
	f, err := parseFrame(text)
	if err != nil {
		log.Warn().Err(err).Msg("failed to decode telemetry")
		return false
	}
	stage := ParseStage(f.Type)
	if stage == StageSettings {
		log.Debug().Msg("controller settings menu is open")
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.trackRun(f, stage)

	if stage != p.current {
		log.Info().Str("from", string(p.current)).Str("to", string(stage)).Msg("stage changed")
		p.advance(p.current, StateFinished)
		p.previous = p.current
		p.current = stage
		p.skipPassed(stage)
		p.advance(stage, StateRunning)
	}
	if stage == StageError {
		log.Error().Str("type", f.Type).Msg("unknown stage in telemetry")
		return false
	}

	p.trackEvent(f.Event)

	p.advance(p.current, StateRunning)

	p.metrics.merge(f)
	p.recalculateVolume()
	return true
}

func (p *Process) trackRun(f frame, stage Stage) {
	if f.PID != nil {
		pid := int(*f.PID)
		if pid == 0 || pid == p.pid {
			return
		}
		log.Info().Int("pid", pid).Msg("run started")
		p.pid = pid
		p.state = StateRunning
		p.started = p.now()
		p.ended = ""
		clear(p.history)
		clear(p.volumes)
		p.previous = StageEmpty
		return
	}
	if stage != StageWaiting {
		return
	}
	if p.pid != 0 {
		log.Info().Int("pid", p.pid).Msg("run finished")
		p.pid = 0
		p.state = StateFinished
		p.ended = p.now()
		return
	}
	p.state = StateIdle
	p.started = ""
	p.ended = ""
}

// trackEvent applies an event when it appears and undoes its effect on the
// first document without one.
func (p *Process) trackEvent(raw *string) {
	if raw == nil {
		if p.event != EventEmpty {
			if p.event.pauses() || p.event.sensorError() {
				p.state = StateRunning
			}
			p.event = EventEmpty
		}
		return
	}

	ev := ParseEvent(*raw)
	log.Info().Str("event", string(ev)).Msg("controller event")
	switch {
	case ev.pauses():
		p.state = StatePaused
	case ev == EventRemoteStop:
		p.state = StateStopped
	case ev.sensorError():
		p.state = StateError
	}
	if stage, ok := ev.finishedStage(); ok {
		p.advance(stage, StateFinished)
	}
	p.event = ev
}

// advance moves a stage's history entry forward, never back.
func (p *Process) advance(stage Stage, state State) {
	if stage == StageEmpty {
		return
	}
	if historyRank(state) > historyRank(p.history[stage]) {
		p.history[stage] = state
	}
}

// collectionOrder is the order a run moves through the main cuts.
var collectionOrder = []Stage{StageHeads, StageHearts, StageTails}

// skipPassed marks the cuts before stage that never ran in this run.
func (p *Process) skipPassed(stage Stage) {
	i := slices.Index(collectionOrder, stage)
	for _, s := range collectionOrder[:max(i, 0)] {
		if _, seen := p.history[s]; !seen {
			p.history[s] = StateSkipped
		}
	}
}

// valveFor is the valve index collecting a stage, or -1.
func valveFor(stage Stage) int {
	switch stage {
	case StageHeads:
		return 0
	case StageHearts:
		return 1
	case StageTails, StageLateHeads:
		return 2
	default:
		return -1
	}
}

func (p *Process) recalculateVolume() {
	valve := valveFor(p.current)
	if valve < 0 || p.opts.Settings == nil {
		return
	}
	bw := p.opts.Settings.Snapshot().ValveBW
	counters := [3]int{p.metrics.V1, p.metrics.V2, p.metrics.V3}
	p.volumes[p.current] = bw[valve] * counters[valve] / 3600
}

func (p *Process) publish() {
	report := p.Report()
	if p.opts.Sink != nil {
		p.opts.Sink.Telemetry(report)
	}
	if p.opts.Publisher == nil || p.opts.Topic == "" {
		return
	}
	payload, err := json.Marshal(report)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode telemetry report")
		return
	}
	if err := p.opts.Publisher.Publish(p.opts.Topic, payload, 0, false); err != nil {
		log.Warn().Err(err).Msg("failed to publish telemetry")
	}
}
