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
	"math"
)

// Status is the run overview shown by the UI.
type Status struct {
	Stages           map[string]string `json:"stages"`
	Stage            string            `json:"stage"`
	StageDescription string            `json:"stageDescription"`
	Status           string            `json:"status"`
	StartTime        string            `json:"startTime"`
	EndTime          string            `json:"endTime"`
	PreviousStage    string            `json:"previousStage"`
	PID              int               `json:"pid"`
}

func (p *Process) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	stages := make(map[string]string, len(p.history))
	for stage, state := range p.history {
		if stage != StageEmpty {
			stages[string(stage)] = string(state)
		}
	}
	return Status{
		Stages:           stages,
		Stage:            string(p.current),
		StageDescription: p.current.Description(),
		Status:           string(p.state),
		StartTime:        p.started,
		EndTime:          p.ended,
		PreviousStage:    string(p.previous),
		PID:              p.pid,
	}
}

// Metrics returns the last known telemetry values.
func (p *Process) Metrics() Metrics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.metrics
}

// Volumes returns the collected volume per stage in ml.
func (p *Process) Volumes() map[Stage]int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[Stage]int, len(p.volumes))
	for k, v := range p.volumes {
		out[k] = v
	}
	return out
}

type ReportCommon struct {
	MmHg           int     `json:"mmhg,omitempty"`
	Tp1            float64 `json:"tp1"`
	Tp2            float64 `json:"tp2"`
	Relay          bool    `json:"relay"`
	Signal         bool    `json:"signal"`
	HeatingOn      bool    `json:"heatingOn"`
	OverclockingOn bool    `json:"overclockingOn"`
}

// Report is the telemetry document republished to MQTT and the UI. Zero
// readings are left out.
type Report struct {
	Volume      map[string]int `json:"volume"`
	ValveOpen   *int           `json:"valveOpen,omitempty"`
	VolumeSpeed *int           `json:"volumeSpeed,omitempty"`
	Type        string         `json:"type"`
	StartTime   string         `json:"start_time,omitempty"`
	EndTime     string         `json:"end_time,omitempty"`
	Countdown   string         `json:"countdown,omitempty"`
	Release     string         `json:"release,omitempty"`
	Time        string         `json:"time,omitempty"`
	Event       string         `json:"event,omitempty"`
	Info        string         `json:"info,omitempty"`
	Common      ReportCommon   `json:"common"`
	Tp1Target   float64        `json:"tp1_target,omitempty"`
	Tp2Target   float64        `json:"tp2_target,omitempty"`
	Open        float64        `json:"open,omitempty"`
	Hysteresis  float64        `json:"hysteresis"`
	Alc         float64        `json:"alc,omitempty"`
	PID         int            `json:"pid,omitempty"`
	TankMmHg    int            `json:"tank_mmhg,omitempty"`
	Period      int            `json:"period,omitempty"`
	V1          int            `json:"v1,omitempty"`
	V2          int            `json:"v2,omitempty"`
	V3          int            `json:"v3,omitempty"`
	Stops       int            `json:"stops"`
	Stop        bool           `json:"stop"`
}

// Report combines the metrics with values derived from the settings.
func (p *Process) Report() Report {
	var cfg struct {
		bw             [3]int
		relayInverted  bool
		signalInverted bool
		supportsTails  bool
	}
	if p.opts.Settings != nil {
		s := p.opts.Settings.Snapshot()
		cfg.bw = s.ValveBW
		cfg.relayInverted = s.RelayInverted
		cfg.signalInverted = s.SignalInverted
		cfg.supportsTails = p.opts.Settings.Controller().SupportsTails
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	m := p.metrics

	r := Report{
		Type:       m.Type,
		PID:        p.pid,
		StartTime:  p.started,
		EndTime:    p.ended,
		TankMmHg:   m.TankMmHg,
		Tp1Target:  m.Tp1Target,
		Tp2Target:  m.Tp2Target,
		Countdown:  m.Countdown,
		Release:    m.Release,
		Time:       m.Time,
		Open:       math.Max(m.Open, 0),
		Period:     max(m.Period, 0),
		V1:         max(m.V1, 0),
		V2:         max(m.V2, 0),
		V3:         max(m.V3, 0),
		Stop:       m.Stop,
		Stops:      m.Stops,
		Hysteresis: m.Hysteresis,
		Alc:        m.Alc,
		Common: ReportCommon{
			MmHg:           m.Common.MmHg,
			Tp1:            preferSap(m.Tp1Sap, m.Common.Tp1),
			Tp2:            preferSap(m.Tp2Sap, m.Common.Tp2),
			Relay:          m.Common.Relay,
			Signal:         m.Common.Signal,
			HeatingOn:      m.Common.Relay != cfg.relayInverted,
			OverclockingOn: m.Common.Signal == cfg.signalInverted,
		},
	}

	if m.Period > 0 {
		open := ValveOpen(m.Open, m.Period)
		r.ValveOpen = &open
		if valve := valveFor(p.current); valve >= 0 && cfg.bw[valve] != 0 {
			speed := cfg.bw[valve] * open / 10000
			r.VolumeSpeed = &speed
		}
	}

	r.Volume = map[string]int{
		string(StageHeads):  p.volumes[StageHeads],
		string(StageHearts): p.volumes[StageHearts],
	}
	if cfg.supportsTails {
		r.Volume[string(StageTails)] = p.volumes[StageTails]
	} else {
		r.Volume[string(StageLateHeads)] = p.volumes[StageLateHeads]
	}

	if m.Event != EventEmpty {
		r.Event = string(m.Event)
		r.Info = m.Event.Description()
	}
	return r
}

// ValveOpen is the valve duty cycle in hundredths of a percent.
func ValveOpen(open float64, period int) int {
	return int(math.Round(100 * open / float64(period) * 100))
}

func preferSap(sap, raw float64) float64 {
	if sap != 0 {
		return sap
	}
	return raw
}
