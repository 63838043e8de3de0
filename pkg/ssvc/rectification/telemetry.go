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
	"encoding/json"
	"math"

	"github.com/ssvc-open-connect/gateway/pkg/ssvc/settings"
)

// frame is one telemetry document. Pointer fields are nil when absent.
type frame struct {
	PID        *float64       `json:"pid"`
	Event      *string        `json:"event"`
	Common     *frameCommon   `json:"common"`
	Tp1Target  *float64       `json:"tp1_target"`
	Tp2Target  *float64       `json:"tp2_target"`
	Countdown  *string        `json:"countdown"`
	Release    *string        `json:"release"`
	Time       *string        `json:"time"`
	Open       *float64       `json:"open"`
	Period     *float64       `json:"period"`
	TankMmHg   *float64       `json:"tank_mmhg"`
	Tp1Sap     *float64       `json:"tp1_sap"`
	Tp2Sap     *float64       `json:"tp2_sap"`
	Hysteresis *float64       `json:"hysteresis"`
	V1         *float64       `json:"v1"`
	V2         *float64       `json:"v2"`
	V3         *float64       `json:"v3"`
	Alc        *float64       `json:"alc"`
	Stop       *settings.Flag `json:"stop"`
	Stops      *float64       `json:"stops"`
	Type       string         `json:"type"`
}

type frameCommon struct {
	MmHg   *float64       `json:"mmhg"`
	Tp1    *float64       `json:"tp1"`
	Tp2    *float64       `json:"tp2"`
	Relay  *settings.Flag `json:"relay"`
	Signal *settings.Flag `json:"signal"`
}

func parseFrame(text string) (frame, error) {
	var f frame
	err := json.Unmarshal([]byte(text), &f)
	return f, err
}

// Common holds the sensor readings every telemetry line carries.
type Common struct {
	MmHg   int     `json:"mmhg"`
	Tp1    float64 `json:"tp1"`
	Tp2    float64 `json:"tp2"`
	Relay  bool    `json:"relay"`
	Signal bool    `json:"signal"`
}

// Metrics is the last known value of every telemetry field.
type Metrics struct {
	Type       string  `json:"type"`
	Countdown  string  `json:"countdown"`
	Release    string  `json:"release"`
	Time       string  `json:"time"`
	Event      Event   `json:"event"`
	Common     Common  `json:"common"`
	Tp1Target  float64 `json:"tp1_target"`
	Tp2Target  float64 `json:"tp2_target"`
	Open       float64 `json:"open"`
	Tp1Sap     float64 `json:"tp1_sap"`
	Tp2Sap     float64 `json:"tp2_sap"`
	Hysteresis float64 `json:"hysteresis"`
	Alc        float64 `json:"alc"`
	Period     int     `json:"period"`
	TankMmHg   int     `json:"tank_mmhg"`
	V1         int     `json:"v1"`
	V2         int     `json:"v2"`
	V3         int     `json:"v3"`
	Stops      int     `json:"stops"`
	Stop       bool    `json:"stop"`
}

func (m *Metrics) merge(f frame) {
	m.Type = f.Type
	if f.Event != nil {
		m.Event = ParseEvent(*f.Event)
	} else {
		m.Event = EventEmpty
	}
	if c := f.Common; c != nil {
		setInt(&m.Common.MmHg, c.MmHg)
		setFloat(&m.Common.Tp1, c.Tp1)
		setFloat(&m.Common.Tp2, c.Tp2)
		setFlag(&m.Common.Relay, c.Relay)
		setFlag(&m.Common.Signal, c.Signal)
	}
	setFloat(&m.Tp1Target, f.Tp1Target)
	setFloat(&m.Tp2Target, f.Tp2Target)
	setString(&m.Countdown, f.Countdown)
	setString(&m.Release, f.Release)
	setString(&m.Time, f.Time)
	setFloat(&m.Open, f.Open)
	setInt(&m.Period, f.Period)
	setInt(&m.TankMmHg, f.TankMmHg)
	setFloat(&m.Tp1Sap, f.Tp1Sap)
	setFloat(&m.Tp2Sap, f.Tp2Sap)
	setFloat(&m.Hysteresis, f.Hysteresis)
	setInt(&m.V1, f.V1)
	setInt(&m.V2, f.V2)
	setInt(&m.V3, f.V3)
	setFloat(&m.Alc, f.Alc)
	setFlag(&m.Stop, f.Stop)
	setInt(&m.Stops, f.Stops)
}

func setFloat(dst, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *float64) {
	if src != nil {
		*dst = int(math.Round(*src))
	}
}

func setString(dst, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setFlag(dst *bool, src *settings.Flag) {
	if src != nil {
		*dst = bool(*src)
	}
}
