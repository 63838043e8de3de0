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

// Package settings holds the controller configuration model. Builder
// clamps and diffs field updates into SET fragments, Store owns the
// authoritative copy and dispatches the fragments to the command queue, and
// the JSON mapping serves the UI, profiles and the controller's own
// GET_SETTINGS response.
package settings

import (
	"math"
	"reflect"
	"slices"
	"strings"
)

// Pair is an [on-time, period] valve setting.
type Pair struct {
	Open   float64
	Period int
}

// Unset pairs are reported by firmware that lacks the field.
var unsetPair = Pair{Open: -1, Period: -1}

func (p Pair) isSet() bool {
	return p.Open > -1 || p.Period > -1
}

func (p Pair) isZero() bool {
	return p.Open == 0 && p.Period == 0
}

// Triple is one parallel_v3 range.
type Triple struct {
	A      float64
	B      float64
	Period int
}

const MaxParallelV3 = 4

// Settings is a snapshot of the controller tunables.
type Settings struct {
	Backlight  string
	ParallelV3 []Triple

	Heads      Pair
	Hearts     Pair
	LateHeads  Pair
	Tails      Pair
	Parallel   Pair
	ParallelV1 Pair
	ValveBW    [3]int

	Hyst             float64
	TailsTemp        float64
	HeartsFinishTemp float64
	FormulaStartTemp float64
	ReleaseSpeed     float64
	HeadsFinal       float64
	HeartsTempShift  float64
	Tp2Shift         float64
	Tp1ControlTemp   float64

	HeadsTimer     uint32
	LateHeadsTimer uint32
	StartDelay     uint32
	ReleaseTimer   int
	StabLimitTime  int
	Decrement      uint8
	TankMmHg       uint8
	HeartsTimer    uint8

	Formula          bool
	Sound            bool
	Pressure         bool
	RelayInverted    bool
	RelayAutostart   bool
	AutoResume       bool
	AutoMode         bool
	HeartsPause      bool
	TpFilter         bool
	SignalTp1Control bool
	SignalInverted   bool
	Tp1ControlStart  bool
	StabLimitFinish  bool
}

// Default is the model before the controller reported anything.
func Default() Settings {
	return Settings{
		LateHeads:    unsetPair,
		Tails:        unsetPair,
		ReleaseSpeed: -1,
		ReleaseTimer: -1,
		HeadsFinal:   -1,
	}
}

// Equal compares every field. A nil and an empty parallel_v3 are equal.
func (s Settings) Equal(o Settings) bool {
	if !slices.Equal(s.ParallelV3, o.ParallelV3) {
		return false
	}
	s.ParallelV3, o.ParallelV3 = nil, nil
	return reflect.DeepEqual(s, o)
}

// Clone returns a copy that shares no memory with s.
func (s Settings) Clone() Settings {
	s.ParallelV3 = slices.Clone(s.ParallelV3)
	return s
}

// Controller is what the controller reported about itself.
type Controller struct {
	Version       string
	API           float64
	APISupported  bool
	SupportsTails bool
}

// SupportsTails reports whether firmware version has the tails, release and
// heads_final fields instead of late_heads.
func SupportsTails(version string) bool {
	return strings.HasPrefix(version, "2.2")
}

// Ranges accepted by the controller.
const (
	maxValveOpen      = 99.9
	maxValvePeriod    = 999
	maxHyst           = 50.0
	maxDecrement      = 100
	maxTankMmHg       = 50
	maxStageTimer     = 86400
	maxHeartsTimer    = 30
	maxTemp           = 110.0
	minFormulaTemp    = 84.0
	maxFormulaTemp    = 100.0
	maxStartDelay     = 18000
	maxValveBandwidth = 20000
	maxReleaseSpeed   = 99.9
	maxReleaseTimer   = 1200
	maxHeadsFinal     = 99.9
)

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}

// toInt rounds v and saturates it to the int32 range before converting, so
// huge inputs clamp high instead of wrapping. NaN maps to 0.
func toInt(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(math.Min(math.Max(v, math.MinInt32), math.MaxInt32)))
}

// toInt64 is toInt for the unsigned 32 bit timer fields.
func toInt64(v float64) int64 {
	if math.IsNaN(v) {
		return 0
	}
	return int64(math.Round(math.Min(math.Max(v, -(1<<53)), 1<<53)))
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func clampPair(open float64, period int) Pair {
	return Pair{
		Open:   clampFloat(open, 0, maxValveOpen),
		Period: clampInt(period, 0, maxValvePeriod),
	}
}
