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

package settings

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
)

// Builder applies field updates to a copy of a snapshot. Every setter clamps
// its input and records a SET fragment only when the clamped value differs
// from the stored one. Nothing is sent; the caller decides what to do with
// Fragments and Settings.
type Builder struct {
	next  Settings
	frags []string
}

func NewBuilder(base Settings) *Builder {
	return &Builder{next: base.Clone()}
}

// Settings is the snapshot with every update applied.
func (b *Builder) Settings() Settings {
	return b.next.Clone()
}

// Fragments are the encoded changes in the order they were made.
func (b *Builder) Fragments() []string {
	return slices.Clone(b.frags)
}

func (b *Builder) emit(format string, args ...any) {
	frag := fmt.Sprintf(format, args...)
	log.Debug().Str("fragment", frag).Msg("settings fragment queued")
	b.frags = append(b.frags, frag)
}

func (b *Builder) setPair(key string, field *Pair, open float64, period int) *Builder {
	v := clampPair(open, period)
	if v != *field {
		*field = v
		b.emit("%s=[%.1f,%d]", key, v.Open, v.Period)
	}
	return b
}

func (b *Builder) SetHeads(open float64, period int) *Builder {
	return b.setPair("heads", &b.next.Heads, open, period)
}

func (b *Builder) SetHearts(open float64, period int) *Builder {
	return b.setPair("hearts", &b.next.Hearts, open, period)
}

func (b *Builder) SetLateHeads(open float64, period int) *Builder {
	return b.setPair("late_heads", &b.next.LateHeads, open, period)
}

func (b *Builder) SetTails(open float64, period int) *Builder {
	return b.setPair("tails", &b.next.Tails, open, period)
}

func (b *Builder) SetParallel(open float64, period int) *Builder {
	return b.setPair("parallel", &b.next.Parallel, open, period)
}

func (b *Builder) SetParallelV1(open float64, period int) *Builder {
	return b.setPair("parallel_v1", &b.next.ParallelV1, open, period)
}

func (b *Builder) setFloat(key, format string, field *float64, v, lo, hi float64) *Builder {
	v = clampFloat(v, lo, hi)
	if v != *field {
		*field = v
		b.emit("%s="+format, key, v)
	}
	return b
}

// SetHysteresis is encoded with two decimals, the other temperatures with one.
func (b *Builder) SetHysteresis(v float64) *Builder {
	return b.setFloat("hyst", "%.2f", &b.next.Hyst, v, 0, maxHyst)
}

func (b *Builder) SetTailsTemp(v float64) *Builder {
	return b.setFloat("tails_temp", "%.1f", &b.next.TailsTemp, v, 0, maxTemp)
}

func (b *Builder) SetHeartsFinishTemp(v float64) *Builder {
	return b.setFloat("hearts_finish_temp", "%.1f", &b.next.HeartsFinishTemp, v, 0, maxTemp)
}

func (b *Builder) SetFormulaStartTemp(v float64) *Builder {
	return b.setFloat("formula_start_temp", "%.1f", &b.next.FormulaStartTemp, v, minFormulaTemp, maxFormulaTemp)
}

func (b *Builder) SetReleaseSpeed(v float64) *Builder {
	return b.setFloat("release_speed", "%.1f", &b.next.ReleaseSpeed, v, 0, maxReleaseSpeed)
}

func (b *Builder) SetHeadsFinal(v float64) *Builder {
	return b.setFloat("heads_final", "%.1f", &b.next.HeadsFinal, v, 0, maxHeadsFinal)
}

func (b *Builder) setUint8(key string, field *uint8, v, hi int) *Builder {
	c := uint8(clampInt(v, 0, hi))
	if c != *field {
		*field = c
		b.emit("%s=%d", key, c)
	}
	return b
}

// SetDecrement takes a percentage.
func (b *Builder) SetDecrement(v int) *Builder {
	return b.setUint8("decrement", &b.next.Decrement, v, maxDecrement)
}

// SetTankMmHg takes the tank pressure above atmospheric in mmHg.
func (b *Builder) SetTankMmHg(v int) *Builder {
	return b.setUint8("tank_mmhg", &b.next.TankMmHg, v, maxTankMmHg)
}

// SetHeartsTimer takes minutes.
func (b *Builder) SetHeartsTimer(v int) *Builder {
	return b.setUint8("hearts_timer", &b.next.HeartsTimer, v, maxHeartsTimer)
}

func (b *Builder) setUint32(key string, field *uint32, v int64, hi int64) *Builder {
	c := uint32(min(max(v, 0), hi))
	if c != *field {
		*field = c
		b.emit("%s=%d", key, c)
	}
	return b
}

// SetHeadsTimer takes seconds.
func (b *Builder) SetHeadsTimer(v int64) *Builder {
	return b.setUint32("heads_timer", &b.next.HeadsTimer, v, maxStageTimer)
}

// SetLateHeadsTimer takes seconds.
func (b *Builder) SetLateHeadsTimer(v int64) *Builder {
	return b.setUint32("late_heads_timer", &b.next.LateHeadsTimer, v, maxStageTimer)
}

// SetStartDelay takes seconds.
func (b *Builder) SetStartDelay(v int64) *Builder {
	return b.setUint32("start_delay", &b.next.StartDelay, v, maxStartDelay)
}

// SetReleaseTimer takes seconds.
func (b *Builder) SetReleaseTimer(v int64) *Builder {
	c := int(min(max(v, 0), maxReleaseTimer))
	if c != b.next.ReleaseTimer {
		b.next.ReleaseTimer = c
		b.emit("release_timer=%d", c)
	}
	return b
}

func (b *Builder) SetFormula(enabled bool) *Builder {
	if enabled != b.next.Formula {
		b.next.Formula = enabled
		b.emit("formula=%d", boolInt(enabled))
	}
	return b
}

// SetValveBW takes the calibrated bandwidth of the three valves in ml/h.
func (b *Builder) SetValveBW(v1, v2, v3 int) *Builder {
	v := [3]int{
		clampInt(v1, 0, maxValveBandwidth),
		clampInt(v2, 0, maxValveBandwidth),
		clampInt(v3, 0, maxValveBandwidth),
	}
	if v != b.next.ValveBW {
		b.next.ValveBW = v
		b.emit("valve_bw=[%d,%d,%d]", v[0], v[1], v[2])
	}
	return b
}

// SetParallelV3 keeps at most MaxParallelV3 ranges.
func (b *Builder) SetParallelV3(values []Triple) *Builder {
	if len(values) > MaxParallelV3 {
		values = values[:MaxParallelV3]
	}
	next := make([]Triple, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v.A) || math.IsNaN(v.B) {
			continue
		}
		v.Period = max(v.Period, 0)
		next = append(next, v)
	}
	if slices.Equal(next, b.next.ParallelV3) {
		return b
	}
	b.next.ParallelV3 = next

	parts := make([]string, 0, len(next))
	for _, v := range next {
		parts = append(parts, fmt.Sprintf("[%.1f,%.1f,%d]", v.A, v.B, v.Period))
	}
	b.emit("parallel_v3=[%s]", strings.Join(parts, ","))
	return b
}

// The step setters adjust the running program. The controller does not
// report them back, so they are always emitted.

func (b *Builder) SetStepTemp(v float64) *Builder {
	b.emit("s_temp=%.1f", v)
	return b
}

func (b *Builder) SetStepHysteresis(v float64) *Builder {
	b.emit("s_hyst=%.2f", v)
	return b
}

func (b *Builder) SetStepSpeed(open float64, period int) *Builder {
	b.emit("s_speed=[%.1f,%d]", open, period)
	return b
}

func (b *Builder) SetStepDecrement(v int) *Builder {
	b.emit("s_decrement=%d", uint8(clampInt(v, 0, math.MaxUint8)))
	return b
}

func (b *Builder) SetStepTimer(v int64) *Builder {
	b.emit("s_timer=%d", uint32(min(max(v, 0), math.MaxUint32)))
	return b
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// MaxPayload is the longest SET payload the controller accepts.
const MaxPayload = 250

// Payloads joins fragments with "," into payloads of at most limit
// characters, keeping their order. A single fragment longer than limit gets
// a payload of its own.
func Payloads(frags []string, limit int) []string {
	var out []string
	var payload strings.Builder
	for _, frag := range frags {
		if payload.Len() > 0 && payload.Len()+len(frag)+1 > limit {
			out = append(out, payload.String())
			payload.Reset()
		}
		if payload.Len() > 0 {
			payload.WriteByte(',')
		}
		payload.WriteString(frag)
	}
	if payload.Len() > 0 {
		out = append(out, payload.String())
	}
	return out
}
