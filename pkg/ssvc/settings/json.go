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
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrParse is returned for settings documents that are not valid JSON.
var ErrParse = errors.New("malformed settings document")

// MarshalJSON encodes a pair as [open, period].
func (p Pair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Open, p.Period})
}

func (p *Pair) UnmarshalJSON(data []byte) error {
	var raw []float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("pair: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("pair: want 2 values, got %d", len(raw))
	}
	p.Open = raw[0]
	p.Period = toInt(raw[1])
	return nil
}

func (t Triple) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]any{t.A, t.B, t.Period})
}

// UnmarshalJSON leaves missing trailing values at zero.
func (t *Triple) UnmarshalJSON(data []byte) error {
	var raw []float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parallel_v3 item: %w", err)
	}
	*t = Triple{}
	if len(raw) > 0 {
		t.A = raw[0]
	}
	if len(raw) > 1 {
		t.B = raw[1]
	}
	if len(raw) > 2 {
		t.Period = toInt(raw[2])
	}
	return nil
}

// Flag is a boolean the controller may report as 0/1.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = Flag(b)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("flag: %w", err)
	}
	*f = n != 0
	return nil
}

// Document is the JSON form of Settings. A nil field is absent: on decode it
// leaves the stored value alone, on encode it is omitted.
type Document struct {
	Heads            *Pair     `json:"heads,omitempty"`
	Hearts           *Pair     `json:"hearts,omitempty"`
	LateHeads        *Pair     `json:"late_heads,omitempty"`
	Tails            *Pair     `json:"tails,omitempty"`
	TailsTemp        *float64  `json:"tails_temp,omitempty"`
	ValveBW          *[3]int   `json:"valve_bw,omitempty"`
	Hyst             *float64  `json:"hyst,omitempty"`
	Decrement        *float64  `json:"decrement,omitempty"`
	Formula          *Flag     `json:"formula,omitempty"`
	TankMmHg         *float64  `json:"tank_mmhg,omitempty"`
	HeadsTimer       *float64  `json:"heads_timer,omitempty"`
	LateHeadsTimer   *float64  `json:"late_heads_timer,omitempty"`
	HeartsTimer      *float64  `json:"hearts_timer,omitempty"`
	StartDelay       *float64  `json:"start_delay,omitempty"`
	HeartsFinishTemp *float64  `json:"hearts_finish_temp,omitempty"`
	FormulaStartTemp *float64  `json:"formula_start_temp,omitempty"`
	Sound            *Flag     `json:"sound,omitempty"`
	Pressure         *Flag     `json:"pressure,omitempty"`
	RelayInverted    *Flag     `json:"relay_inverted,omitempty"`
	RelayAutostart   *Flag     `json:"relay_autostart,omitempty"`
	AutoResume       *Flag     `json:"autoresume,omitempty"`
	AutoMode         *Flag     `json:"auto_mode,omitempty"`
	HeartsTempShift  *float64  `json:"hearts_temp_shift,omitempty"`
	HeartsPause      *Flag     `json:"hearts_pause,omitempty"`
	Tp2Shift         *float64  `json:"tp2_shift,omitempty"`
	TpFilter         *Flag     `json:"tp_filter,omitempty"`
	SignalTp1Control *Flag     `json:"signal_tp1_control,omitempty"`
	SignalInverted   *Flag     `json:"signal_inverted,omitempty"`
	Tp1ControlTemp   *float64  `json:"tp1_control_temp,omitempty"`
	Tp1ControlStart  *Flag     `json:"tp1_control_start,omitempty"`
	StabLimitTime    *float64  `json:"stab_limit_time,omitempty"`
	StabLimitFinish  *Flag     `json:"stab_limit_finish,omitempty"`
	Backlight        *string   `json:"backlight,omitempty"`
	ReleaseTimer     *float64  `json:"release_timer,omitempty"`
	ReleaseSpeed     *float64  `json:"release_speed,omitempty"`
	HeadsFinal       *float64  `json:"heads_final,omitempty"`
	Parallel         *Pair     `json:"parallel,omitempty"`
	ParallelV1       *Pair     `json:"parallel_v1,omitempty"`
	ParallelV3       *[]Triple `json:"parallel_v3,omitempty"`
}

func ptr[T any](v T) *T {
	return &v
}

func flag(v bool) *Flag {
	f := Flag(v)
	return &f
}

// ToDocument encodes every field. late_heads and tails are omitted while
// unset, tails_temp while not positive, and the parallel settings while
// empty.
func (s Settings) ToDocument() Document {
	doc := Document{
		Heads:            ptr(s.Heads),
		Hearts:           ptr(s.Hearts),
		ValveBW:          ptr(s.ValveBW),
		Hyst:             ptr(s.Hyst),
		Decrement:        ptr(float64(s.Decrement)),
		Formula:          flag(s.Formula),
		TankMmHg:         ptr(float64(s.TankMmHg)),
		HeadsTimer:       ptr(float64(s.HeadsTimer)),
		LateHeadsTimer:   ptr(float64(s.LateHeadsTimer)),
		HeartsTimer:      ptr(float64(s.HeartsTimer)),
		StartDelay:       ptr(float64(s.StartDelay)),
		HeartsFinishTemp: ptr(s.HeartsFinishTemp),
		FormulaStartTemp: ptr(s.FormulaStartTemp),
		Sound:            flag(s.Sound),
		Pressure:         flag(s.Pressure),
		RelayInverted:    flag(s.RelayInverted),
		RelayAutostart:   flag(s.RelayAutostart),
		AutoResume:       flag(s.AutoResume),
		AutoMode:         flag(s.AutoMode),
		HeartsTempShift:  ptr(s.HeartsTempShift),
		HeartsPause:      flag(s.HeartsPause),
		Tp2Shift:         ptr(s.Tp2Shift),
		TpFilter:         flag(s.TpFilter),
		SignalTp1Control: flag(s.SignalTp1Control),
		SignalInverted:   flag(s.SignalInverted),
		Tp1ControlTemp:   ptr(s.Tp1ControlTemp),
		Tp1ControlStart:  flag(s.Tp1ControlStart),
		StabLimitTime:    ptr(float64(s.StabLimitTime)),
		StabLimitFinish:  flag(s.StabLimitFinish),
		Backlight:        ptr(s.Backlight),
		ReleaseTimer:     ptr(float64(s.ReleaseTimer)),
		ReleaseSpeed:     ptr(s.ReleaseSpeed),
		HeadsFinal:       ptr(s.HeadsFinal),
	}
	if s.LateHeads.isSet() {
		doc.LateHeads = ptr(s.LateHeads)
	}
	if s.Tails.isSet() {
		doc.Tails = ptr(s.Tails)
	}
	if s.TailsTemp > 0 {
		doc.TailsTemp = ptr(s.TailsTemp)
	}
	if !s.Parallel.isZero() {
		doc.Parallel = ptr(s.Parallel)
	}
	if !s.ParallelV1.isZero() {
		doc.ParallelV1 = ptr(s.ParallelV1)
	}
	if len(s.ParallelV3) > 0 {
		doc.ParallelV3 = ptr(s.Clone().ParallelV3)
	}
	return doc
}

// MarshalJSON encodes the settings object.
func (s Settings) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ToDocument())
}

// Merge copies every present field of doc into s without clamping; the
// values come from the controller or from a stored snapshot of it.
func (s *Settings) Merge(doc Document) {
	mergePair(&s.Heads, doc.Heads)
	mergePair(&s.Hearts, doc.Hearts)
	mergePair(&s.LateHeads, doc.LateHeads)
	mergePair(&s.Tails, doc.Tails)
	mergePair(&s.Parallel, doc.Parallel)
	mergePair(&s.ParallelV1, doc.ParallelV1)
	if doc.ValveBW != nil {
		s.ValveBW = *doc.ValveBW
	}
	if doc.ParallelV3 != nil {
		v3 := *doc.ParallelV3
		if len(v3) > MaxParallelV3 {
			v3 = v3[:MaxParallelV3]
		}
		s.ParallelV3 = append([]Triple(nil), v3...)
	}

	mergeFloat(&s.TailsTemp, doc.TailsTemp)
	mergeFloat(&s.Hyst, doc.Hyst)
	mergeFloat(&s.HeartsFinishTemp, doc.HeartsFinishTemp)
	mergeFloat(&s.FormulaStartTemp, doc.FormulaStartTemp)
	mergeFloat(&s.HeartsTempShift, doc.HeartsTempShift)
	mergeFloat(&s.Tp2Shift, doc.Tp2Shift)
	mergeFloat(&s.Tp1ControlTemp, doc.Tp1ControlTemp)
	mergeFloat(&s.ReleaseSpeed, doc.ReleaseSpeed)
	mergeFloat(&s.HeadsFinal, doc.HeadsFinal)

	mergeInt(&s.Decrement, doc.Decrement)
	mergeInt(&s.TankMmHg, doc.TankMmHg)
	mergeInt(&s.HeartsTimer, doc.HeartsTimer)
	mergeInt(&s.HeadsTimer, doc.HeadsTimer)
	mergeInt(&s.LateHeadsTimer, doc.LateHeadsTimer)
	mergeInt(&s.StartDelay, doc.StartDelay)
	mergeInt(&s.ReleaseTimer, doc.ReleaseTimer)
	mergeInt(&s.StabLimitTime, doc.StabLimitTime)

	mergeFlag(&s.Formula, doc.Formula)
	mergeFlag(&s.Sound, doc.Sound)
	mergeFlag(&s.Pressure, doc.Pressure)
	mergeFlag(&s.RelayInverted, doc.RelayInverted)
	mergeFlag(&s.RelayAutostart, doc.RelayAutostart)
	mergeFlag(&s.AutoResume, doc.AutoResume)
	mergeFlag(&s.AutoMode, doc.AutoMode)
	mergeFlag(&s.HeartsPause, doc.HeartsPause)
	mergeFlag(&s.TpFilter, doc.TpFilter)
	mergeFlag(&s.SignalTp1Control, doc.SignalTp1Control)
	mergeFlag(&s.SignalInverted, doc.SignalInverted)
	mergeFlag(&s.Tp1ControlStart, doc.Tp1ControlStart)
	mergeFlag(&s.StabLimitFinish, doc.StabLimitFinish)

	if doc.Backlight != nil {
		s.Backlight = *doc.Backlight
	}
}

func mergePair(dst *Pair, src *Pair) {
	if src != nil {
		*dst = *src
	}
}

func mergeFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

// mergeInt saturates to the range of T, which floors unsigned fields at
// zero. NaN is skipped.
func mergeInt[T uint8 | uint32 | int](dst *T, src *float64) {
	if src == nil || math.IsNaN(*src) {
		return
	}
	lo, hi := float64(math.MinInt32), float64(math.MaxInt32)
	switch any(*dst).(type) {
	case uint8:
		lo, hi = 0, math.MaxUint8
	case uint32:
		lo, hi = 0, math.MaxUint32
	}
	*dst = T(math.Min(math.Max(math.Round(*src), lo), hi))
}

func mergeFlag(dst *bool, src *Flag) {
	if src != nil {
		*dst = bool(*src)
	}
}

// ParseDocument decodes a settings object. When the object wraps the
// settings under "ssvcSettings", as stored profiles do, the inner object
// is decoded instead.
func ParseDocument(data []byte) (Document, error) {
	var wrapper struct {
		Inner json.RawMessage `json:"ssvcSettings"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if len(wrapper.Inner) > 0 && wrapper.Inner[0] == '{' {
		data = wrapper.Inner
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return doc, nil
}
