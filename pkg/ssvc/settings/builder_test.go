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
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderSkipsUnchangedValues(t *testing.T) {
	t.Parallel()

	b := NewBuilder(Default())
	b.SetHysteresis(0.25).SetHysteresis(0.25)
	b.SetHeads(10, 100).SetHeads(10, 100)
	assert.Equal(t, []string{"hyst=0.25", "heads=[10.0,100]"}, b.Fragments())

	again := NewBuilder(b.Settings())
	again.SetHysteresis(0.25).SetHeads(10, 100)
	assert.Empty(t, again.Fragments())
}

func TestBuilderDoesNotTouchBase(t *testing.T) {
	t.Parallel()

	base := Default()
	base.ParallelV3 = []Triple{{A: 1, B: 2, Period: 3}}
	b := NewBuilder(base)
	b.SetParallelV3([]Triple{{A: 4, B: 5, Period: 6}})
	b.SetHearts(1, 1)

	assert.Equal(t, []Triple{{A: 1, B: 2, Period: 3}}, base.ParallelV3)
	assert.Equal(t, Pair{}, base.Hearts)
	assert.Equal(t, Pair{Open: 1, Period: 1}, b.Settings().Hearts)
}

func TestBuilderClamps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		set  func(b *Builder)
		name string
		want string
	}{
		{name: "hyst high", set: func(b *Builder) { b.SetHysteresis(999) }, want: "hyst=50.00"},
		{name: "hyst negative", set: func(b *Builder) { b.SetHysteresis(-3) }, want: ""},
		{name: "decrement", set: func(b *Builder) { b.SetDecrement(250) }, want: "decrement=100"},
		{name: "tank", set: func(b *Builder) { b.SetTankMmHg(80) }, want: "tank_mmhg=50"},
		{name: "heads pair", set: func(b *Builder) { b.SetHeads(150, 5000) }, want: "heads=[99.9,999]"},
		{name: "hearts negative", set: func(b *Builder) { b.SetHearts(-1, 20) }, want: "hearts=[0.0,20]"},
		{name: "late heads", set: func(b *Builder) { b.SetLateHeads(-5, -5) }, want: "late_heads=[0.0,0]"},
		{name: "tails", set: func(b *Builder) { b.SetTails(120, 1000) }, want: "tails=[99.9,999]"},
		{name: "parallel", set: func(b *Builder) { b.SetParallel(100, 1) }, want: "parallel=[99.9,1]"},
		{name: "heads timer", set: func(b *Builder) { b.SetHeadsTimer(100000) }, want: "heads_timer=86400"},
		{name: "late heads timer", set: func(b *Builder) { b.SetLateHeadsTimer(90000) }, want: "late_heads_timer=86400"},
		{name: "hearts timer", set: func(b *Builder) { b.SetHeartsTimer(45) }, want: "hearts_timer=30"},
		{name: "start delay", set: func(b *Builder) { b.SetStartDelay(20000) }, want: "start_delay=18000"},
		{name: "tails temp", set: func(b *Builder) { b.SetTailsTemp(130) }, want: "tails_temp=110.0"},
		{name: "hearts finish temp", set: func(b *Builder) { b.SetHeartsFinishTemp(111) }, want: "hearts_finish_temp=110.0"},
		{name: "formula temp low", set: func(b *Builder) { b.SetFormulaStartTemp(20) }, want: "formula_start_temp=84.0"},
		{name: "formula temp high", set: func(b *Builder) { b.SetFormulaStartTemp(101) }, want: "formula_start_temp=100.0"},
		{name: "valve bw", set: func(b *Builder) { b.SetValveBW(-1, 30000, 500) }, want: "valve_bw=[0,20000,500]"},
		{name: "release speed", set: func(b *Builder) { b.SetReleaseSpeed(200) }, want: "release_speed=99.9"},
		{name: "release timer", set: func(b *Builder) { b.SetReleaseTimer(5000) }, want: "release_timer=1200"},
		{name: "heads final", set: func(b *Builder) { b.SetHeadsFinal(-4) }, want: "heads_final=0.0"},
		{name: "nan", set: func(b *Builder) { b.SetTailsTemp(math.NaN()) }, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := NewBuilder(Default())
			tt.set(b)
			if tt.want == "" {
				assert.Empty(t, b.Fragments())
				return
			}
			assert.Equal(t, []string{tt.want}, b.Fragments())
		})
	}
}

func TestBuilderStoresClampedValue(t *testing.T) {
	t.Parallel()

	b := NewBuilder(Default())
	b.SetHysteresis(999)
	assert.InDelta(t, 50.0, b.Settings().Hyst, 0)
}

func TestBuilderFormula(t *testing.T) {
	t.Parallel()

	b := NewBuilder(Default())
	b.SetFormula(false).SetFormula(true).SetFormula(true).SetFormula(false)
	assert.Equal(t, []string{"formula=1", "formula=0"}, b.Fragments())
}

func TestBuilderParallelV3(t *testing.T) {
	t.Parallel()

	b := NewBuilder(Default())
	b.SetParallelV3([]Triple{
		{A: 1, B: 2, Period: 3},
		{A: math.NaN(), B: 1, Period: 1},
		{A: 4.3, B: 5, Period: -6},
		{A: 7, B: 8, Period: 9},
		{A: 10, B: 11, Period: 12},
		{A: 13, B: 14, Period: 15},
	})
	assert.Equal(t, []string{"parallel_v3=[[1.0,2.0,3],[4.3,5.0,0],[7.0,8.0,9]]"}, b.Fragments())
	assert.Len(t, b.Settings().ParallelV3, 3)

	b.SetParallelV3(b.Settings().ParallelV3)
	assert.Len(t, b.Fragments(), 1)
}

func TestBuilderStepParamsAlwaysEmitted(t *testing.T) {
	t.Parallel()

	b := NewBuilder(Default())
	b.SetStepTemp(78.3).SetStepTemp(78.3)
	b.SetStepHysteresis(0.4)
	b.SetStepSpeed(12.5, 300)
	b.SetStepDecrement(300)
	b.SetStepTimer(-5)
	assert.Equal(t, []string{
		"s_temp=78.3",
		"s_temp=78.3",
		"s_hyst=0.40",
		"s_speed=[12.5,300]",
		"s_decrement=255",
		"s_timer=0",
	}, b.Fragments())
}

func TestPayloads(t *testing.T) {
	t.Parallel()

	frags := make([]string, 0, 12)
	for i := range 12 {
		frags = append(frags, strings.Repeat(string(rune('a'+i)), 40))
	}

	payloads := Payloads(frags, MaxPayload)
	require.GreaterOrEqual(t, len(payloads), 2)
	for _, p := range payloads {
		assert.LessOrEqual(t, len(p), MaxPayload)
	}
	assert.Equal(t, strings.Join(frags, ","), strings.Join(payloads, ","))
}

func TestPayloadsEdgeCases(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Payloads(nil, MaxPayload))

	long := strings.Repeat("x", 300)
	assert.Equal(t, []string{"a=1", long, "b=2"}, Payloads([]string{"a=1", long, "b=2"}, MaxPayload))

	exact := strings.Repeat("y", 124)
	assert.Equal(t, []string{exact + "," + exact}, Payloads([]string{exact, exact}, 249))
	assert.Equal(t, []string{exact, exact}, Payloads([]string{exact, exact}, 248))
}
