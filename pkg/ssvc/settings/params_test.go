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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyParamShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key     string
		value   string
		want    string
		wantErr bool
	}{
		{key: "heads", value: `[10, 120]`, want: "heads=[10.0,120]"},
		{key: "heads", value: `[10]`, wantErr: true},
		{key: "heads", value: `10`, wantErr: true},
		{key: "hyst", value: `0.4`, want: "hyst=0.40"},
		{key: "hyst", value: `"0.4"`, wantErr: true},
		{key: "decrement", value: `20`, want: "decrement=20"},
		{key: "decrement", value: `256`, wantErr: true},
		{key: "decrement", value: `2.5`, wantErr: true},
		{key: "heads_timer", value: `600`, want: "heads_timer=600"},
		{key: "heads_timer", value: `-1`, wantErr: true},
		{key: "release_timer", value: `30`, want: "release_timer=30"},
		{key: "valve_bw", value: `[1,2,3]`, want: "valve_bw=[1,2,3]"},
		{key: "valve_bw", value: `[1,2]`, wantErr: true},
		{key: "valve_bw", value: `[1,2,3.5]`, wantErr: true},
		{key: "formula", value: `true`, want: "formula=1"},
		{key: "formula", value: `1`, want: "formula=1"},
		{key: "formula", value: `2`, wantErr: true},
		{key: "parallel_v3", value: `[[1,2,3]]`, want: "parallel_v3=[[1.0,2.0,3]]"},
		{key: "parallel_v3", value: `[[1,2]]`, wantErr: true},
		{key: "parallel_v3", value: `[[1,2,3],[1,2,3],[1,2,3],[1,2,3],[1,2,3]]`, wantErr: true},
		{key: "s_speed", value: `[5.5, 60]`, want: "s_speed=[5.5,60]"},
		{key: "s_timer", value: `120`, want: "s_timer=120"},
		{key: " HYST ", value: `1`, want: "hyst=1.00"},
	}

	for _, tt := range tests {
		t.Run(tt.key+" "+tt.value, func(t *testing.T) {
			t.Parallel()
			b := NewBuilder(Default())
			err := ApplyParam(b, tt.key, json.RawMessage(tt.value))
			if tt.wantErr {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Empty(t, b.Fragments())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want}, b.Fragments())
		})
	}
}

func TestApplyParamUnknown(t *testing.T) {
	t.Parallel()

	err := ApplyParam(NewBuilder(Default()), "turbo", json.RawMessage(`1`))
	require.ErrorIs(t, err, ErrUnknownParameter)
}

func TestParamNamesSorted(t *testing.T) {
	t.Parallel()

	names := ParamNames()
	assert.IsNonDecreasing(t, names)
	assert.Contains(t, names, "parallel_v3")
	assert.Contains(t, names, "s_decrement")
}

func TestUpdateParams(t *testing.T) {
	t.Parallel()

	s, q, _ := newTestStore()
	res, err := s.UpdateParams(map[string]json.RawMessage{
		"turbo":     json.RawMessage(`true`),
		"hyst":      json.RawMessage(`0.4`),
		"decrement": json.RawMessage(`"lots"`),
		"heads":     json.RawMessage(`[10, 120]`),
	})
	require.NoError(t, err)

	assert.True(t, res.Invalid)
	assert.Equal(t, "Unknown parameter", res.Errors["turbo"])
	assert.Contains(t, res.Errors, "decrement")
	assert.NotContains(t, res.Errors, "hyst")
	assert.Equal(t, []string{"heads=[10.0,120],hyst=0.40"}, q.sent())
}

func TestUpdateParamsClampsHugeNumbersHigh(t *testing.T) {
	t.Parallel()

	s, q, _ := newTestStore()
	res, err := s.UpdateParams(map[string]json.RawMessage{
		"heads":    json.RawMessage(`[5, 1e19]`),
		"valve_bw": json.RawMessage(`[1e19, 200, 300]`),
	})
	require.NoError(t, err)
	assert.False(t, res.Invalid, res.Errors)

	got := s.Snapshot()
	assert.Equal(t, Pair{Open: 5, Period: maxValvePeriod}, got.Heads)
	assert.Equal(t, maxValveBandwidth, got.ValveBW[0])
	assert.Equal(t, []string{"heads=[5.0,999],valve_bw=[20000,200,300]"}, q.sent())
}

func TestUpdateParamsUnknownOnlyIsValid(t *testing.T) {
	t.Parallel()

	s, q, _ := newTestStore()
	res, err := s.UpdateParams(map[string]json.RawMessage{"turbo": json.RawMessage(`1`)})
	require.NoError(t, err)
	assert.False(t, res.Invalid)
	assert.Len(t, res.Errors, 1)
	assert.Empty(t, q.sent())
}
