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
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
)

var ErrUnknownParameter = errors.New("unknown parameter")

// ValidationError rejects a single parameter value.
type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value for %s: %s", e.Key, e.Reason)
}

type paramHandler func(b *Builder, raw json.RawMessage) error

func number(raw json.RawMessage) (float64, error) {
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, errors.New("expected a number")
	}
	return v, nil
}

func integer(raw json.RawMessage, lo, hi float64) (int64, error) {
	v, err := number(raw)
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) {
		return 0, errors.New("expected an integer")
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("expected an integer in [%g, %g]", lo, hi)
	}
	return int64(v), nil
}

func numbers(raw json.RawMessage, n int) ([]float64, error) {
	var v []float64
	if err := json.Unmarshal(raw, &v); err != nil || len(v) != n {
		return nil, fmt.Errorf("expected an array of %d numbers", n)
	}
	return v, nil
}

func twoValue(set func(*Builder, float64, int) *Builder) paramHandler {
	return func(b *Builder, raw json.RawMessage) error {
		v, err := numbers(raw, 2)
		if err != nil {
			return err
		}
		set(b, v[0], toInt(v[1]))
		return nil
	}
}

func singleFloat(set func(*Builder, float64) *Builder) paramHandler {
	return func(b *Builder, raw json.RawMessage) error {
		v, err := number(raw)
		if err != nil {
			return err
		}
		set(b, v)
		return nil
	}
}

func unsignedChar(set func(*Builder, int) *Builder) paramHandler {
	return func(b *Builder, raw json.RawMessage) error {
		v, err := integer(raw, 0, math.MaxUint8)
		if err != nil {
			return err
		}
		set(b, int(v))
		return nil
	}
}

func unsignedInt(set func(*Builder, int64) *Builder) paramHandler {
	return func(b *Builder, raw json.RawMessage) error {
		v, err := integer(raw, 0, math.MaxUint32)
		if err != nil {
			return err
		}
		set(b, v)
		return nil
	}
}

func threeInt(b *Builder, raw json.RawMessage) error {
	v, err := numbers(raw, 3)
	if err != nil {
		return err
	}
	for _, x := range v {
		if x != math.Trunc(x) {
			return errors.New("expected an array of 3 integers")
		}
	}
	b.SetValveBW(toInt(v[0]), toInt(v[1]), toInt(v[2]))
	return nil
}

func boolean(b *Builder, raw json.RawMessage) error {
	var v bool
	if err := json.Unmarshal(raw, &v); err == nil {
		b.SetFormula(v)
		return nil
	}
	n, err := integer(raw, 0, 1)
	if err != nil {
		return errors.New("expected a boolean or 0/1")
	}
	b.SetFormula(n == 1)
	return nil
}

func floatFloatIntArray(b *Builder, raw json.RawMessage) error {
	var items [][]float64
	if err := json.Unmarshal(raw, &items); err != nil {
		return errors.New("expected an array of [number, number, integer]")
	}
	if len(items) > MaxParallelV3 {
		return fmt.Errorf("expected at most %d items", MaxParallelV3)
	}
	values := make([]Triple, 0, len(items))
	for i, item := range items {
		if len(item) != 3 || item[2] != math.Trunc(item[2]) {
			return fmt.Errorf("item %d: expected [number, number, integer]", i)
		}
		values = append(values, Triple{A: item[0], B: item[1], Period: toInt(item[2])})
	}
	b.SetParallelV3(values)
	return nil
}

var paramHandlers = map[string]paramHandler{
	"heads":       twoValue((*Builder).SetHeads),
	"hearts":      twoValue((*Builder).SetHearts),
	"late_heads":  twoValue((*Builder).SetLateHeads),
	"tails":       twoValue((*Builder).SetTails),
	"parallel":    twoValue((*Builder).SetParallel),
	"parallel_v1": twoValue((*Builder).SetParallelV1),
	"s_speed":     twoValue((*Builder).SetStepSpeed),

	"hyst":               singleFloat((*Builder).SetHysteresis),
	"tails_temp":         singleFloat((*Builder).SetTailsTemp),
	"hearts_finish_temp": singleFloat((*Builder).SetHeartsFinishTemp),
	"formula_start_temp": singleFloat((*Builder).SetFormulaStartTemp),
	"release_speed":      singleFloat((*Builder).SetReleaseSpeed),
	"heads_final":        singleFloat((*Builder).SetHeadsFinal),
	"s_temp":             singleFloat((*Builder).SetStepTemp),
	"s_hyst":             singleFloat((*Builder).SetStepHysteresis),

	"decrement":    unsignedChar((*Builder).SetDecrement),
	"tank_mmhg":    unsignedChar((*Builder).SetTankMmHg),
	"hearts_timer": unsignedChar((*Builder).SetHeartsTimer),
	"s_decrement":  unsignedChar((*Builder).SetStepDecrement),

	"heads_timer":      unsignedInt((*Builder).SetHeadsTimer),
	"late_heads_timer": unsignedInt((*Builder).SetLateHeadsTimer),
	"start_delay":      unsignedInt((*Builder).SetStartDelay),
	"release_timer":    unsignedInt((*Builder).SetReleaseTimer),
	"s_timer":          unsignedInt((*Builder).SetStepTimer),

	"valve_bw":    threeInt,
	"formula":     boolean,
	"parallel_v3": floatFloatIntArray,
}

// ParamNames lists the keys accepted by UpdateParams.
func ParamNames() []string {
	names := make([]string, 0, len(paramHandlers))
	for name := range paramHandlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// UpdateResult reports per-key problems of an UpdateParams call. Unknown
// keys are listed but do not make the update invalid.
type UpdateResult struct {
	Errors  map[string]string
	Invalid bool
}

// ApplyParam runs a single parameter through its handler.
func ApplyParam(b *Builder, key string, raw json.RawMessage) error {
	h, ok := paramHandlers[normalizeKey(key)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParameter, key)
	}
	if err := h(b, raw); err != nil {
		return &ValidationError{Key: key, Reason: err.Error()}
	}
	return nil
}

// UpdateParams applies the accepted keys as one batch, in key order. Keys
// that fail validation are skipped; the rest are still sent.
func (s *Store) UpdateParams(params map[string]json.RawMessage) (UpdateResult, error) {
	res := UpdateResult{Errors: make(map[string]string)}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	err := s.Batch(func(b *Builder) {
		for _, key := range keys {
			err := ApplyParam(b, key, params[key])
			var verr *ValidationError
			switch {
			case err == nil:
			case errors.Is(err, ErrUnknownParameter):
				res.Errors[key] = "Unknown parameter"
			case errors.As(err, &verr):
				log.Warn().Str("key", key).Str("reason", verr.Reason).Msg("invalid settings parameter")
				res.Errors[key] = verr.Reason
				res.Invalid = true
			}
		}
	})
	return res, err
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
