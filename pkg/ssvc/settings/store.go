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

	"github.com/rs/zerolog/log"

	"github.com/ssvc-open-connect/gateway/pkg/helpers/syncutil"
)

// Enqueuer queues a SET command with the given fragments.
type Enqueuer interface {
	Set(params string) error
}

// Mirror receives every settings document the controller reports.
type Mirror interface {
	Publish(topic string, payload []byte, qos byte, retain bool) error
}

type StoreOptions struct {
	Queue  Enqueuer
	Mirror Mirror
	// Topic is where ingested settings documents are mirrored.
	Topic string
	// MinAPI is the lowest controller API level reported as supported.
	MinAPI float64
}

// Store is the authoritative settings model. It hands Builders a snapshot,
// swaps in the result under its lock, and sends the fragments afterwards.
type Store struct {
	queue  Enqueuer
	mirror Mirror
	topic  string
	minAPI float64

	cur  Settings
	ctrl Controller
	mu   syncutil.RWMutex
}

func NewStore(opts StoreOptions) *Store {
	return &Store{
		queue:  opts.Queue,
		mirror: opts.Mirror,
		topic:  opts.Topic,
		minAPI: opts.MinAPI,
		cur:    Default(),
	}
}

// Snapshot returns a copy of the current settings.
func (s *Store) Snapshot() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.Clone()
}

func (s *Store) Controller() Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctrl
}

// ValveBW returns the valve calibration without copying the whole model.
func (s *Store) ValveBW() [3]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.ValveBW
}

func (s *Store) build(fn func(*Builder)) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := NewBuilder(s.cur)
	fn(b)
	s.cur = b.Settings()
	return b.Fragments()
}

// Update applies fn and sends each changed field as its own SET command.
func (s *Store) Update(fn func(*Builder)) error {
	return s.send(s.build(fn))
}

// Batch applies fn and sends the changed fields joined into as few SET
// commands as MaxPayload allows.
func (s *Store) Batch(fn func(*Builder)) error {
	return s.send(Payloads(s.build(fn), MaxPayload))
}

func (s *Store) send(payloads []string) error {
	if s.queue == nil || len(payloads) == 0 {
		return nil
	}
	var errs []error
	for _, p := range payloads {
		if err := s.queue.Set(p); err != nil {
			log.Error().Err(err).Str("payload", p).Msg("failed to queue settings")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetControllerVersion records the firmware version and derives whether it
// uses the tails fields.
func (s *Store) SetControllerVersion(version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.Version = version
	s.ctrl.SupportsTails = SupportsTails(version)
	log.Info().
		Str("version", version).
		Bool("supportsTails", s.ctrl.SupportsTails).
		Msg("controller version")
}

func (s *Store) SetControllerAPI(api float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.API = api
	s.ctrl.APISupported = api >= s.minAPI
	if !s.ctrl.APISupported {
		log.Warn().Float64("api", api).Float64("min", s.minAPI).Msg("controller api is older than supported")
	}
}

// Ingest handles a GET_SETTINGS response. The whole document is mirrored;
// the fields under "settings" are merged, absent ones keep their value.
func (s *Store) Ingest(text string) error {
	var resp struct {
		Settings json.RawMessage `json:"settings"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return fmt.Errorf("%w: %w", ErrParse, err)
	}

	if s.mirror != nil && s.topic != "" {
		if err := s.mirror.Publish(s.topic, []byte(text), 1, true); err != nil {
			log.Warn().Err(err).Msg("failed to mirror settings")
		}
	}

	if len(resp.Settings) == 0 || resp.Settings[0] != '{' {
		log.Debug().Msg("settings response without settings object")
		return nil
	}
	var doc Document
	if err := json.Unmarshal(resp.Settings, &doc); err != nil {
		return fmt.Errorf("%w: %w", ErrParse, err)
	}

	s.mu.Lock()
	s.cur.Merge(doc)
	s.mu.Unlock()
	log.Debug().Msg("settings ingested")
	return nil
}

// ApplyFromJSON diffs a settings document against the model and sends the
// difference as one batch. The document may be wrapped in "ssvcSettings".
func (s *Store) ApplyFromJSON(data []byte) error {
	doc, err := ParseDocument(data)
	if err != nil {
		return err
	}
	tails := s.Controller().SupportsTails
	return s.Batch(func(b *Builder) {
		applyDocument(b, doc, tails)
	})
}

func applyDocument(b *Builder, doc Document, tails bool) {
	applyPair(doc.Heads, b.SetHeads)
	applyPair(doc.Hearts, b.SetHearts)
	if tails {
		applyPair(doc.Tails, b.SetTails)
		if doc.TailsTemp != nil {
			b.SetTailsTemp(*doc.TailsTemp)
		}
		if doc.ReleaseSpeed != nil {
			b.SetReleaseSpeed(*doc.ReleaseSpeed)
		}
		if doc.ReleaseTimer != nil {
			b.SetReleaseTimer(toInt64(*doc.ReleaseTimer))
		}
		if doc.HeadsFinal != nil {
			b.SetHeadsFinal(*doc.HeadsFinal)
		}
	} else {
		applyPair(doc.LateHeads, b.SetLateHeads)
	}

	if doc.HeadsTimer != nil {
		b.SetHeadsTimer(toInt64(*doc.HeadsTimer))
	}
	if doc.LateHeadsTimer != nil {
		b.SetLateHeadsTimer(toInt64(*doc.LateHeadsTimer))
	}
	if doc.HeartsTimer != nil {
		b.SetHeartsTimer(toInt(*doc.HeartsTimer))
	}
	if doc.StartDelay != nil {
		b.SetStartDelay(toInt64(*doc.StartDelay))
	}
	if doc.ValveBW != nil {
		b.SetValveBW(doc.ValveBW[0], doc.ValveBW[1], doc.ValveBW[2])
	}
	if doc.Hyst != nil {
		b.SetHysteresis(*doc.Hyst)
	}
	if doc.Decrement != nil {
		b.SetDecrement(toInt(*doc.Decrement))
	}
	if doc.Formula != nil {
		b.SetFormula(bool(*doc.Formula))
	}
	if doc.TankMmHg != nil {
		b.SetTankMmHg(toInt(*doc.TankMmHg))
	}
	if doc.HeartsFinishTemp != nil {
		b.SetHeartsFinishTemp(*doc.HeartsFinishTemp)
	}
	if doc.FormulaStartTemp != nil {
		b.SetFormulaStartTemp(*doc.FormulaStartTemp)
	}
	applyPair(doc.Parallel, b.SetParallel)
	applyPair(doc.ParallelV1, b.SetParallelV1)
	if doc.ParallelV3 != nil {
		b.SetParallelV3(*doc.ParallelV3)
	}
}

func applyPair(p *Pair, set func(float64, int) *Builder) {
	if p != nil {
		set(p.Open, p.Period)
	}
}
