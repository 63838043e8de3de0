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
	"fmt"
)

// Export is the settings document together with what the controller
// reported about itself.
type Export struct {
	Document
	Version       string  `json:"ssvc_version"`
	API           float64 `json:"ssvc_api_version"`
	APISupported  bool    `json:"api_supported"`
	SupportsTails bool    `json:"supports_tails"`
}

func (s *Store) Export() Export {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Export{
		Document:      s.cur.ToDocument(),
		Version:       s.ctrl.Version,
		API:           s.ctrl.API,
		APISupported:  s.ctrl.APISupported,
		SupportsTails: s.ctrl.SupportsTails,
	}
}

// ToJSON encodes the current model for the UI.
func (s *Store) ToJSON() ([]byte, error) {
	data, err := json.Marshal(s.Export())
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}
	return data, nil
}

// Save produces the document a profile stores.
func (s *Store) Save() (json.RawMessage, error) {
	return s.ToJSON()
}

// Apply restores a saved profile. Fields the controller accepts are sent as
// a batch; the ones it only reports are copied into the model directly.
func (s *Store) Apply(data json.RawMessage) error {
	doc, err := ParseDocument(data)
	if err != nil {
		return err
	}
	if err := s.ApplyFromJSON(data); err != nil {
		return err
	}
	s.mu.Lock()
	s.cur.Merge(reportedOnly(doc))
	s.mu.Unlock()
	return nil
}

// reportedOnly keeps the fields that have no setter.
func reportedOnly(doc Document) Document {
	return Document{
		Sound:            doc.Sound,
		Pressure:         doc.Pressure,
		RelayInverted:    doc.RelayInverted,
		RelayAutostart:   doc.RelayAutostart,
		AutoResume:       doc.AutoResume,
		AutoMode:         doc.AutoMode,
		HeartsTempShift:  doc.HeartsTempShift,
		HeartsPause:      doc.HeartsPause,
		Tp2Shift:         doc.Tp2Shift,
		TpFilter:         doc.TpFilter,
		SignalTp1Control: doc.SignalTp1Control,
		SignalInverted:   doc.SignalInverted,
		Tp1ControlTemp:   doc.Tp1ControlTemp,
		Tp1ControlStart:  doc.Tp1ControlStart,
		StabLimitTime:    doc.StabLimitTime,
		StabLimitFinish:  doc.StabLimitFinish,
		Backlight:        doc.Backlight,
	}
}
