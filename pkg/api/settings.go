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

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/ssvc-open-connect/gateway/pkg/ssvc/settings"
)

type settingsResponse struct {
	Version       string          `json:"version"`
	Settings      settings.Export `json:"ssvcSettings"`
	API           float64         `json:"api"`
	SupportsTails bool            `json:"supportsTails"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	export := s.opts.Settings.Export()
	writeJSON(w, http.StatusOK, settingsResponse{
		Settings:      export,
		Version:       export.Version,
		API:           export.API,
		SupportsTails: export.SupportsTails,
	})
}

// handleUpdateSettings takes a flat object of parameter names to values.
// Unknown keys are reported but do not fail the request.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	params := map[string]json.RawMessage{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &params); err != nil {
			log.Warn().Err(err).Msg("settings update: bad body")
			writeError(w, http.StatusBadRequest, msgInvalidJSON)
			return
		}
	}

	res, err := s.opts.Settings.UpdateParams(params)
	if res.Invalid {
		writeJSON(w, http.StatusBadRequest, res.Errors)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("settings update: failed to queue")
		writeError(w, http.StatusServiceUnavailable, "Failed to queue settings")
		return
	}
	if err := s.opts.Commands.GetSettings(); err != nil {
		log.Warn().Err(err).Msg("settings update: failed to queue re-read")
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Settings updated successfully"})
}

// handleApplySettings takes a full settings document, as stored in a
// profile, and sends what differs.
func (s *Server) handleApplySettings(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil || len(body) == 0 {
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	err = s.opts.Settings.ApplyFromJSON(body)
	switch {
	case errors.Is(err, settings.ErrParse):
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
	case err != nil:
		log.Error().Err(err).Msg("settings apply: failed to queue")
		writeError(w, http.StatusServiceUnavailable, "Failed to queue settings")
	default:
		writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Settings applied"})
	}
}
