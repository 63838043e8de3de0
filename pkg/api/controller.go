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
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/ssvc-open-connect/gateway/pkg/api/validation"
	"github.com/ssvc-open-connect/gateway/pkg/ssvc/commands"
)

type commandRequest struct {
	Command string `json:"command" validate:"required,command"`
	Params  string `json:"params" validate:"max=250"`
}

type linkResponse struct {
	Degraded bool `json:"degraded"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Process.Status())
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Process.Report())
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	var req commandRequest
	if err := validation.DecodeAndValidate(body, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	err = s.opts.Commands.Dispatch(req.Command, req.Params)
	switch {
	case errors.Is(err, commands.ErrUnknownCommand):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, commands.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, "Command queue is full")
	case err != nil:
		log.Error().Err(err).Str("command", req.Command).Msg("failed to queue command")
		writeError(w, http.StatusInternalServerError, "Failed to queue command")
	default:
		log.Info().Str("command", req.Command).Msg("command queued from API")
		writeJSON(w, http.StatusAccepted, successResponse{Success: true, Message: "Command queued"})
	}
}

func (s *Server) handleLink(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, linkResponse{Degraded: s.opts.Link.Degraded()})
}
