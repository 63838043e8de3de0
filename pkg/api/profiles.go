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

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/ssvc-open-connect/gateway/pkg/api/validation"
	"github.com/ssvc-open-connect/gateway/pkg/profiles"
)

type createProfileRequest struct {
	Content json.RawMessage `json:"content"`
	Name    string          `json:"name" validate:"required,profilename"`
}

type nameRequest struct {
	Name string `json:"name" validate:"required,profilename"`
}

func (s *Server) profileRoutes(r chi.Router) {
	r.Get("/", s.handleListProfiles)
	r.Post("/", s.handleCreateProfile)
	r.Get("/active", s.handleActiveProfile)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", s.handleProfileContent)
		r.Put("/", s.handleUpdateProfileContent)
		r.Patch("/", s.handleRenameProfile)
		r.Delete("/", s.handleDeleteProfile)
		r.Post("/copy", s.handleCopyProfile)
		r.Post("/apply", s.handleApplyProfile)
		r.Post("/save", s.handleSaveProfile)
	})
}

// writeProfileError maps store errors to status codes.
func writeProfileError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, profiles.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, "Profile not found")
	case errors.Is(err, profiles.ErrProfileParse):
		writeError(w, http.StatusBadRequest, "Invalid profile content")
	default:
		log.Error().Err(err).Str("op", op).Msg("profile operation failed")
		writeError(w, http.StatusInternalServerError, "Failed to "+op+" profile")
	}
}

func (s *Server) handleListProfiles(w http.ResponseWriter, _ *http.Request) {
	list, err := s.opts.Profiles.List()
	if err != nil {
		writeProfileError(w, "list", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleActiveProfile(w http.ResponseWriter, _ *http.Request) {
	active, err := s.opts.Profiles.Active()
	if err != nil {
		writeProfileError(w, "read", err)
		return
	}
	if active.ID == "" {
		writeError(w, http.StatusNotFound, "No active profile")
		return
	}
	writeJSON(w, http.StatusOK, active)
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Content) > 0 && req.Content[0] != '{' && string(req.Content) != "null" {
		writeError(w, http.StatusBadRequest, "Invalid 'content' field, must be a JSON object")
		return
	}
	if string(req.Content) == "null" {
		req.Content = nil
	}
	m, err := s.opts.Profiles.Create(req.Name, req.Content)
	if err != nil {
		writeProfileError(w, "save", err)
		return
	}
	writeJSON(w, http.StatusCreated, successResponse{Success: true, ID: m.ID})
}

func (s *Server) handleProfileContent(w http.ResponseWriter, r *http.Request) {
	data, err := s.opts.Profiles.Content(chi.URLParam(r, "id"))
	if err != nil {
		writeProfileError(w, "read", err)
		return
	}
	writeRaw(w, http.StatusOK, data)
}

func (s *Server) handleUpdateProfileContent(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil || !json.Valid(body) {
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	if err := s.opts.Profiles.UpdateContent(chi.URLParam(r, "id"), body); err != nil {
		writeProfileError(w, "update", err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Profile updated"})
}

func (s *Server) handleRenameProfile(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.opts.Profiles.Rename(chi.URLParam(r, "id"), req.Name); err != nil {
		writeProfileError(w, "rename", err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Profile renamed"})
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Profiles.Delete(chi.URLParam(r, "id")); err != nil {
		writeProfileError(w, "delete", err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Profile deleted"})
}

func (s *Server) handleCopyProfile(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := s.opts.Profiles.Copy(chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeProfileError(w, "copy", err)
		return
	}
	writeJSON(w, http.StatusCreated, successResponse{Success: true, ID: m.ID})
}

func (s *Server) handleApplyProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Profiles.Apply(chi.URLParam(r, "id")); err != nil {
		writeProfileError(w, "apply", err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Profile applied"})
}

func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Profiles.SaveCurrent(chi.URLParam(r, "id")); err != nil {
		writeProfileError(w, "save", err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Profile saved"})
}

func decode[T any](w http.ResponseWriter, r *http.Request, dest *T) bool {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return false
	}
	if err := validation.DecodeAndValidate(body, dest); err != nil {
		writeDecodeError(w, err)
		return false
	}
	return true
}
