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

// Package validation checks API request bodies with go-playground/validator
// and a few gateway specific tags.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ssvc-open-connect/gateway/pkg/ssvc/commands"
)

var (
	ErrMissingBody = errors.New("missing request body")
	ErrInvalidJSON = errors.New("invalid JSON in request body")
)

type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("command", validateCommand)
	_ = v.RegisterValidation("profilename", validateProfileName)
	return &Validator{validate: v}
}

var DefaultValidator = NewValidator()

func (v *Validator) Validate(params any) error {
	if err := v.validate.Struct(params); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewError(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// DecodeAndValidate unmarshals body into dest and validates it.
func DecodeAndValidate[T any](body []byte, dest *T) error {
	if len(body) == 0 {
		return ErrMissingBody
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return ErrInvalidJSON
	}
	return DefaultValidator.Validate(dest)
}

// validateCommand accepts names known to the command queue dispatcher.
func validateCommand(fl validator.FieldLevel) bool {
	name := strings.ToLower(strings.TrimSpace(fl.Field().String()))
	return slices.Contains(commands.CommandNames(), name)
}

func validateProfileName(fl validator.FieldLevel) bool {
	name := strings.TrimSpace(fl.Field().String())
	return name != "" && !strings.ContainsAny(name, "\x00\r\n")
}
