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

package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type commandBody struct {
	Command string `json:"command" validate:"required,command"`
	Params  string `json:"params" validate:"max=250"`
}

func TestDecodeAndValidate_Command(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr error
		name    string
		body    string
		wantMsg string
	}{
		{name: "valid", body: `{"command":"at"}`},
		{name: "upper case", body: `{"command":"GET_SETTINGS"}`},
		{name: "with params", body: `{"command":"set","params":"hyst=0.2"}`},
		{name: "empty body", body: ``, wantErr: ErrMissingBody},
		{name: "bad json", body: `{`, wantErr: ErrInvalidJSON},
		{name: "missing", body: `{}`, wantMsg: "command is required"},
		{name: "unknown", body: `{"command":"reboot"}`, wantMsg: `unknown command "reboot"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var dest commandBody
			err := DecodeAndValidate([]byte(tt.body), &dest)
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.wantMsg != "":
				var verr *Error
				require.True(t, errors.As(err, &verr))
				assert.Equal(t, tt.wantMsg, verr.Error())
			default:
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateProfileName(t *testing.T) {
	t.Parallel()
	type body struct {
		Name string `validate:"profilename"`
	}
	v := NewValidator()
	require.NoError(t, v.Validate(&body{Name: "Night run"}))
	require.Error(t, v.Validate(&body{Name: "  "}))
	require.Error(t, v.Validate(&body{Name: "a\nb"}))
}
