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

package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/spf13/afero"
	"pgregory.net/rapid"
)

func TestPropertyAPIPortMatchesListen(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		host := rapid.SampledFrom([]string{"", "0.0.0.0", "127.0.0.1", "localhost", "::1"}).Draw(t, "host")
		port := rapid.IntRange(1, 65535).Draw(t, "port")

		cfg := &Instance{vals: BaseDefaults}
		cfg.vals.API.Listen = net.JoinHostPort(host, strconv.Itoa(port))

		if got := cfg.APIPort(); got != port {
			t.Fatalf("APIPort() = %d for listen %q, want %d", got, cfg.vals.API.Listen, port)
		}
	})
}

func TestPropertyValidateRejectsNonPositiveBaud(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		vals := BaseDefaults
		vals.Serial.Baud = rapid.IntRange(-1_000_000, 0).Draw(t, "baud")
		if err := Validate(&vals); err == nil {
			t.Fatalf("baud %d accepted", vals.Serial.Baud)
		}
	})
}

func TestPropertySaveLoadKeepsSerialSettings(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.StringMatching(`/dev/tty(USB|ACM)[0-9]`).Draw(t, "port")
		baud := rapid.SampledFrom([]int{9600, 19200, 57600, 115200, 230400}).Draw(t, "baud")
		attempts := rapid.IntRange(1, 10).Draw(t, "attempts")

		fs := afero.NewMemMapFs()
		cfg, err := NewConfig(fs, "/cfg", BaseDefaults)
		if err != nil {
			t.Fatalf("new config: %v", err)
		}
		cfg.SetSerialPort(port)
		cfg.mu.Lock()
		cfg.vals.Serial.Baud = baud
		cfg.vals.Commands.Attempts = attempts
		cfg.mu.Unlock()
		if err := cfg.Save(); err != nil {
			t.Fatalf("save: %v", err)
		}

		reloaded, err := NewConfig(fs, "/cfg", BaseDefaults)
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		got := fmt.Sprintf("%s %d %d", reloaded.SerialPort(), reloaded.SerialBaud(), reloaded.CommandAttempts())
		want := fmt.Sprintf("%s %d %d", port, baud, attempts)
		if got != want {
			t.Fatalf("reloaded %q from %s, want %q", got, filepath.Join("/cfg", CfgFile), want)
		}
	})
}
