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

package helpers

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssvc-open-connect/gateway/pkg/config"
)

func TestEnsureLogDir(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		existing bool
	}{
		{name: "creates nested directory", existing: false},
		{name: "accepts existing directory", existing: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logDir := filepath.Join(t.TempDir(), "logs", "nested")
			if tt.existing {
				require.NoError(t, os.MkdirAll(logDir, 0o750))
			}

			require.NoError(t, EnsureLogDir(logDir))

			info, err := os.Stat(logDir)
			require.NoError(t, err)
			assert.True(t, info.IsDir())
			if runtime.GOOS != "windows" {
				assert.Equal(t, os.FileMode(0o750), info.Mode().Perm())
			}
		})
	}
}

//nolint:paralleltest // mutates the global logger
func TestInitLoggingWritesToFileAndExtraWriters(t *testing.T) {
	prevLogger := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	logDir := t.TempDir()
	var buf bytes.Buffer
	require.NoError(t, InitLogging(logDir, true, []io.Writer{&buf}))

	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	log.Debug().Str("component", "test").Msg("hello gateway")

	assert.Contains(t, buf.String(), "hello gateway")
	assert.Contains(t, buf.String(), `"component":"test"`)

	data, err := os.ReadFile(filepath.Join(logDir, config.LogFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello gateway")

	SetDebugLogging(false)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
