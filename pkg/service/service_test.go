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

package service

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/ssvc-open-connect/gateway/pkg/config"
	"github.com/ssvc-open-connect/gateway/pkg/ssvc/transport"
	"github.com/ssvc-open-connect/gateway/pkg/testing/mocks"
)

const waitFor = 5 * time.Second

type harness struct {
	port    *mocks.MockSerialPort
	client  *mocks.MockClient
	opts    *mqtt.ClientOptions
	gateway *Gateway
	baseURL string
}

func testDefaults() config.Values {
	vals := config.BaseDefaults
	vals.Serial.Port = "/dev/ttyTEST"
	vals.Commands.StartupDelayMs = 0
	vals.Commands.TimeoutMs = 300
	vals.Commands.RetryBackoffMs = 0
	vals.Commands.KeepaliveIntervalMs = 0
	vals.MQTT.Enabled = true
	vals.MQTT.Broker = "tcp://broker.local:1883"
	vals.API.Listen = "127.0.0.1:0"
	vals.Profiles.Dir = "/data/profiles"
	vals.Discovery.Enabled = false
	return vals
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fs := afero.NewMemMapFs()
	cfg, err := config.NewConfig(fs, "/data", testDefaults())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	h := &harness{
		port:    mocks.NewMockSerialPort(),
		client:  mocks.NewMockClient(),
		baseURL: "http://" + ln.Addr().String(),
	}
	h.gateway, err = New(cfg, Deps{
		Fs: fs,
		SerialFactory: func(string, *serial.Mode) (transport.SerialPort, error) {
			return h.port, nil
		},
		NewMQTTClient: func(opts *mqtt.ClientOptions) mqtt.Client {
			h.opts = opts
			return h.client
		},
		APIListener: ln,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) wrote(line string) func() bool {
	return func() bool { return slices.Contains(h.port.Writes(), line) }
}

func (h *harness) published(topic string) func() bool {
	return func() bool {
		for _, p := range h.client.Published() {
			if p.Topic == topic {
				return true
			}
		}
		return false
	}
}

func getJSON(t *testing.T, url string) map[string]any {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx // test helper
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestGateway_EndToEnd(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.gateway.Run(ctx) }()

	require.Eventually(t, h.client.IsConnected, waitFor, 10*time.Millisecond)
	require.Eventually(t, h.wrote("GET_SETTINGS\n"), waitFor, 10*time.Millisecond)
	h.port.Feed(`{"type":"response","request":"GET_SETTINGS","settings":{"heads":[12.5,30],"valve_bw":[300,400,500]}}` + "\n")

	require.Eventually(t, h.wrote("VERSION\n"), waitFor, 10*time.Millisecond)
	h.port.Feed(`{"type":"response","request":"VERSION","version":"2.2.14","api":"2.1"}` + "\n")

	require.Eventually(t, func() bool {
		return h.gateway.Settings.Controller().Version == "2.2.14"
	}, waitFor, 10*time.Millisecond)
	assert.True(t, h.gateway.Settings.Controller().SupportsTails)
	assert.Equal(t, [3]int{300, 400, 500}, h.gateway.Settings.ValveBW())

	// Greeting goes to the display once the version is known.
	require.Eventually(t, func() bool {
		return slices.ContainsFunc(h.port.Writes(), func(w string) bool { return strings.HasPrefix(w, "STATUS ") })
	}, waitFor, 10*time.Millisecond)

	require.Eventually(t, h.published("openconnect/settings"), waitFor, 10*time.Millisecond)
	require.Eventually(t, h.published("ssvc/response"), waitFor, 10*time.Millisecond)

	h.port.Feed(`{"type":"heads","pid":4,"common":{"tp1":78.3,"tp2":65.1}}` + "\n")
	require.Eventually(t, func() bool {
		return h.gateway.Process.Status().Stage == "heads"
	}, waitFor, 10*time.Millisecond)
	require.Eventually(t, h.published("ssvc/telemetry"), waitFor, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		resp, err := http.Get(h.baseURL + "/api/link") //nolint:noctx // test
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, waitFor, 10*time.Millisecond)

	status := getJSON(t, h.baseURL+"/api/rectification/status")
	assert.Equal(t, "heads", status["stage"])
	assert.Equal(t, "running", status["status"])

	body := getJSON(t, h.baseURL+"/api/settings")
	assert.Equal(t, "2.2.14", body["version"])
	assert.Equal(t, true, body["supportsTails"])

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("gateway did not stop")
	}
	assert.True(t, h.port.IsClosed())
}

func TestGateway_MQTTCommands(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.gateway.Run(ctx) }()

	require.NotNil(t, h.opts)
	h.opts.OnConnect(h.client)
	require.Eventually(t, func() bool {
		return h.client.Deliver("ssvc/command", []byte(`{"command":"pause"}`))
	}, waitFor, 10*time.Millisecond)
	require.Eventually(t, h.wrote("PAUSE\n"), waitFor, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("gateway did not stop")
	}
}

func TestGateway_ProfilesInitialised(t *testing.T) {
	h := newHarness(t)
	active, err := h.gateway.Profiles.Active()
	require.NoError(t, err)
	assert.Equal(t, "0", active.ID)
}

func TestGateway_InitialReadsWaitForLink(t *testing.T) {
	fs := afero.NewMemMapFs()
	vals := testDefaults()
	vals.MQTT.Enabled = false
	vals.API.Enabled = false
	cfg, err := config.NewConfig(fs, "/data", vals)
	require.NoError(t, err)

	port := mocks.NewMockSerialPort()
	var opens atomic.Int32
	g, err := New(cfg, Deps{
		Fs: fs,
		SerialFactory: func(string, *serial.Mode) (transport.SerialPort, error) {
			if opens.Add(1) == 1 {
				return nil, errors.New("open /dev/ttyTEST: no such file or directory")
			}
			return port, nil
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	// first open fails, the reads are only queued once the retry succeeds
	require.Eventually(t, func() bool { return slices.Contains(port.Writes(), "GET_SETTINGS\n") },
		waitFor, 10*time.Millisecond)
	require.Eventually(t, func() bool { return slices.Contains(port.Writes(), "VERSION\n") },
		waitFor, 10*time.Millisecond)
	assert.Equal(t, int32(2), opens.Load())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("gateway did not stop")
	}
}

func TestStart(t *testing.T) {
	fs := afero.NewMemMapFs()
	vals := testDefaults()
	vals.MQTT.Enabled = false
	vals.API.Enabled = false
	cfg, err := config.NewConfig(fs, "/data", vals)
	require.NoError(t, err)

	port := mocks.NewMockSerialPort()
	stop, done, err := Start(cfg, Deps{
		Fs: fs,
		SerialFactory: func(string, *serial.Mode) (transport.SerialPort, error) {
			return port, nil
		},
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return slices.Contains(port.Writes(), "GET_SETTINGS\n") },
		waitFor, 10*time.Millisecond)

	require.NoError(t, stop())
	select {
	case <-done:
	default:
		t.Fatal("done not closed after stop")
	}
}
