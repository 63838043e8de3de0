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

package transport

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial/enumerator"
)

// AutoPort as the configured path makes the connector look for the
// controller among attached USB serial adapters on every open.
const AutoPort = "auto"

var ErrNoController = errors.New("no controller serial adapter found")

// PortLister lists serial ports with their USB details.
type PortLister func() ([]*enumerator.PortDetails, error)

func DefaultPortLister() ([]*enumerator.PortDetails, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

type usbID struct {
	vid string
	pid string
}

// USB to UART bridges found on controller boards. An empty pid matches any
// product of the vendor.
var controllerAdapters = []usbID{
	{vid: "10c4", pid: "ea60"}, // CP210x
	{vid: "1a86", pid: "7523"}, // CH340
	{vid: "1a86", pid: "55d4"}, // CH9102
	{vid: "0403", pid: "6001"}, // FT232R
	{vid: "0403", pid: "6015"}, // FT231X
	{vid: "2341"},              // Arduino
	{vid: "303a"},              // Espressif native USB
}

func isControllerAdapter(p *enumerator.PortDetails) bool {
	if !p.IsUSB {
		return false
	}
	vid := strings.ToLower(p.VID)
	pid := strings.ToLower(p.PID)
	return slices.ContainsFunc(controllerAdapters, func(id usbID) bool {
		return id.vid == vid && (id.pid == "" || id.pid == pid)
	})
}

// plausiblePath drops the call-out and bluetooth nodes macOS lists next to
// the tty devices.
func plausiblePath(name string) bool {
	if runtime.GOOS == "darwin" {
		return strings.HasPrefix(name, "/dev/cu.") && !strings.Contains(strings.ToLower(name), "bluetooth")
	}
	return true
}

// DetectPort returns the first port that looks like a controller adapter.
// Ports are checked in name order so the choice is stable across restarts.
func DetectPort(list PortLister) (string, error) {
	ports, err := list()
	if err != nil {
		return "", err
	}
	slices.SortFunc(ports, func(a, b *enumerator.PortDetails) int {
		return strings.Compare(a.Name, b.Name)
	})
	for _, p := range ports {
		if isControllerAdapter(p) && plausiblePath(p.Name) {
			log.Debug().Str("port", p.Name).Str("vid", p.VID).Str("pid", p.PID).
				Msg("detected controller serial adapter")
			return p.Name, nil
		}
	}
	return "", ErrNoController
}
