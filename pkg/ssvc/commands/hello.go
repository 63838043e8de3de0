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

package commands

import (
	"fmt"

	"github.com/ssvc-open-connect/gateway/pkg/notify"
)

// Notifier receives user facing messages.
type Notifier interface {
	Push(message string, severity notify.Severity)
}

// Greeter shows a greeting on the controller display once the controller
// reported its version, and tells users whether the API level is supported.
type Greeter struct {
	Queue      *Queue
	Notifier   Notifier
	AppVersion string
	MinAPI     float64
}

func (g *Greeter) Hello(version string, api float64) {
	lines := []string{
		"Привет!",
		"SSVC: " + version,
		fmt.Sprintf("API: %.2f", api),
		"OpenConnect",
		"v:  " + g.AppVersion,
	}
	for _, line := range lines {
		if err := g.Queue.Status(line); err != nil {
			break
		}
	}

	if g.Notifier == nil {
		return
	}
	if api >= g.MinAPI {
		g.Notifier.Push(fmt.Sprintf("SSVC %s connected, API %.2f", version, api), notify.Info)
		return
	}
	g.Notifier.Push(
		fmt.Sprintf("SSVC %s reports API %.2f, at least %.2f is required", version, api, g.MinAPI),
		notify.Warning,
	)
}
