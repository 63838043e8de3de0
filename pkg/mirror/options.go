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

// Package mirror bridges the controller link to an MQTT broker: responses,
// settings and telemetry are published, commands are taken from a topic.
package mirror

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ssvc-open-connect/gateway/pkg/config"
)

// ProtocolInfo is a broker URL split into its paho scheme and address.
type ProtocolInfo struct {
	Protocol  string
	Scheme    string
	Remainder string
	UseTLS    bool
}

// ParseProtocol maps mqtt://, mqtts:// and ssl:// URLs to tcp or ssl.
// A URL without a scheme is plain tcp.
func ParseProtocol(brokerURL string) ProtocolInfo {
	info := ProtocolInfo{
		Protocol:  "tcp",
		Remainder: brokerURL,
	}
	scheme, rest, ok := strings.Cut(brokerURL, "://")
	if !ok {
		return info
	}
	info.Scheme = scheme
	info.Remainder = rest
	if scheme == "mqtts" || scheme == "ssl" {
		info.Protocol = "ssl"
		info.UseTLS = true
	}
	return info
}

// NewClientOptions builds paho options for the configured broker with a
// unique client id.
func NewClientOptions(cfg config.MQTT) *mqtt.ClientOptions {
	info := ParseProtocol(cfg.Broker)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("%s://%s", info.Protocol, info.Remainder))
	opts.SetClientID(cfg.ClientIDPrefix + uuid.New().String()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetOrderMatters(false)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
		log.Debug().Msgf("mqtt: using authentication for %s", info.Remainder)
	}
	if info.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
		log.Debug().Msgf("mqtt: using TLS for %s", info.Remainder)
	}

	opts.OnConnect = func(_ mqtt.Client) {
		log.Info().Msgf("mqtt: connected to %s", info.Remainder)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt: connection lost")
	}
	return opts
}
