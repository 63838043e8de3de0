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

package mirror

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// Dispatcher enqueues a controller command by name.
type Dispatcher interface {
	Dispatch(name, params string) error
}

// CommandListener feeds commands published on a topic into the queue.
// A message is either {"command": "...", "params": "..."} or plain text
// "name params".
type CommandListener struct {
	client     mqtt.Client
	dispatcher Dispatcher
	topic      string
}

func NewCommandListener(client mqtt.Client, topic string, d Dispatcher) *CommandListener {
	return &CommandListener{client: client, topic: topic, dispatcher: d}
}

func (l *CommandListener) Subscribe() error {
	token := l.client.Subscribe(l.topic, 1, l.handle)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", l.topic, err)
	}
	log.Info().Str("topic", l.topic).Msg("mqtt: listening for commands")
	return nil
}

func (l *CommandListener) Unsubscribe() {
	l.client.Unsubscribe(l.topic).Wait()
}

func (l *CommandListener) handle(_ mqtt.Client, msg mqtt.Message) {
	name, params, err := ParseCommand(msg.Payload())
	if err != nil {
		log.Warn().Err(err).Str("topic", msg.Topic()).Msg("mqtt: bad command message")
		return
	}
	if err := l.dispatcher.Dispatch(name, params); err != nil {
		log.Warn().Err(err).Str("command", name).Msg("mqtt: command rejected")
		return
	}
	log.Debug().Str("command", name).Msg("mqtt: command queued")
}

// ParseCommand splits a command message into name and parameters.
func ParseCommand(payload []byte) (name, params string, err error) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return "", "", errors.New("empty command")
	}
	if strings.HasPrefix(text, "{") {
		var body struct {
			Command string `json:"command"`
			Params  string `json:"params"`
		}
		if err := json.Unmarshal([]byte(text), &body); err != nil {
			return "", "", fmt.Errorf("invalid command json: %w", err)
		}
		if body.Command == "" {
			return "", "", errors.New("command json without command")
		}
		return body.Command, body.Params, nil
	}
	name, params, _ = strings.Cut(text, " ")
	return name, strings.TrimSpace(params), nil
}
