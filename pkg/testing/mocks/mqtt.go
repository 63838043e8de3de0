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

package mocks

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ssvc-open-connect/gateway/pkg/helpers/syncutil"
)

// Published is one call to MockClient.Publish.
type Published struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// MockClient implements mqtt.Client. It records publishes and keeps the
// handler registered per subscribed topic so tests can Deliver messages.
type MockClient struct {
	ConnectError   error
	SubscribeError error
	PublishError   error
	handlers       map[string]mqtt.MessageHandler
	published      []Published
	mu             syncutil.Mutex
	connected      bool
}

func NewMockClient() *MockClient {
	return &MockClient{handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *MockClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockClient) IsConnectionOpen() bool {
	return m.IsConnected()
}

func (m *MockClient) Connect() mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ConnectError != nil {
		return &MockToken{Err: m.ConnectError}
	}
	m.connected = true
	return &MockToken{}
}

func (m *MockClient) Disconnect(_ uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

func (m *MockClient) Publish(topic string, qos byte, retained bool, payload any) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishError != nil {
		return &MockToken{Err: m.PublishError}
	}
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = append([]byte(nil), p...)
	case string:
		data = []byte(p)
	}
	m.published = append(m.published, Published{
		Topic:    topic,
		Payload:  data,
		QoS:      qos,
		Retained: retained,
	})
	return &MockToken{}
}

func (m *MockClient) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubscribeError != nil {
		return &MockToken{Err: m.SubscribeError}
	}
	m.handlers[topic] = callback
	return &MockToken{}
}

func (m *MockClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	for topic := range filters {
		m.handlers[topic] = callback
	}
	return &MockToken{}
}

func (m *MockClient) Unsubscribe(topics ...string) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, topic := range topics {
		delete(m.handlers, topic)
	}
	return &MockToken{}
}

func (m *MockClient) AddRoute(topic string, callback mqtt.MessageHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = callback
}

func (*MockClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// Deliver invokes the handler subscribed to topic. It reports false when
// nothing is subscribed.
func (m *MockClient) Deliver(topic string, payload []byte) bool {
	m.mu.Lock()
	handler, ok := m.handlers[topic]
	m.mu.Unlock()
	if !ok {
		return false
	}
	handler(m, &MockMessage{TopicName: topic, Body: payload})
	return true
}

func (m *MockClient) Published() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Published(nil), m.published...)
}

// MockToken is an already completed mqtt.Token.
type MockToken struct {
	Err error
}

func (*MockToken) Wait() bool {
	return true
}

func (*MockToken) WaitTimeout(_ time.Duration) bool {
	return true
}

func (*MockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t *MockToken) Error() error {
	return t.Err
}

// MockMessage implements mqtt.Message.
type MockMessage struct {
	TopicName string
	Body      []byte
	ID        uint16
	QoSLevel  byte
	Retain    bool
}

func (*MockMessage) Duplicate() bool { return false }

func (m *MockMessage) Qos() byte { return m.QoSLevel }

func (m *MockMessage) Retained() bool { return m.Retain }

func (m *MockMessage) Topic() string { return m.TopicName }

func (m *MockMessage) MessageID() uint16 { return m.ID }

func (m *MockMessage) Payload() []byte { return m.Body }

func (*MockMessage) Ack() {}
