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

// Package transport owns the serial link to the controller. It frames the
// inbound byte stream into newline terminated JSON documents, classifies each
// one as a command response or telemetry and raises the matching signal.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/ssvc-open-connect/gateway/pkg/helpers/syncutil"
	"github.com/ssvc-open-connect/gateway/pkg/ssvc/signals"
)

const (
	// MaxLineLength bounds a single inbound document including the newline.
	MaxLineLength = 1024
	// DegradedThreshold is the number of consecutive decode failures after
	// which the link is reported as degraded.
	DegradedThreshold = 10

	DefaultBaud           = 115200
	DefaultReadTimeout    = 100 * time.Millisecond
	DefaultWriteTimeout   = time.Second
	DefaultReconnectDelay = 2 * time.Second
)

// Mirror receives every classified response line.
type Mirror interface {
	Publish(topic string, payload []byte, qos byte, retain bool) error
}

// Options configures a Connector. OnConnected runs after every successful
// open, before the first read, and must not block for long.
type Options struct {
	Factory         SerialPortFactory
	Lister          PortLister
	Bus             *signals.Bus
	Mirror          Mirror
	Clock           clockwork.Clock
	OnConfigChanged func()
	OnConnected     func()
	Path            string
	ResponseTopic   string
	Baud            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ReconnectDelay  time.Duration
}

type Connector struct {
	port           SerialPort
	opts           Options
	lastMessage    string
	lastResponse   string
	decodeFailures int
	portMu         syncutil.Mutex
	textMu         syncutil.RWMutex
	degraded       atomic.Bool
}

func NewConnector(opts Options) (*Connector, error) {
	if opts.Bus == nil {
		return nil, errors.New("connector requires a signal bus")
	}
	if opts.Path == "" {
		return nil, errors.New("connector requires a serial port path")
	}
	if opts.Factory == nil {
		opts.Factory = DefaultSerialPortFactory
	}
	if opts.Lister == nil {
		opts.Lister = DefaultPortLister
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Baud <= 0 {
		opts.Baud = DefaultBaud
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	return &Connector{opts: opts}, nil
}

// Open opens the serial port. It is safe to call again after Close.
func (c *Connector) Open() error {
	c.portMu.Lock()
	defer c.portMu.Unlock()
	if c.port != nil {
		return nil
	}

	path := c.opts.Path
	if path == AutoPort {
		detected, err := DetectPort(c.opts.Lister)
		if err != nil {
			return err
		}
		path = detected
	}

	port, err := c.opts.Factory(path, controllerMode(c.opts.Baud))
	if err != nil {
		return err
	}
	if err := port.SetReadTimeout(c.opts.ReadTimeout); err != nil {
		if closeErr := port.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close serial port")
		}
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	c.port = port
	log.Info().Str("path", path).Int("baud", c.opts.Baud).Msg("opened controller serial port")
	return nil
}

func (c *Connector) Close() error {
	c.portMu.Lock()
	defer c.portMu.Unlock()
	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	if err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}

func (c *Connector) currentPort() SerialPort {
	c.portMu.Lock()
	defer c.portMu.Unlock()
	return c.port
}

// Send writes one outbound line and waits for the transmit buffer to drain.
func (c *Connector) Send(line string) error {
	c.portMu.Lock()
	defer c.portMu.Unlock()
	if c.port == nil {
		return ErrNotOpen
	}

	log.Debug().Str("line", line).Msg("sending controller command")
	data := []byte(line)
	n, err := c.port.Write(data)
	if err != nil {
		if isDisconnection(err) {
			return fmt.Errorf("%w: %w", ErrPortClosed, err)
		}
		return fmt.Errorf("failed to write to port: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrWriteIncomplete, n, len(data))
	}

	drained := make(chan error, 1)
	port := c.port
	go func() {
		drained <- port.Drain()
	}()
	select {
	case err := <-drained:
		if err != nil {
			return fmt.Errorf("failed to drain port: %w", err)
		}
		return nil
	case <-c.opts.Clock.After(c.opts.WriteTimeout):
		return ErrWriteTimeout
	}
}

// LastMessage is the most recent telemetry document.
func (c *Connector) LastMessage() string {
	c.textMu.RLock()
	defer c.textMu.RUnlock()
	return c.lastMessage
}

// LastResponse is the most recent command response document.
func (c *Connector) LastResponse() string {
	c.textMu.RLock()
	defer c.textMu.RUnlock()
	return c.lastResponse
}

// Degraded reports whether the link produced DegradedThreshold or more
// undecodable lines in a row.
func (c *Connector) Degraded() bool {
	return c.degraded.Load()
}

// Run reads the port until ctx is done. A disconnected port is closed and
// reopened after ReconnectDelay.
func (c *Connector) Run(ctx context.Context) error {
	for {
		if err := c.Open(); err != nil {
			log.Error().Err(err).Str("path", c.opts.Path).Msg("failed to open controller port")
		} else {
			if c.opts.OnConnected != nil {
				c.opts.OnConnected()
			}
			err := c.readLoop(ctx)
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Msg("controller link lost, reconnecting")
			if closeErr := c.Close(); closeErr != nil {
				log.Debug().Err(closeErr).Msg("close after disconnect")
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-c.opts.Clock.After(c.opts.ReconnectDelay):
		}
	}
}

func (c *Connector) readLoop(ctx context.Context) error {
	port := c.currentPort()
	if port == nil {
		return ErrNotOpen
	}

	buf := make([]byte, MaxLineLength)
	line := make([]byte, 0, MaxLineLength)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, err := port.Read(buf)
		if err != nil {
			if isDisconnection(err) {
				return fmt.Errorf("%w: %w", ErrPortClosed, err)
			}
			return fmt.Errorf("failed to read from port: %w", err)
		}

		for _, b := range buf[:n] {
			if b == '\n' {
				c.handleLine(line)
				line = line[:0]
				continue
			}
			line = append(line, b)
			if len(line) >= MaxLineLength-1 {
				c.overflow(port, len(line))
				line = line[:0]
				break
			}
		}
	}
}

func (c *Connector) overflow(port SerialPort, size int) {
	log.Error().Int("size", size).Msg("controller line exceeds buffer, discarding input")
	if err := port.ResetInputBuffer(); err != nil {
		log.Warn().Err(err).Msg("failed to reset serial input buffer")
	}
	c.decodeFailed(&DecodeError{Line: "", Err: errors.New("line too long")})
}

func (c *Connector) decodeFailed(err error) {
	c.decodeFailures++
	log.Warn().Err(err).Int("failures", c.decodeFailures).Msg("controller line not decoded")
	if c.decodeFailures >= DegradedThreshold && !c.degraded.Swap(true) {
		log.Error().Int("failures", c.decodeFailures).Msg("controller link degraded")
	}
}

func (c *Connector) decodeSucceeded() {
	c.decodeFailures = 0
	if c.degraded.Swap(false) {
		log.Info().Msg("controller link recovered")
	}
}

func (c *Connector) handleLine(raw []byte) {
	raw = bytes.TrimRight(raw, "\r")
	if len(bytes.TrimSpace(raw)) == 0 {
		return
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		c.decodeFailed(&DecodeError{Line: string(raw), Err: err})
		return
	}
	c.decodeSucceeded()

	text := string(raw)
	log.Trace().Str("line", text).Msg("controller line")

	if stringField(doc, "type") == "response" {
		c.textMu.Lock()
		c.lastResponse = text
		c.textMu.Unlock()

		switch request := stringField(doc, "request"); {
		case request == "GET_SETTINGS":
			c.opts.Bus.Set(signals.SettingsReady)
		case request == "VERSION":
			c.opts.Bus.Set(signals.VersionReady)
		case stringField(doc, "result") == "OK":
			c.opts.Bus.Set(signals.CommandOk)
		default:
			log.Debug().Str("request", request).Msg("controller rejected command")
			c.opts.Bus.Set(signals.CommandError)
		}
		c.mirror(raw)
		return
	}

	c.textMu.Lock()
	c.lastMessage = text
	c.textMu.Unlock()

	if configChanged(doc) && c.opts.OnConfigChanged != nil {
		log.Info().Msg("controller settings changed on the device")
		go c.opts.OnConfigChanged()
	}
	c.opts.Bus.Set(signals.TelemetryReady)
}

func (c *Connector) mirror(raw []byte) {
	if c.opts.Mirror == nil || c.opts.ResponseTopic == "" {
		return
	}
	payload := make([]byte, len(raw))
	copy(payload, raw)
	if err := c.opts.Mirror.Publish(c.opts.ResponseTopic, payload, 1, true); err != nil {
		log.Warn().Err(err).Str("topic", c.opts.ResponseTopic).Msg("failed to mirror controller response")
	}
}

func stringField(doc map[string]json.RawMessage, key string) string {
	raw, ok := doc[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// configChanged reports a truthy common.cfg_chgd marker.
func configChanged(doc map[string]json.RawMessage) bool {
	raw, ok := doc["common"]
	if !ok {
		return false
	}
	var common struct {
		Changed any `json:"cfg_chgd"`
	}
	if err := json.Unmarshal(raw, &common); err != nil {
		return false
	}
	switch v := common.Changed.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != "" && v != "0" && v != "false"
	default:
		return false
	}
}
