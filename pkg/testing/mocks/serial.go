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
	"errors"
	"time"

	"github.com/ssvc-open-connect/gateway/pkg/helpers/syncutil"
)

// ErrMockPortClosed mirrors the message go.bug.st/serial reports for a
// closed port.
var ErrMockPortClosed = errors.New("port has been closed")

// MockSerialPort is a scripted serial port. Data passed to Feed is returned
// by Read in order; an idle Read waits IdleDelay and returns 0 bytes like
// a real port with a read timeout set.
type MockSerialPort struct {
	ReadError    error
	WriteError   error
	DrainError   error
	CloseError   error
	TimeoutErr   error
	DrainFunc    func() error
	incoming     chan []byte
	closed       chan struct{}
	writes       []string
	pending      []byte
	ShortWrite   int
	IdleDelay    time.Duration
	resets       int
	readDeadline time.Duration
	mu           syncutil.Mutex
	closeOnce    bool
}

func NewMockSerialPort() *MockSerialPort {
	return &MockSerialPort{
		incoming:  make(chan []byte, 64),
		closed:    make(chan struct{}),
		IdleDelay: 5 * time.Millisecond,
	}
}

// Feed queues bytes for Read.
func (m *MockSerialPort) Feed(data string) {
	m.incoming <- []byte(data)
}

func (m *MockSerialPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	readErr := m.ReadError
	idle := m.IdleDelay
	if readErr == nil && len(m.pending) > 0 {
		n := copy(p, m.pending)
		m.pending = m.pending[n:]
		m.mu.Unlock()
		return n, nil
	}
	m.mu.Unlock()

	if readErr != nil {
		return 0, readErr
	}

	select {
	case <-m.closed:
		return 0, ErrMockPortClosed
	default:
	}

	select {
	case <-m.closed:
		return 0, ErrMockPortClosed
	case data := <-m.incoming:
		n := copy(p, data)
		if n < len(data) {
			m.mu.Lock()
			m.pending = append(m.pending, data[n:]...)
			m.mu.Unlock()
		}
		return n, nil
	case <-time.After(idle):
		return 0, nil
	}
}

func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.closed:
		return 0, ErrMockPortClosed
	default:
	}
	if m.WriteError != nil {
		return 0, m.WriteError
	}
	m.writes = append(m.writes, string(p))
	if m.ShortWrite > 0 && m.ShortWrite < len(p) {
		return m.ShortWrite, nil
	}
	return len(p), nil
}

func (m *MockSerialPort) Drain() error {
	m.mu.Lock()
	fn := m.DrainFunc
	err := m.DrainError
	m.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return err
}

func (m *MockSerialPort) ResetInputBuffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	return nil
}

func (m *MockSerialPort) SetReadTimeout(t time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readDeadline = t
	return m.TimeoutErr
}

func (m *MockSerialPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closeOnce {
		m.closeOnce = true
		close(m.closed)
	}
	return m.CloseError
}

// SetReadError makes every following Read fail with err.
func (m *MockSerialPort) SetReadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadError = err
}

// Writes returns a copy of every line written so far.
func (m *MockSerialPort) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.writes...)
}

func (m *MockSerialPort) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}

func (m *MockSerialPort) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeOnce
}

// ConfiguredReadTimeout is the value last passed to SetReadTimeout.
func (m *MockSerialPort) ConfiguredReadTimeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readDeadline
}
