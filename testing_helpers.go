// tapas
// Copyright (c) 2025 The tapas Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of tapas.
//
// tapas is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// tapas is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with tapas; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package tapas

import (
	"sync"
	"time"
)

// MockTransport is an in-memory Transport. Tests feed host bytes with Feed
// and inspect what the station answered with Written.
type MockTransport struct {
	ReadErr  error
	WriteErr error
	inbound  []byte
	outbound []byte
	bauds    []int
	timeout  time.Duration
	mu       sync.Mutex
	closed   bool
}

// NewMockTransport creates an open mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{timeout: 10 * time.Millisecond}
}

// Feed queues bytes as if the host had sent them
func (m *MockTransport) Feed(b ...byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbound = append(m.inbound, b...)
}

// Written returns and clears everything written so far
func (m *MockTransport) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.outbound
	m.outbound = nil
	return out
}

// BaudRates returns the baud rates requested through SetBaudRate
func (m *MockTransport) BaudRates() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.bauds...)
}

// Read returns queued inbound bytes without blocking
func (m *MockTransport) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrTransportClosed
	}
	if m.ReadErr != nil {
		return 0, m.ReadErr
	}
	n := copy(p, m.inbound)
	m.inbound = m.inbound[n:]
	return n, nil
}

// Write records outbound bytes
func (m *MockTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrTransportClosed
	}
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	m.outbound = append(m.outbound, p...)
	return len(p), nil
}

// SetTimeout stores the timeout
func (m *MockTransport) SetTimeout(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
	return nil
}

// SetBaudRate records the requested rate
func (m *MockTransport) SetBaudRate(baud int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bauds = append(m.bauds, baud)
	return nil
}

// Close marks the transport as closed
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// IsConnected returns false after Close
func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// Type returns TransportMock
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// FakeClock is a Clock that only moves when told to
type FakeClock struct {
	now time.Time
	mu  sync.Mutex
}

// NewFakeClock creates a clock stopped at start
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now implements Clock
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
