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
	"time"
)

// Transport is the byte stream between the station and a host program.
// It is implemented by the UART backend and by MockTransport.
type Transport interface {
	// Read returns the bytes that arrived within the read timeout; 0, nil means nothing arrived
	Read(p []byte) (int, error)

	// Write sends p to the host
	Write(p []byte) (int, error)

	// SetTimeout sets the read timeout
	SetTimeout(timeout time.Duration) error

	// Close closes the transport connection
	Close() error

	// IsConnected returns true if the transport is connected
	IsConnected() bool

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// BaudRateSetter is implemented by transports that can change speed while open
type BaudRateSetter interface {
	SetBaudRate(baud int) error
}

// SupportsBaudRate reports whether the transport can change its baud rate
func SupportsBaudRate(t Transport) bool {
	_, ok := t.(BaudRateSetter)
	return ok
}
