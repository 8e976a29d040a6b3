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

// Package uart provides the serial host link of the station
package uart

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/stefaandesmet2003/tapas"
	"github.com/stefaandesmet2003/tapas/internal/retry"
)

const (
	// DefaultBaudRate is the LI101 power-on rate
	DefaultBaudRate = 19200

	defaultTimeout = 10 * time.Millisecond
	openRetries    = 3
	openRetryDelay = 500 * time.Millisecond
)

// Opener opens a serial port. It is replaced in tests.
type Opener func(name string, mode *serial.Mode) (serial.Port, error)

// Transport implements tapas.Transport over a serial port
type Transport struct {
	port     serial.Port
	mode     serial.Mode
	portName string
	timeout  time.Duration
	mu       sync.Mutex
}

// New opens portName at baud
func New(portName string, baud int) (*Transport, error) {
	return Open(serial.Open, portName, baud)
}

// Open opens portName through opener, retrying busy ports a few times
func Open(opener Opener, portName string, baud int) (*Transport, error) {
	if baud == 0 {
		baud = DefaultBaudRate
	}
	t := &Transport{
		portName: portName,
		timeout:  defaultTimeout,
		mode: serial.Mode{
			BaudRate: baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
	}

	port, err := retry.WithRetry(retry.Config{
		Description: "open " + portName,
		MaxRetries:  openRetries,
		RetryDelay:  openRetryDelay,
	}, func() (serial.Port, bool, error) {
		mode := t.mode
		p, err := opener(portName, &mode)
		if err == nil {
			return p, false, nil
		}
		var perr *serial.PortError
		if errors.As(err, &perr) {
			switch perr.Code() {
			case serial.PortBusy:
				return nil, true, nil
			case serial.PortNotFound:
				return nil, false, tapas.NewTransportError("open", portName, tapas.ErrPortNotFound, tapas.ErrorTypePermanent)
			}
		}
		return nil, false, tapas.NewTransportError("open", portName, err, tapas.ErrorTypePermanent)
	})
	if err != nil {
		return nil, err
	}

	if err := port.SetReadTimeout(t.timeout); err != nil {
		_ = port.Close()
		return nil, tapas.NewTransportError("set timeout", portName, err, tapas.ErrorTypePermanent)
	}
	t.port = port
	return t, nil
}

// Read returns what arrived within the read timeout
func (t *Transport) Read(p []byte) (int, error) {
	port := t.current()
	if port == nil {
		return 0, tapas.ErrTransportClosed
	}
	n, err := port.Read(p)
	if err != nil {
		return n, t.wrap("read", err)
	}
	return n, nil
}

// Write sends p completely
func (t *Transport) Write(p []byte) (int, error) {
	port := t.current()
	if port == nil {
		return 0, tapas.ErrTransportClosed
	}
	written := 0
	for written < len(p) {
		n, err := port.Write(p[written:])
		if err != nil {
			return written, t.wrap("write", err)
		}
		if n == 0 {
			return written, tapas.NewTransportError("write", t.portName, tapas.ErrTransportWrite, tapas.ErrorTypeTransient)
		}
		written += n
	}
	return written, nil
}

// SetTimeout sets the read timeout
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	if t.port == nil {
		return nil
	}
	if err := t.port.SetReadTimeout(timeout); err != nil {
		return t.wrap("set timeout", err)
	}
	return nil
}

// SetBaudRate changes the line speed of the open port
func (t *Transport) SetBaudRate(baud int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return tapas.ErrTransportClosed
	}
	mode := t.mode
	mode.BaudRate = baud
	if err := t.port.SetMode(&mode); err != nil {
		return t.wrap("set baud rate", fmt.Errorf("%d baud: %w", baud, err))
	}
	t.mode = mode
	return nil
}

// BaudRate returns the current line speed
func (t *Transport) BaudRate() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode.BaudRate
}

// Close closes the port
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return t.wrap("close", err)
	}
	return nil
}

// IsConnected returns true while the port is open
func (t *Transport) IsConnected() bool {
	return t.current() != nil
}

// Type returns TransportUART
func (*Transport) Type() tapas.TransportType {
	return tapas.TransportUART
}

// PortName returns the device path
func (t *Transport) PortName() string {
	return t.portName
}

func (t *Transport) current() serial.Port {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port
}

func (t *Transport) wrap(op string, err error) error {
	var perr *serial.PortError
	if errors.As(err, &perr) && perr.Code() == serial.PortClosed {
		return tapas.NewTransportError(op, t.portName, tapas.ErrTransportClosed, tapas.ErrorTypePermanent)
	}
	return tapas.NewTransportError(op, t.portName, err, tapas.ErrorTypeTransient)
}

var _ tapas.Transport = (*Transport)(nil)
