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

// Package i2c finds INA219 current monitors usable as ACK detector.
// Importing it registers the detector with the detection package.
package i2c

import (
	"context"
	"fmt"
	"runtime"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"

	"github.com/stefaandesmet2003/tapas/detection"
	ina219 "github.com/stefaandesmet2003/tapas/hw/i2c"
)

// INA219 address range, selected by the A0 and A1 straps
const (
	firstAddress = 0x40
	lastAddress  = 0x4F
)

// busRef is an I2C bus that can be opened
type busRef struct {
	open func() (i2c.BusCloser, error)
	name string
}

type detector struct {
	buses func() []busRef
}

// New creates the I2C detector
func New() detection.Detector {
	return &detector{buses: registeredBuses}
}

func init() {
	detection.RegisterDetector(New())
}

func registeredBuses() []busRef {
	refs := i2creg.All()
	buses := make([]busRef, 0, len(refs))
	for _, r := range refs {
		buses = append(buses, busRef{name: r.Name, open: r.Open})
	}
	return buses
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "i2c"
}

// Detect searches the I2C buses for current monitors
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	if runtime.GOOS != "linux" {
		return nil, detection.ErrUnsupportedPlatform
	}
	return d.detect(ctx, opts)
}

func (d *detector) detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	buses := d.buses()
	if len(buses) == 0 {
		return nil, detection.ErrNoDevicesFound
	}

	var devices []detection.DeviceInfo
	for _, bus := range buses {
		select {
		case <-ctx.Done():
			return devices, detection.ErrDetectionTimeout
		default:
		}
		found, err := detectBusDevices(bus, opts)
		if err != nil {
			continue
		}
		devices = append(devices, found...)
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// detectBusDevices lists the candidates on one bus. Passive detection only
// names the default address; probing reads the configuration register.
func detectBusDevices(ref busRef, opts *detection.Options) ([]detection.DeviceInfo, error) {
	if opts.Mode == detection.Passive {
		device, skip := deviceInfo(ref.name, ina219.DefaultAddress, detection.Low, opts)
		if skip {
			return nil, nil
		}
		return []detection.DeviceInfo{device}, nil
	}

	bus, err := ref.open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", ref.name, err)
	}
	defer func() { _ = bus.Close() }()

	var devices []detection.DeviceInfo
	for addr := uint16(firstAddress); addr <= lastAddress; addr++ {
		confirmed, present := ina219.Probe(bus, addr)
		if !present {
			continue
		}
		confidence := detection.Medium
		if confirmed {
			confidence = detection.High
		}
		device, skip := deviceInfo(ref.name, addr, confidence, opts)
		if !skip {
			devices = append(devices, device)
		}
	}
	return devices, nil
}

func deviceInfo(busName string, addr uint16, c detection.Confidence, opts *detection.Options) (detection.DeviceInfo, bool) {
	path := fmt.Sprintf("%s:0x%02X", busName, addr)
	if detection.IsPathIgnored(path, opts.IgnorePaths) {
		return detection.DeviceInfo{}, true
	}
	return detection.DeviceInfo{
		Transport:  "i2c",
		Path:       path,
		Name:       fmt.Sprintf("INA219 on %s address 0x%02X", busName, addr),
		Confidence: c,
		Metadata: map[string]string{
			"bus":     busName,
			"address": fmt.Sprintf("0x%02X", addr),
		},
	}, false
}
