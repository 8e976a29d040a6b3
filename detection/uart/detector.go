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

// Package uart detects serial ports for the host link. Importing it
// registers the detector with the detection package.
package uart

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"

	"github.com/stefaandesmet2003/tapas/detection"
)

// serialPort is one port as reported by the operating system
type serialPort struct {
	Path         string
	Name         string
	VIDPID       string
	Manufacturer string
	Product      string
	SerialNumber string
	USB          bool
}

// listFunc is replaced in tests
type listFunc func(ctx context.Context) ([]serialPort, error)

type detector struct {
	list listFunc
}

// New creates the serial port detector
func New() detection.Detector {
	return &detector{list: listPorts}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "uart"
}

// Detect lists the serial ports, leaving out blocked and ignored ones
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := d.list(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing serial ports: %w", err)
	}

	devices := make([]detection.DeviceInfo, 0, len(ports))
	for _, p := range ports {
		if detection.IsPathIgnored(p.Path, opts.IgnorePaths) {
			continue
		}
		if p.VIDPID != "" && detection.IsBlocked(p.VIDPID, opts.Blocklist) {
			continue
		}
		devices = append(devices, describe(p))
	}
	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	sort.Slice(devices, func(a, b int) bool { return devices[a].Path < devices[b].Path })
	return devices, nil
}

func describe(p serialPort) detection.DeviceInfo {
	info := detection.DeviceInfo{
		Transport:  "uart",
		Path:       p.Path,
		Name:       p.Name,
		Confidence: detection.Low,
		Metadata:   map[string]string{},
	}
	if info.Name == "" {
		info.Name = p.Path
	}
	if p.VIDPID != "" {
		info.Metadata["vidpid"] = p.VIDPID
		if vendor, ok := detection.AdapterVendor(p.VIDPID); ok {
			info.Confidence = detection.Medium
			info.Metadata["adapter"] = vendor
		}
	}
	if p.Manufacturer != "" {
		info.Metadata["manufacturer"] = p.Manufacturer
	}
	if p.Product != "" {
		info.Metadata["product"] = p.Product
		if p.Name == "" {
			info.Name = fmt.Sprintf("%s (%s)", p.Product, p.Path)
		}
	}
	if p.SerialNumber != "" {
		info.Metadata["serial"] = p.SerialNumber
	}
	return info
}

// enumerate asks go.bug.st/serial for the detailed port list
func enumerate() ([]serialPort, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	ports := make([]serialPort, 0, len(details))
	for _, d := range details {
		p := serialPort{Path: d.Name, Product: d.Product, SerialNumber: d.SerialNumber, USB: d.IsUSB}
		if d.IsUSB && d.VID != "" && d.PID != "" {
			p.VIDPID = strings.ToUpper(d.VID + ":" + d.PID)
		}
		ports = append(ports, p)
	}
	return ports, nil
}
