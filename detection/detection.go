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

// Package detection finds the serial ports a host program may be attached
// to and the I2C current sensors usable for ACK detection.
package detection

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Detection errors
var (
	ErrNoDevicesFound      = errors.New("no devices found")
	ErrUnsupportedPlatform = errors.New("detection not supported on this platform")
	ErrDetectionTimeout    = errors.New("detection timed out")
)

// Mode selects how intrusive detection may be
type Mode int

const (
	// Passive only lists what the operating system reports
	Passive Mode = iota
	// Probe may talk to candidate devices
	Probe
)

// Confidence rates how likely a device is the one wanted
type Confidence int

const (
	// Low means nothing identifies the device
	Low Confidence = iota
	// Medium means the device matches a known adapter or address
	Medium
	// High means a probe confirmed the device
	High
)

// String returns the confidence name
func (c Confidence) String() string {
	switch c {
	case High:
		return "high"
	case Medium:
		return "medium"
	default:
		return "low"
	}
}

// DeviceInfo describes one detected device
type DeviceInfo struct {
	Metadata   map[string]string `json:"metadata,omitempty"`
	Transport  string            `json:"transport"`
	Path       string            `json:"path"`
	Name       string            `json:"name"`
	Confidence Confidence        `json:"confidence"`
}

// Options configures a detection run
type Options struct {
	IgnorePaths []string
	Blocklist   []string
	Timeout     time.Duration
	Mode        Mode
}

// DefaultOptions returns passive detection with the default blocklist
func DefaultOptions() Options {
	return Options{
		Blocklist: DefaultBlocklist(),
		Timeout:   5 * time.Second,
		Mode:      Passive,
	}
}

// Detector finds devices of one transport
type Detector interface {
	Transport() string
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
}

var (
	detectors   []Detector
	detectorsMu sync.RWMutex
)

// RegisterDetector adds a detector for DetectAll
func RegisterDetector(d Detector) {
	detectorsMu.Lock()
	defer detectorsMu.Unlock()
	detectors = append(detectors, d)
}

// Detectors returns the registered detectors
func Detectors() []Detector {
	detectorsMu.RLock()
	defer detectorsMu.RUnlock()
	return append([]Detector(nil), detectors...)
}

// DetectAll runs every registered detector and returns the devices found,
// best candidates first. Detectors unsupported on this platform are skipped.
func DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var found []DeviceInfo
	var errs []error
	for _, d := range Detectors() {
		devices, err := d.Detect(ctx, opts)
		switch {
		case errors.Is(err, ErrUnsupportedPlatform), errors.Is(err, ErrNoDevicesFound):
		case err != nil:
			errs = append(errs, err)
		}
		found = append(found, devices...)
	}

	if len(found) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, ErrNoDevicesFound
	}
	sort.SliceStable(found, func(a, b int) bool {
		return found[a].Confidence > found[b].Confidence
	})
	return found, nil
}
