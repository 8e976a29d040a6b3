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

package detection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPathIgnored(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		devicePath  string
		ignorePaths []string
		expected    bool
	}{
		{"empty ignore list", "/dev/ttyUSB0", []string{}, false},
		{"empty device path", "", []string{"/dev/ttyUSB0"}, false},
		{"exact match unix path", "/dev/ttyUSB0", []string{"/dev/ttyUSB0"}, true},
		{"exact match windows path", "COM2", []string{"COM2"}, true},
		{"case insensitive match", "/dev/ttyUSB0", []string{"/DEV/TTYUSB0"}, true},
		{"windows case insensitive", "com2", []string{"COM2"}, true},
		{"no match", "/dev/ttyUSB1", []string{"/dev/ttyUSB0"}, false},
		{"multiple paths with match", "/dev/ttyUSB1", []string{"/dev/ttyUSB0", "/dev/ttyUSB1", "COM2"}, true},
		{"multiple paths no match", "/dev/ttyUSB2", []string{"/dev/ttyUSB0", "/dev/ttyUSB1", "COM2"}, false},
		{"i2c path format", "/dev/i2c-1:0x40", []string{"/dev/i2c-1:0x40"}, true},
		{"path with relative components", "/dev/../dev/ttyUSB0", []string{"/dev/ttyUSB0"}, true},
		{"empty strings in ignore list", "/dev/ttyUSB0", []string{"", "/dev/ttyUSB0", ""}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, IsPathIgnored(tt.devicePath, tt.ignorePaths))
		})
	}
}

func TestBlocklist(t *testing.T) {
	t.Parallel()

	assert.True(t, IsBlocked("1366:0105", DefaultBlocklist()))
	assert.True(t, IsBlocked(" 0483:374b ", DefaultBlocklist()))
	assert.False(t, IsBlocked("0403:6001", DefaultBlocklist()))
	assert.False(t, IsBlocked("0403:6001", nil))
}

func TestAdapterVendor(t *testing.T) {
	t.Parallel()

	name, ok := AdapterVendor("1a86:7523")
	require.True(t, ok)
	assert.Equal(t, "WCH CH340", name)

	_, ok = AdapterVendor("FFFF:0001")
	assert.False(t, ok)
	_, ok = AdapterVendor("")
	assert.False(t, ok)
}

func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	assert.Nil(t, opts.IgnorePaths)
	assert.Equal(t, Passive, opts.Mode)
	assert.NotEmpty(t, opts.Blocklist)
}

type fakeDetector struct {
	err     error
	devices []DeviceInfo
}

func (*fakeDetector) Transport() string { return "fake" }

func (f *fakeDetector) Detect(context.Context, *Options) ([]DeviceInfo, error) {
	return f.devices, f.err
}

// DetectAll uses the package registry, so this test does not run in parallel
func TestDetectAllOrdersByConfidence(t *testing.T) {
	detectorsMu.Lock()
	saved := detectors
	detectors = nil
	detectorsMu.Unlock()
	t.Cleanup(func() {
		detectorsMu.Lock()
		detectors = saved
		detectorsMu.Unlock()
	})

	opts := DefaultOptions()
	_, err := DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, ErrNoDevicesFound)

	RegisterDetector(&fakeDetector{err: ErrUnsupportedPlatform})
	RegisterDetector(&fakeDetector{devices: []DeviceInfo{{Path: "/dev/ttyS0", Confidence: Low}}})
	RegisterDetector(&fakeDetector{devices: []DeviceInfo{{Path: "/dev/ttyUSB0", Confidence: Medium}}})

	got, err := DetectAll(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "/dev/ttyUSB0", got[0].Path)
	assert.Equal(t, "medium", got[0].Confidence.String())
}
