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

package organizer

import (
	"sync"

	"github.com/stefaandesmet2003/tapas"
	"github.com/stefaandesmet2003/tapas/internal/frame"
)

// Loaded is one message handed to a FakeTransmitter
type Loaded struct {
	Message frame.Message
	Count   int
}

// FakeTransmitter records loaded messages instead of encoding them.
// A loaded message stays pending until Drain is called.
type FakeTransmitter struct {
	loaded  []Loaded
	pending int
	mu      sync.Mutex
}

// Load implements Transmitter
func (f *FakeTransmitter) Load(m frame.Message, count int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending != 0 {
		return false
	}
	if count < 1 {
		count = 1
	}
	f.loaded = append(f.loaded, Loaded{Message: m, Count: count})
	f.pending = count
	return true
}

// Count implements Transmitter
func (f *FakeTransmitter) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

// Drain marks the pending message as transmitted
func (f *FakeTransmitter) Drain() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = 0
}

// Loaded returns and clears the recorded messages
func (f *FakeTransmitter) Loaded() []Loaded {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.loaded
	f.loaded = nil
	return out
}

// StaticMode is a ModeReader with a settable mode
type StaticMode struct {
	M tapas.RunMode
}

// Mode implements ModeReader
func (s *StaticMode) Mode() tapas.RunMode {
	return s.M
}

// SetMode changes the mode
func (s *StaticMode) SetMode(m tapas.RunMode) {
	s.M = m
}

// MemFormats is an in-memory FormatStore
type MemFormats struct {
	formats map[uint16]tapas.Format
	// Default is returned for unknown addresses
	Default tapas.Format
}

// NewMemFormats creates an empty store answering def for unknown addresses
func NewMemFormats(def tapas.Format) *MemFormats {
	return &MemFormats{formats: make(map[uint16]tapas.Format), Default: def}
}

// Format implements FormatStore
func (m *MemFormats) Format(addr uint16) tapas.Format {
	if f, ok := m.formats[addr]; ok {
		return f
	}
	return m.Default
}

// SetFormat implements FormatStore
func (m *MemFormats) SetFormat(addr uint16, f tapas.Format) error {
	m.formats[addr] = f
	return nil
}
