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

// Package store persists the loco format database and the station
// configuration variables.
//
// The image on disk is a CBOR document followed by its CRC-16/MODBUS,
// low byte first. A missing or damaged image falls back to the defaults.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/sigurn/crc16"
	"github.com/sirupsen/logrus"

	"github.com/stefaandesmet2003/tapas"
)

// imageVersion changes when the image layout does
const imageVersion = 1

// Station configuration variables
const (
	CVVersion          uint16 = 0
	CVBaudRate         uint16 = 1
	CVInvertAccessory  uint16 = 12
	CVAccessoryRepeat  uint16 = 13
	CVExtendResets     uint16 = 18
	CVExtendCommand    uint16 = 19
	CVPomRepeat        uint16 = 20
	CVSpeedRepeat      uint16 = 21
	CVFunctionRepeat   uint16 = 22
	CVDefaultFormat    uint16 = 24
	CVRailcom          uint16 = 25
	CVFastClockRatio   uint16 = 26
	CVMainShortTime    uint16 = 34
	CVProgShortTime    uint16 = 35
	CVExternalStop     uint16 = 36
	CVExternalStopTime uint16 = 37
	CVSerialID         uint16 = 39
)

// DefaultCVs returns the factory configuration
func DefaultCVs() map[uint16]uint8 {
	return map[uint16]uint8{
		CVVersion:          imageVersion,
		CVBaudRate:         0,
		CVInvertAccessory:  0x01,
		CVAccessoryRepeat:  2,
		CVExtendResets:     3,
		CVExtendCommand:    3,
		CVPomRepeat:        3,
		CVSpeedRepeat:      3,
		CVFunctionRepeat:   0,
		CVDefaultFormat:    uint8(tapas.DCC28),
		CVRailcom:          0,
		CVFastClockRatio:   8,
		CVMainShortTime:    8,
		CVProgShortTime:    40,
		CVExternalStop:     1,
		CVExternalStopTime: 30,
		CVSerialID:         1,
	}
}

var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

type image struct {
	Version uint8                   `cbor:"1,keyasint"`
	CVs     map[uint16]uint8        `cbor:"2,keyasint"`
	Formats map[uint16]tapas.Format `cbor:"3,keyasint,omitempty"`
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger
func WithLogger(log *logrus.Entry) Option {
	return func(s *Store) {
		s.log = log
	}
}

// Store holds the persisted state in memory. Changes reach the disk on Flush.
type Store struct {
	img   image
	log   *logrus.Entry
	path  string
	dirty bool
	mu    sync.RWMutex
}

// Open loads path. A missing or corrupt image gives a store with the
// defaults; only unreadable files are an error.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path: path,
		log:  logrus.WithField("component", "store"),
		img:  image{Version: imageVersion, CVs: DefaultCVs(), Formats: map[uint16]tapas.Format{}},
	}
	for _, opt := range opts {
		opt(s)
	}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.log.Infof("no store at %s, using defaults", path)
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("reading store: %w", err)
	}

	img, err := decode(data)
	if err != nil {
		s.log.WithError(err).Warnf("discarding store %s", path)
		s.dirty = true
		return s, nil
	}
	for cv, v := range img.CVs {
		s.img.CVs[cv] = v
	}
	for addr, f := range img.Formats {
		s.img.Formats[addr] = f
	}
	return s, nil
}

func encode(img image) ([]byte, error) {
	body, err := cbor.Marshal(img)
	if err != nil {
		return nil, fmt.Errorf("encoding store: %w", err)
	}
	return binary.LittleEndian.AppendUint16(body, crc16.Checksum(body, crcTable)), nil
}

func decode(data []byte) (image, error) {
	var img image
	if len(data) < 3 {
		return img, tapas.ErrStoreCorrupt
	}
	body := data[:len(data)-2]
	if crc16.Checksum(body, crcTable) != binary.LittleEndian.Uint16(data[len(data)-2:]) {
		return img, fmt.Errorf("%w: checksum mismatch", tapas.ErrStoreCorrupt)
	}
	if err := cbor.Unmarshal(body, &img); err != nil {
		return img, fmt.Errorf("%w: %w", tapas.ErrStoreCorrupt, err)
	}
	if img.Version != imageVersion {
		return img, fmt.Errorf("%w: version %d", tapas.ErrStoreCorrupt, img.Version)
	}
	return img, nil
}

// Path returns the image file
func (s *Store) Path() string {
	return s.path
}

// Dirty reports unsaved changes
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// CV returns a configuration variable, 0 when unknown
func (s *Store) CV(cv uint16) uint8 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.img.CVs[cv]
}

// SetCV changes a configuration variable. The version is read-only.
func (s *Store) SetCV(cv uint16, v uint8) error {
	if cv == CVVersion {
		return fmt.Errorf("cv %d is read-only", cv)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.img.CVs[cv]; ok && old == v {
		return nil
	}
	s.img.CVs[cv] = v
	s.dirty = true
	return nil
}

// DefaultFormat is the format of locos not in the database
func (s *Store) DefaultFormat() tapas.Format {
	f := tapas.Format(s.CV(CVDefaultFormat))
	if f > tapas.DCC128 {
		return tapas.DCC28
	}
	return f
}

// Format returns the stored format of addr. It implements organizer.FormatStore.
func (s *Store) Format(addr uint16) tapas.Format {
	s.mu.RLock()
	f, ok := s.img.Formats[addr]
	s.mu.RUnlock()
	if !ok {
		return s.DefaultFormat()
	}
	return f
}

// SetFormat records the format of addr. Locos using the default format are
// not stored.
func (s *Store) SetFormat(addr uint16, f tapas.Format) error {
	if f > tapas.DCC128 {
		return fmt.Errorf("invalid format %d for loco %d", f, addr)
	}
	def := s.DefaultFormat()
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.img.Formats[addr]
	switch {
	case f == def && ok:
		delete(s.img.Formats, addr)
	case f == def:
		return nil
	case ok && old == f:
		return nil
	default:
		s.img.Formats[addr] = f
	}
	s.dirty = true
	return nil
}

// Formats returns a copy of the format database
func (s *Store) Formats() map[uint16]tapas.Format {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uint16]tapas.Format, len(s.img.Formats))
	for addr, f := range s.img.Formats {
		out[addr] = f
	}
	return out
}

// Flush writes the image when it changed. The file is replaced atomically.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty || s.path == "" {
		return nil
	}

	data, err := encode(s.img)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating store temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing store: %w", err)
	}
	s.dirty = false
	s.log.Debugf("store saved to %s", s.path)
	return nil
}
