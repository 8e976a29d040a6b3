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

// Package config loads the station configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/stefaandesmet2003/tapas/detection"
	"github.com/stefaandesmet2003/tapas/hw"
	ina219 "github.com/stefaandesmet2003/tapas/hw/i2c"
	"github.com/stefaandesmet2003/tapas/lenz"
	"github.com/stefaandesmet2003/tapas/organizer"
	"github.com/stefaandesmet2003/tapas/programmer"
	"github.com/stefaandesmet2003/tapas/status"
	"github.com/stefaandesmet2003/tapas/store"
	"github.com/stefaandesmet2003/tapas/transport/uart"
)

// Config holds the whole station configuration
type Config struct {
	Serial     SerialConfig      `yaml:"serial" json:"serial"`
	Organizer  organizer.Config  `yaml:"organizer" json:"organizer"`
	Programmer programmer.Config `yaml:"programmer" json:"programmer"`
	Status     status.Config     `yaml:"status" json:"status"`
	Lenz       lenz.Config       `yaml:"lenz" json:"lenz"`
	Pins       hw.Pins           `yaml:"pins" json:"pins"`
	Sensor     SensorConfig      `yaml:"sensor" json:"sensor"`
	Monitor    MonitorConfig     `yaml:"monitor" json:"monitor"`
	StorePath  string            `yaml:"store_path" json:"storePath"`
	LogLevel   string            `yaml:"log_level" json:"logLevel"`
	// Cutout opens the RailCom gap after every packet
	Cutout bool `yaml:"cutout" json:"cutout"`

	path string
}

// SerialConfig selects the host link
type SerialConfig struct {
	// Port is the device path, empty to pick the best detected port
	Port        string   `yaml:"port" json:"port"`
	BaudRate    int      `yaml:"baud_rate" json:"baudRate"`
	IgnorePaths []string `yaml:"ignore_paths" json:"ignorePaths"`
	Blocklist   []string `yaml:"blocklist" json:"blocklist"`
}

// SensorConfig selects the I2C acknowledge detector. When disabled the ACK
// GPIO input is used.
type SensorConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	Bus     string        `yaml:"bus" json:"bus"`
	Address uint16        `yaml:"address" json:"address"`
	INA219  ina219.Config `yaml:"ina219" json:"ina219"`
}

// MonitorConfig controls the websocket status stream
type MonitorConfig struct {
	// ListenAddr is empty to disable the monitor
	ListenAddr string        `yaml:"listen_addr" json:"listenAddr"`
	Interval   time.Duration `yaml:"interval" json:"interval"`
}

// DefaultConfig returns a config with the factory settings
func DefaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			BaudRate:  uart.DefaultBaudRate,
			Blocklist: detection.DefaultBlocklist(),
		},
		Organizer:  organizer.DefaultConfig(),
		Programmer: programmer.DefaultConfig(),
		Status:     status.DefaultConfig(),
		Lenz:       lenz.DefaultConfig(),
		Pins:       hw.DefaultPins(),
		Sensor: SensorConfig{
			Address: ina219.DefaultAddress,
			INA219:  ina219.DefaultConfig(),
		},
		Monitor: MonitorConfig{
			Interval: 500 * time.Millisecond,
		},
		StorePath: "tapas.cbor",
		LogLevel:  "info",
	}
}

// LoadConfig reads path over the defaults. A missing file gives the
// defaults, a malformed one is an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.path = path
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logrus.Infof("no config at %s, using defaults", path)
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logrus.Debugf("config loaded from %s", path)
	return cfg, nil
}

// Path returns the file the config came from
func (c *Config) Path() string {
	return c.path
}

// Save writes the config as YAML
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks the settings that would otherwise fail deep in a component
func (c *Config) Validate() error {
	o := c.Organizer
	for name, n := range map[string]int{
		"prog_queue":    o.ProgQueue,
		"high_queue":    o.HighQueue,
		"low_queue":     o.LowQueue,
		"repeat_buffer": o.RepeatBuffer,
	} {
		if n < 2 {
			return fmt.Errorf("organizer %s must be at least 2, got %d", name, n)
		}
	}
	if o.Locos < 1 {
		return fmt.Errorf("organizer locos must be at least 1, got %d", o.Locos)
	}
	if c.Programmer.ExtraResets > 10 || c.Programmer.ExtraCommands > 10 {
		return errors.New("programmer extensions are limited to 10")
	}
	if c.Serial.BaudRate < 0 {
		return fmt.Errorf("invalid baud rate %d", c.Serial.BaudRate)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// baudRates maps the baud rate CV to a line speed
var baudRates = []int{19200, 38400, 57600, 115200}

func millis(v uint8) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// ApplyStore overrides the settings kept as configuration variables in the
// persistent store.
func (c *Config) ApplyStore(s *store.Store) {
	if i := int(s.CV(store.CVBaudRate)); i < len(baudRates) {
		c.Serial.BaudRate = baudRates[i]
	}
	c.Lenz.InvertAccessory = s.CV(store.CVInvertAccessory)&0x01 != 0
	c.Organizer.Repeats.Accessory = s.CV(store.CVAccessoryRepeat)
	c.Organizer.Repeats.Pom = s.CV(store.CVPomRepeat)
	c.Organizer.Repeats.Speed = s.CV(store.CVSpeedRepeat)
	c.Organizer.Repeats.Function = s.CV(store.CVFunctionRepeat)
	c.Programmer.ExtraResets = min(s.CV(store.CVExtendResets), 10)
	c.Programmer.ExtraCommands = min(s.CV(store.CVExtendCommand), 10)
	c.Status.ClockRatio = s.CV(store.CVFastClockRatio)
	c.Status.MainIgnore = millis(s.CV(store.CVMainShortTime))
	c.Status.ProgIgnore = millis(s.CV(store.CVProgShortTime))
	c.Status.ExternalStop = s.CV(store.CVExternalStop) != 0
	c.Status.ExternalStopDead = millis(s.CV(store.CVExternalStopTime))
	c.Cutout = s.CV(store.CVRailcom)&0x01 != 0
}
