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

package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stefaandesmet2003/tapas/config"
	"github.com/stefaandesmet2003/tapas/store"
)

var (
	configPath string
	portName   string
	baudRate   int
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "tapas",
	Short: "DCC command station",
	Long: `tapas drives a DCC track from GPIO lines and talks to a host program
over an LI101 compatible serial link.

Settings come from a YAML file (--config). Configuration variables written by
the host are kept in the store file named there and override the YAML values.`,
	SilenceUsage: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		if logLevel == "" {
			return nil
		}
		lvl, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
		logrus.SetLevel(lvl)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "tapas.yaml", "Configuration file")
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Host serial port (default: from config or detected)")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "Host baud rate (default: from config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

func execute() error {
	return rootCmd.Execute()
}

// loadSettings reads the config file and the store and applies the flags
func loadSettings() (*config.Config, *store.Store, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	db, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, nil, err
	}
	cfg.ApplyStore(db)

	if portName != "" {
		cfg.Serial.Port = portName
	}
	if baudRate != 0 {
		cfg.Serial.BaudRate = baudRate
	}
	if logLevel == "" {
		if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
			logrus.SetLevel(lvl)
		}
	}
	return cfg, db, nil
}
