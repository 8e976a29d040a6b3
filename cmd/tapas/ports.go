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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stefaandesmet2003/tapas/config"
	"github.com/stefaandesmet2003/tapas/detection"
	_ "github.com/stefaandesmet2003/tapas/detection/i2c"
	_ "github.com/stefaandesmet2003/tapas/detection/uart"
)

var (
	portsProbe bool
	portsJSON  bool
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List candidate host ports and ACK sensors",
	Long: `List the serial ports a host program may be attached to, best match first,
and the INA219 current sensors found on the I2C buses.

Without --probe only what the operating system reports is listed; with it the
I2C buses are scanned.`,
	RunE: runPorts,
}

func init() {
	portsCmd.Flags().BoolVar(&portsProbe, "probe", false, "Scan I2C buses for sensors")
	portsCmd.Flags().BoolVar(&portsJSON, "json", false, "Print JSON")
	rootCmd.AddCommand(portsCmd)
}

func detectionOptions(cfg *config.Config, probe bool) detection.Options {
	opts := detection.DefaultOptions()
	opts.IgnorePaths = cfg.Serial.IgnorePaths
	if cfg.Serial.Blocklist != nil {
		opts.Blocklist = cfg.Serial.Blocklist
	}
	if probe {
		opts.Mode = detection.Probe
	}
	return opts
}

func runPorts(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	opts := detectionOptions(cfg, portsProbe)
	devices, err := detection.DetectAll(cmd.Context(), &opts)
	if errors.Is(err, detection.ErrNoDevicesFound) {
		_, _ = fmt.Fprintln(os.Stderr, "no ports found")
		return nil
	}
	if err != nil {
		return err
	}

	if portsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(devices)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TRANSPORT\tPATH\tCONFIDENCE\tNAME")
	for _, d := range devices {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Transport, d.Path, d.Confidence, d.Name)
	}
	return w.Flush()
}

// pickPort returns the most likely serial port
func pickPort(ctx context.Context, cfg *config.Config) (string, error) {
	opts := detectionOptions(cfg, false)
	devices, err := detection.DetectAll(ctx, &opts)
	if err != nil {
		return "", fmt.Errorf("finding host port: %w", err)
	}
	for _, d := range devices {
		if d.Transport == "uart" {
			return d.Path, nil
		}
	}
	return "", fmt.Errorf("finding host port: %w", detection.ErrNoDevicesFound)
}
