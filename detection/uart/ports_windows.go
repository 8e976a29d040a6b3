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

//go:build windows

package uart

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sys/windows/registry"
)

// listPorts merges the enumerator list with the SERIALCOMM registry key,
// which also lists ports of drivers the enumerator does not see
func listPorts(_ context.Context) ([]serialPort, error) {
	enumerated, enumErr := enumerate()
	registryPorts, registryErr := getRegistryCOMPorts()
	if enumErr != nil && registryErr != nil {
		return nil, errors.Join(enumErr, registryErr)
	}

	byPath := make(map[string]serialPort)
	for _, port := range registryPorts {
		byPath[strings.ToUpper(port.Path)] = port
	}
	// the enumerator carries the USB metadata
	for _, port := range enumerated {
		byPath[strings.ToUpper(port.Path)] = port
	}

	ports := make([]serialPort, 0, len(byPath))
	for _, port := range byPath {
		ports = append(ports, port)
	}
	return ports, nil
}

// getRegistryCOMPorts reads the COM ports from the registry
func getRegistryCOMPorts() ([]serialPort, error) {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, `HARDWARE\DEVICEMAP\SERIALCOMM`, registry.QUERY_VALUE)
	if err != nil {
		return nil, err
	}
	defer key.Close()

	values, err := key.ReadValueNames(-1)
	if err != nil {
		return nil, err
	}

	ports := make([]serialPort, 0, len(values))
	for _, value := range values {
		portName, _, err := key.GetStringValue(value)
		if err != nil {
			continue
		}

		ports = append(ports, serialPort{
			Path: portName,
			Name: portName,
		})
	}

	return ports, nil
}
