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

package frame

// Service mode packets. CVs are 1-based here and sent 0-based.

func directInstr(kind byte, cv uint16) (byte, byte) {
	cvAddr := cv - 1
	return 0x70 | kind | byte(cvAddr>>8)&0x03, byte(cvAddr & 0xFF)
}

// DirectWrite builds 0111CCAA AAAAAAAA DDDDDDDD with CC=11
func DirectWrite(cv uint16, data uint8) Message {
	i0, i1 := directInstr(0x0C, cv)
	return New(TypeVoid, 1, i0, i1, data)
}

// DirectVerify builds a direct mode byte verify (CC=01)
func DirectVerify(cv uint16, data uint8) Message {
	i0, i1 := directInstr(0x04, cv)
	return New(TypeProg, 1, i0, i1, data)
}

// DirectBitVerify builds a bit manipulation packet verifying bit pos equals value
func DirectBitVerify(cv uint16, pos, value uint8) Message {
	i0, i1 := directInstr(0x08, cv)
	return New(TypeProg, 1, i0, i1, 0xE0|(value&0x01)<<3|pos&0x07)
}

// DirectBitWrite builds a bit manipulation packet writing value to bit pos
func DirectBitWrite(cv uint16, pos, value uint8) Message {
	i0, i1 := directInstr(0x08, cv)
	return New(TypeProg, 1, i0, i1, 0xF0|(value&0x01)<<3|pos&0x07)
}

// RegisterVerify builds 0111CRRR DDDDDDDD with C=0; reg is 0-based
func RegisterVerify(reg, data uint8) Message {
	return New(TypeProg, 1, 0x70|reg&0x07, data)
}

// RegisterWrite builds 0111CRRR DDDDDDDD with C=1; reg is 0-based
func RegisterWrite(reg, data uint8) Message {
	return New(TypeProg, 1, 0x78|reg&0x07, data)
}
