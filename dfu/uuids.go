// Copyright (C) 2018 Rob Caelers <rob.caelers@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package dfu

const (
	// ServiceUUID is the Secure DFU GATT service.
	ServiceUUID = "fe59"

	// ControlPointUUID is the write+notify characteristic used for
	// commands and responses.
	ControlPointUUID = "8ec90001-f315-4f60-9fb8-838830daea50"

	// PacketUUID is the write-without-response characteristic used for
	// bulk firmware data.
	PacketUUID = "8ec90002-f315-4f60-9fb8-838830daea50"

	// DefaultTargetName is the advertised name Secure DFU bootloaders
	// use out of the box.
	DefaultTargetName = "DfuTarg"
)
