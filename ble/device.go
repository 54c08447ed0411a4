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

package ble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/pkg/errors"
)

// NewClient opens the host's BlueZ HCI device and returns a Client for
// it, the only transport the go-ble dependency supports on Linux.
func NewClient() (Client, error) {
	client, err := NewGoBleClient(func() (ble.Device, error) {
		return linux.NewDevice()
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create BLE device")
	}
	return client, nil
}

// NewDefaultClient builds a GattClient backed by the host's BlueZ HCI
// device.
func NewDefaultClient(ctrlUUID, pktUUID string) (*DfuGattClient, error) {
	client, err := NewClient()
	if err != nil {
		return nil, err
	}
	return NewDfuGattClient(client, ctrlUUID, pktUUID), nil
}
