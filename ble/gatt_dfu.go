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
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// dfuHandle is the Handle returned by DfuGattClient.FindByName: just the
// peer address discovered during scanning.
type dfuHandle struct {
	addr string
	name string
}

func (h *dfuHandle) Addr() string { return h.addr }

// DfuGattClient adapts the generic Client/Peripheral pair into the
// narrow GattClient boundary the DFU driver depends on. It knows about
// exactly two characteristics, named by UUID at construction time.
type DfuGattClient struct {
	client     Client
	ctrlUUID   string
	pktUUID    string

	mu         sync.Mutex
	peripheral Peripheral
}

// NewDfuGattClient builds a GattClient bound to the given Control-Point
// and Packet characteristic UUIDs, using client for scanning and
// connection establishment.
func NewDfuGattClient(client Client, ctrlUUID, pktUUID string) *DfuGattClient {
	return &DfuGattClient{client: client, ctrlUUID: ctrlUUID, pktUUID: pktUUID}
}

// FindByName scans for an advertisement whose local name matches name
// (case-insensitively), returning a Handle usable with Connect.
func (g *DfuGattClient) FindByName(name string, timeout time.Duration) (Handle, error) {
	var found *dfuHandle
	err := g.client.Scan(timeout, func(adv Advertisement) {
		if found != nil {
			return
		}
		if strings.EqualFold(adv.Name, name) {
			found = &dfuHandle{addr: adv.Addr, name: adv.Name}
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan failed")
	}
	if found == nil {
		return nil, errors.Errorf("no advertisement found for name %q", name)
	}
	return found, nil
}

// Connect opens a session with the peer named by handle.
func (g *DfuGattClient) Connect(handle Handle) error {
	h, ok := handle.(*dfuHandle)
	if !ok {
		return errors.New("handle not produced by DfuGattClient.FindByName")
	}

	p, err := g.client.ConnectAddress(h.addr, 10*time.Second)
	if err != nil {
		return errors.Wrap(err, "connect failed")
	}

	g.mu.Lock()
	g.peripheral = p
	g.mu.Unlock()
	return nil
}

// IsConnected reports whether a peripheral session is currently held.
func (g *DfuGattClient) IsConnected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peripheral != nil
}

func (g *DfuGattClient) peer() (Peripheral, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.peripheral == nil {
		return nil, errors.New("not connected")
	}
	return g.peripheral, nil
}

// WriteControlPoint writes data to the Control-Point characteristic.
// withAck selects write-with-response; callers pass false only for
// ABORT, matching the firmware's fire-and-forget handling of it.
func (g *DfuGattClient) WriteControlPoint(data []byte, withAck bool) error {
	p, err := g.peer()
	if err != nil {
		return err
	}
	return p.WriteCharacteristic(g.ctrlUUID, data, !withAck)
}

// WritePacket writes data to the Packet characteristic without
// expecting a GATT-level response.
func (g *DfuGattClient) WritePacket(data []byte) error {
	p, err := g.peer()
	if err != nil {
		return err
	}
	return p.WriteCharacteristic(g.pktUUID, data, true)
}

// SubscribeControlPoint subscribes to notifications on the Control-Point
// characteristic, invoking handler with a timestamp for each one.
func (g *DfuGattClient) SubscribeControlPoint(handler NotifyHandler) error {
	p, err := g.peer()
	if err != nil {
		return err
	}
	return p.Subscribe(g.ctrlUUID, false, func(data []byte) {
		handler(Notification{Data: data, Timestamp: time.Now()})
	})
}

// Disconnect tears down the current session, if any.
func (g *DfuGattClient) Disconnect() error {
	g.mu.Lock()
	p := g.peripheral
	g.peripheral = nil
	g.mu.Unlock()

	if p == nil {
		return nil
	}
	return p.Disconnect()
}
