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

import (
	"context"

	jww "github.com/spf13/jwalterweatherman"
	"github.com/rctsang/nrf52-ble-dfu/ble"
)

// Driver drives one Secure DFU update session end to end, per §4.G: a
// single run() loop dispatching handle/entry/exit hooks until the
// session completes or a fatal error escapes.
type Driver struct {
	Context *Context
}

// NewDriver builds a Driver that delivers pkg's images to targetName
// over gatt.
func NewDriver(gatt ble.GattClient, targetName string, pkg *Package) *Driver {
	return &Driver{Context: NewContext(gatt, targetName, pkg)}
}

// ProgressFunc receives cumulative bytes sent and the total bytes
// across every image in the package, after each transferred packet.
type ProgressFunc func(sent, total int64)

// Run drives the session to completion. It always attempts to abort
// any in-flight object and disconnect as a finalizer, even on error,
// mirroring the Python source's `finally: await client.disconnect()`.
func (d *Driver) Run(ctx context.Context) error {
	c := d.Context
	status := Status(StatusInit)
	var err error

	for {
		switch status {
		case StatusInit, StatusHandled, StatusIgnored:
			h, ok := handlers[c.State]
			if !ok {
				return d.finish(NewError(CodeInvalidInternalState, nil))
			}
			status, err = h.handle(ctx, c)

		case StatusTransitioned:
			prevHandler, ok := handlers[c.PrevState]
			if !ok {
				return d.finish(NewError(CodeInvalidInternalState, nil))
			}
			if _, exitErr := prevHandler.exit(ctx, c); exitErr != nil {
				return d.finish(exitErr)
			}

			newHandler, ok := handlers[c.State]
			if !ok {
				return d.finish(NewError(CodeInvalidInternalState, nil))
			}
			status, err = newHandler.entry(ctx, c)

		case StatusComplete:
			return d.finish(nil)

		case StatusError:
			if err == nil {
				err = NewError(CodeInvalidInternalState, nil)
			}
			return d.finish(err)
		}

		if err != nil && status != StatusError {
			return d.finish(err)
		}
	}
}

// finish is the single exit path out of Run: on any outcome, if the
// transport still reports a connection, abort and disconnect are
// attempted so a session never leaks a GATT connection. When a handler
// has already disconnected, nothing further is sent.
func (d *Driver) finish(runErr error) error {
	c := d.Context

	if c.Gatt.IsConnected() {
		if err := c.Abort(); err != nil {
			jww.ERROR.Printf("abort on shutdown failed: %v\n", err)
		}
		if err := c.Gatt.Disconnect(); err != nil {
			jww.ERROR.Printf("disconnect on shutdown failed: %v\n", err)
		}
	}

	return runErr
}

// TotalBytes is the fixed total of init-packet and firmware-image bytes
// across every image in the session, computed once at context creation
// for progress-bar sizing.
func (c *Context) TotalBytes() int64 {
	return c.sessionTotalBytes
}
