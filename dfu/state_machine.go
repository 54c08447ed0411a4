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
	"hash/crc32"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/rctsang/nrf52-ble-dfu/ble"
)

// stateHandler is the tagged-variant replacement for per-state
// subclassing: one concrete type per State, dispatched through the
// handlers registry below rather than through inheritance. Every State
// must have an entry in the registry; init() panics otherwise, since a
// silently-unhandled state is worse than a boot-time crash.
type stateHandler interface {
	entry(ctx context.Context, c *Context) (Status, error)
	handle(ctx context.Context, c *Context) (Status, error)
	exit(ctx context.Context, c *Context) (Status, error)
}

// noopEntryExit is embedded by handlers that need no special entry or
// exit behavior, so only handle needs overriding.
type noopEntryExit struct{}

func (noopEntryExit) entry(ctx context.Context, c *Context) (Status, error) {
	return StatusInit, nil
}

func (noopEntryExit) exit(ctx context.Context, c *Context) (Status, error) {
	return StatusHandled, nil
}

// subscribeControlPoint wires the transport's notify callback into the
// context's bounded response queue. The callback must not block, so a
// full queue drops the notification rather than stalling the radio
// stack's delivery goroutine.
func subscribeControlPoint(c *Context) error {
	return c.Gatt.SubscribeControlPoint(func(n ble.Notification) {
		select {
		case c.ResponseQueue <- n:
		default:
			jww.ERROR.Println("response queue full, dropping notification")
		}
	})
}

// --- DISCONNECTED -----------------------------------------------------

type disconnectedHandler struct{}

func (disconnectedHandler) entry(ctx context.Context, c *Context) (Status, error) {
	jww.INFO.Println("entering state: DISCONNECTED")
	c.scanAttempts = 0
	return StatusHandled, nil
}

func (disconnectedHandler) exit(ctx context.Context, c *Context) (Status, error) {
	return StatusHandled, nil
}

func (disconnectedHandler) handle(ctx context.Context, c *Context) (Status, error) {
	if len(c.ImageQueue) == 0 {
		jww.INFO.Println("all images sent")
		return c.Transition(StateTransferDone), nil
	}

	c.scanAttempts++
	jww.INFO.Printf("searching for target (attempt %d/%d): %s\n", c.scanAttempts, MaxConnectAttempts, c.TargetName)

	handle, err := c.Gatt.FindByName(c.TargetName, scanAttemptTimeout)
	if err != nil {
		if c.scanAttempts < MaxConnectAttempts {
			return StatusHandled, nil
		}
		return StatusError, NewError(CodeFailedToConnect, errors.Errorf("no response from %q after %d attempts", c.TargetName, MaxConnectAttempts))
	}

	jww.INFO.Printf("%s found\n", c.TargetName)
	c.TargetHandle = handle
	c.Image = c.Pkg.Images[c.ImageQueue[0]]
	return c.Transition(StateConnecting), nil
}

// --- CONNECTING ---------------------------------------------------------

type connectingHandler struct{ noopEntryExit }

func (connectingHandler) handle(ctx context.Context, c *Context) (Status, error) {
	if err := c.Gatt.Connect(c.TargetHandle); err != nil {
		jww.INFO.Printf("connect to %q failed, returning to scan: %v\n", c.TargetName, err)
		return c.Transition(StateDisconnected), nil
	}

	if err := subscribeControlPoint(c); err != nil {
		return StatusError, NewError(CodeEnablingControlPointFailed, err)
	}

	jww.INFO.Printf("connected to %s\n", c.TargetHandle.Addr())
	return c.Transition(StateTransferReady), nil
}

// --- TRANSFER_READY -------------------------------------------------------

type transferReadyHandler struct{ noopEntryExit }

func (transferReadyHandler) handle(ctx context.Context, c *Context) (Status, error) {
	c.Phase = PhaseCommand
	c.TxData = c.Image.InitData
	c.BytesSent = 0
	c.LocalCRC = 0
	c.ObjectsSent = 0
	c.NumObjects = 0
	c.Attempts = 0
	return c.Transition(StateSelectObject), nil
}

// --- SELECT_OBJECT --------------------------------------------------------

type selectObjectHandler struct{}

func (selectObjectHandler) objectType(c *Context) ObjectType {
	if c.Phase == PhaseCommand {
		return ObjectTypeCommand
	}
	return ObjectTypeData
}

func (h selectObjectHandler) entry(ctx context.Context, c *Context) (Status, error) {
	if err := c.ClearPRN(ctx, true); err != nil {
		return StatusError, err
	}
	if err := c.ObjectSelect(h.objectType(c)); err != nil {
		return StatusError, err
	}
	return StatusInit, nil
}

func (h selectObjectHandler) handle(ctx context.Context, c *Context) (Status, error) {
	resp, err := c.GetResponse(ctx)
	if err != nil {
		return StatusError, err
	}
	if !resp.Ok() {
		return StatusError, NewError(resp.ErrorCode(), nil)
	}

	c.MaxSize = resp.MaxSize
	c.Offset = resp.Offset
	c.TargetCRC = resp.CRC

	if c.NumObjects == 0 {
		c.NumObjects = uint32(ceilDiv(len(c.TxData), int(c.MaxSize)))
	}

	fullObject := c.TxData
	if int(c.MaxSize) < len(fullObject) {
		fullObject = fullObject[:c.MaxSize]
	}

	switch {
	case int(c.Offset) == len(c.TxData) && c.TargetCRC == crc32.ChecksumIEEE(c.TxData):
		c.Object = fullObject
		return c.Transition(StateExecuteObject), nil

	case c.Offset > 0 && int(c.Offset) <= len(c.TxData) && c.TargetCRC == crc32.ChecksumIEEE(c.TxData[:c.Offset]):
		c.Object = fullObject[c.Offset:]
		c.BytesSent = c.Offset
		c.LocalCRC = c.TargetCRC
		return c.Transition(StateTransferringObject), nil

	default:
		return c.Transition(StateCreateObject), nil
	}
}

func (selectObjectHandler) exit(ctx context.Context, c *Context) (Status, error) {
	return StatusHandled, nil
}

// --- CREATE_OBJECT --------------------------------------------------------

type createObjectHandler struct{ selectObjectHandler }

func (h createObjectHandler) entry(ctx context.Context, c *Context) (Status, error) {
	if err := c.ClearPRN(ctx, false); err != nil {
		return StatusError, err
	}

	fullObject := c.TxData
	if int(c.MaxSize) < len(fullObject) {
		fullObject = fullObject[:c.MaxSize]
	}
	c.Object = fullObject
	c.BytesSent = 0
	c.LocalCRC = 0

	if err := c.ObjectCreate(h.selectObjectHandler.objectType(c), uint32(len(c.Object))); err != nil {
		return StatusError, err
	}
	return StatusInit, nil
}

func (createObjectHandler) handle(ctx context.Context, c *Context) (Status, error) {
	resp, err := c.GetResponse(ctx)
	if err != nil {
		return StatusError, err
	}
	if !resp.Ok() {
		return StatusError, NewError(resp.ErrorCode(), nil)
	}
	return c.Transition(StateTransferringObject), nil
}

func (createObjectHandler) exit(ctx context.Context, c *Context) (Status, error) {
	return StatusHandled, nil
}

// --- TRANSFERRING_OBJECT ---------------------------------------------------

type transferringObjectHandler struct{}

func (transferringObjectHandler) entry(ctx context.Context, c *Context) (Status, error) {
	if err := c.SetPRN(ctx, DefaultPRN); err != nil {
		return StatusError, err
	}
	c.totalPkts = uint32(ceilDiv(len(c.Object), GattPacketSize))
	c.pktsSent = 0
	c.objectRemaining = c.Object
	c.currentPRN = DefaultPRN
	return StatusInit, nil
}

func (transferringObjectHandler) handle(ctx context.Context, c *Context) (Status, error) {
	if c.pktsSent == c.totalPkts {
		return c.Transition(StateValidateObject), nil
	}

	remainingPkts := c.totalPkts - c.pktsSent
	if c.pktsSent%DefaultPRN == 0 && remainingPkts < c.currentPRN {
		if err := c.SetPRN(ctx, uint16(remainingPkts)); err != nil {
			return StatusError, err
		}
		c.currentPRN = remainingPkts
	}

	n := GattPacketSize
	if n > len(c.objectRemaining) {
		n = len(c.objectRemaining)
	}
	pkt := c.objectRemaining[:n]
	c.objectRemaining = c.objectRemaining[n:]

	c.LocalCRC = crc32.Update(c.LocalCRC, crc32.IEEETable, pkt)
	if err := c.Gatt.WritePacket(pkt); err != nil {
		return StatusError, NewError(CodeWritingCharacteristicFailed, err)
	}
	c.pktsSent++
	c.BytesSent += uint32(n)
	c.cumulativeSent += int64(n)
	if c.Progress != nil {
		c.Progress(c.cumulativeSent, c.TotalBytes())
	}

	if c.pktsSent%c.currentPRN != 0 {
		return StatusHandled, nil
	}

	resp, err := c.GetPRN(ctx)
	if err != nil {
		return StatusError, err
	}

	if resp.Offset != c.BytesSent {
		return StatusError, NewError(CodeBytesLost, errors.Errorf("target offset %d != bytes sent %d", resp.Offset, c.BytesSent))
	}
	c.Offset = resp.Offset
	c.TargetCRC = resp.CRC

	if c.TargetCRC != c.LocalCRC {
		return c.Transition(StateValidateObject), nil
	}

	return StatusHandled, nil
}

func (transferringObjectHandler) exit(ctx context.Context, c *Context) (Status, error) {
	c.Attempts++
	return StatusHandled, nil
}

// --- VALIDATE_OBJECT --------------------------------------------------------

type validateObjectHandler struct{}

func (validateObjectHandler) entry(ctx context.Context, c *Context) (Status, error) {
	if err := c.ClearPRN(ctx, true); err != nil {
		return StatusError, err
	}
	if err := c.CRCGet(); err != nil {
		return StatusError, err
	}
	return StatusInit, nil
}

func (validateObjectHandler) handle(ctx context.Context, c *Context) (Status, error) {
	resp, err := c.GetResponse(ctx)
	if err != nil {
		return StatusError, err
	}
	if !resp.Ok() {
		return StatusError, NewError(resp.ErrorCode(), nil)
	}

	c.Offset = resp.Offset
	c.TargetCRC = resp.CRC

	if c.TargetCRC == c.LocalCRC {
		c.ObjectsSent++
		return c.Transition(StateExecuteObject), nil
	}

	if c.Attempts >= MaxCRCAttempts {
		return StatusError, NewError(CodeCRCError, errors.Errorf("crc mismatch after %d attempts", c.Attempts))
	}

	jww.INFO.Printf("crc mismatch (attempt %d/%d), recreating object\n", c.Attempts, MaxCRCAttempts)
	return c.Transition(StateCreateObject), nil
}

func (validateObjectHandler) exit(ctx context.Context, c *Context) (Status, error) {
	return StatusHandled, nil
}

// --- EXECUTE_OBJECT --------------------------------------------------------

type executeObjectHandler struct{ noopEntryExit }

func (executeObjectHandler) entry(ctx context.Context, c *Context) (Status, error) {
	if err := c.ObjectExecute(); err != nil {
		return StatusError, err
	}
	return StatusInit, nil
}

func (executeObjectHandler) handle(ctx context.Context, c *Context) (Status, error) {
	resp, err := c.GetResponse(ctx)
	if err != nil {
		return StatusError, err
	}
	if !resp.Ok() {
		return StatusError, NewError(resp.ErrorCode(), nil)
	}

	if c.Phase == PhaseCommand {
		return c.Transition(StatePreparingDataObject), nil
	}

	if c.ObjectsSent < c.NumObjects {
		c.TxData = c.TxData[len(c.Object):]
		c.Attempts = 0
		return c.Transition(StateCreateObject), nil
	}

	c.ImageQueue = c.ImageQueue[1:]
	jww.INFO.Printf("image transfer complete, %d image(s) remaining\n", len(c.ImageQueue))
	return c.Transition(StateDisconnected), nil
}

// --- PREPARING_DATA_OBJECT --------------------------------------------------

type preparingDataObjectHandler struct{ noopEntryExit }

func (preparingDataObjectHandler) handle(ctx context.Context, c *Context) (Status, error) {
	c.Phase = PhaseData
	c.TxData = c.Image.BinData
	c.BytesSent = 0
	c.LocalCRC = 0
	c.ObjectsSent = 0
	c.NumObjects = 0
	c.Attempts = 0
	return c.Transition(StateSelectObject), nil
}

// --- TRANSFER_DONE -----------------------------------------------------------

type transferDoneHandler struct{}

func (transferDoneHandler) entry(ctx context.Context, c *Context) (Status, error) {
	jww.INFO.Println("transfer done, disconnecting")
	if err := c.Gatt.Disconnect(); err != nil {
		jww.ERROR.Printf("disconnect at transfer done failed: %v\n", err)
	}
	jww.INFO.Println("update complete")
	return StatusComplete, nil
}

func (transferDoneHandler) handle(ctx context.Context, c *Context) (Status, error) {
	return StatusComplete, nil
}

func (transferDoneHandler) exit(ctx context.Context, c *Context) (Status, error) {
	return StatusHandled, nil
}

// handlers is the exhaustive State -> stateHandler registry. Built once
// at package init and checked for completeness immediately: a State
// value added to state.go without a matching entry here is a defect
// this package refuses to run with, standing in for a compile-time
// exhaustiveness check Go's switch statements do not offer.
var handlers map[State]stateHandler

func init() {
	handlers = map[State]stateHandler{
		StateDisconnected:        disconnectedHandler{},
		StateConnecting:          connectingHandler{},
		StateTransferReady:       transferReadyHandler{},
		StateSelectObject:        selectObjectHandler{},
		StateCreateObject:        createObjectHandler{},
		StateTransferringObject:  transferringObjectHandler{},
		StateValidateObject:      validateObjectHandler{},
		StateExecuteObject:       executeObjectHandler{},
		StatePreparingDataObject: preparingDataObjectHandler{},
		StateTransferDone:        transferDoneHandler{},
	}

	for s := StateDisconnected; s <= StateTransferDone; s++ {
		if _, ok := handlers[s]; !ok {
			panic(errors.Errorf("dfu: no stateHandler registered for state %s", s))
		}
	}
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
