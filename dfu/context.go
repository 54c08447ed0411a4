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

	"github.com/pkg/errors"
	"github.com/rctsang/nrf52-ble-dfu/ble"
)

// responseQueueCapacity bounds the Control-Point notification queue.
// The transport's subscribe callback is the sole producer; the driver
// loop is the sole consumer.
const responseQueueCapacity = 16

// Context is the mutable session state shared by every state handler.
// It is owned exclusively by the driver's run loop; nothing outside
// that loop may touch it while a session is active.
type Context struct {
	State     State
	PrevState State

	TargetName   string
	TargetHandle ble.Handle
	Gatt         ble.GattClient

	Pkg        *Package
	ImageQueue []ImageType
	Image      *Image

	Phase  Phase
	TxData []byte
	Object []byte

	MaxSize   uint32
	Offset    uint32
	TargetCRC uint32
	LocalCRC  uint32

	BytesSent   uint32
	ObjectsSent uint32
	NumObjects  uint32
	Attempts    uint32

	PRN uint16

	ResponseQueue chan ble.Notification

	// Progress, if set, is invoked after every packet write with the
	// cumulative bytes sent across the whole session and the session
	// total, for driving a progress bar.
	Progress        ProgressFunc
	cumulativeSent  int64
	sessionTotalBytes int64

	// Working state for TRANSFERRING_OBJECT, scoped to one object's
	// packet loop; not part of the session-level invariants in §3 but
	// needed between repeated handle() calls within that state.
	totalPkts       uint32
	pktsSent        uint32
	currentPRN      uint32
	objectRemaining []byte
	scanAttempts    uint32
}

// imageOrder is the fixed traversal order of image_queue: each image
// present in the package is visited in this sequence.
var imageOrder = []ImageType{ImageBootloader, ImageSoftdevice, ImageApplication}

// NewContext builds a fresh session context targeting targetName,
// delivering pkg's images over gatt. The image queue is seeded from
// imageOrder, filtered to the images actually present in pkg.
func NewContext(gatt ble.GattClient, targetName string, pkg *Package) *Context {
	var queue []ImageType
	for _, t := range imageOrder {
		if _, ok := pkg.Images[t]; ok {
			queue = append(queue, t)
		}
	}

	var total int64
	for _, t := range queue {
		img := pkg.Images[t]
		total += int64(len(img.InitData)) + int64(len(img.BinData))
	}

	return &Context{
		State:             StateDisconnected,
		PrevState:         StateDisconnected,
		TargetName:        targetName,
		Gatt:              gatt,
		Pkg:               pkg,
		ImageQueue:        queue,
		ResponseQueue:     make(chan ble.Notification, responseQueueCapacity),
		sessionTotalBytes: total,
	}
}

// Transition moves the context to next, recording the prior state, and
// reports the TRANSITIONED status the driver loop dispatches on.
func (c *Context) Transition(next State) Status {
	c.PrevState = c.State
	c.State = next
	return StatusTransitioned
}

// SetPRN configures the target's Packet Receipt Notification cadence
// and waits for its acknowledgement.
func (c *Context) SetPRN(ctx context.Context, v uint16) error {
	if err := c.Gatt.WriteControlPoint(EncodeReceiptNotifSet(v), true); err != nil {
		return NewError(CodeWritingCharacteristicFailed, err)
	}
	resp, err := c.GetResponse(ctx)
	if err != nil {
		return err
	}
	if !resp.Ok() {
		return NewError(resp.ErrorCode(), nil)
	}
	c.PRN = v
	return nil
}

// ClearPRN sets PRN to 0, unless it is already 0 and force is false, in
// which case it is a no-op that issues no transport call.
func (c *Context) ClearPRN(ctx context.Context, force bool) error {
	if c.PRN == 0 && !force {
		return nil
	}
	return c.SetPRN(ctx, 0)
}

// ObjectSelect requests the target's state for the given object type.
// The caller is responsible for awaiting the response; selection
// responses carry state the caller must branch on immediately, so no
// response is consumed here. ObjectCreate, ObjectExecute and CRCGet
// likewise leave their response to the caller; only SetPRN consumes one.
func (c *Context) ObjectSelect(objType ObjectType) error {
	if c.PRN != 0 {
		return NewError(CodeInvalidInternalState, errors.New("object_select requires prn == 0"))
	}
	if err := c.Gatt.WriteControlPoint(EncodeObjectSelect(objType), true); err != nil {
		return NewError(CodeWritingCharacteristicFailed, err)
	}
	return nil
}

// ObjectCreate allocates an object slot of the given type and size.
func (c *Context) ObjectCreate(objType ObjectType, size uint32) error {
	if c.PRN != 0 {
		return NewError(CodeInvalidInternalState, errors.New("object_create requires prn == 0"))
	}
	if err := c.Gatt.WriteControlPoint(EncodeObjectCreate(objType, size), true); err != nil {
		return NewError(CodeWritingCharacteristicFailed, err)
	}
	return nil
}

// ObjectExecute commits the currently selected/created object.
func (c *Context) ObjectExecute() error {
	if c.PRN != 0 {
		return NewError(CodeInvalidInternalState, errors.New("object_execute requires prn == 0"))
	}
	if err := c.Gatt.WriteControlPoint(EncodeObjectExecute(), true); err != nil {
		return NewError(CodeWritingCharacteristicFailed, err)
	}
	return nil
}

// CRCGet requests the target's current offset and running CRC.
func (c *Context) CRCGet() error {
	if err := c.Gatt.WriteControlPoint(EncodeCRCGet(), true); err != nil {
		return NewError(CodeWritingCharacteristicFailed, err)
	}
	return nil
}

// Abort resets target-side object state. Sent without expecting an ack.
func (c *Context) Abort() error {
	if err := c.Gatt.WriteControlPoint(EncodeAbort(), false); err != nil {
		return NewError(CodeWritingCharacteristicFailed, err)
	}
	return nil
}

// GetResponse blocks until a Control-Point notification arrives and
// decodes it as a command response, or ctx is done.
func (c *Context) GetResponse(ctx context.Context) (*Response, error) {
	select {
	case n := <-c.ResponseQueue:
		return DecodeResponse(n.Data)
	case <-ctx.Done():
		return nil, NewError(CodeReceivingNotificationsFailed, ctx.Err())
	}
}

// GetResponseNowait is the non-blocking variant of GetResponse; it
// returns (nil, nil) if nothing is queued.
func (c *Context) GetResponseNowait() (*Response, error) {
	select {
	case n := <-c.ResponseQueue:
		return DecodeResponse(n.Data)
	default:
		return nil, nil
	}
}

// GetPRN blocks until a Packet Receipt Notification arrives, or ctx is
// done. PRNs share CRC_GET's wire layout.
func (c *Context) GetPRN(ctx context.Context) (*Response, error) {
	select {
	case n := <-c.ResponseQueue:
		return DecodePRN(n.Data)
	case <-ctx.Done():
		return nil, NewError(CodeReceivingNotificationsFailed, ctx.Err())
	}
}

// GetPRNNowait is the non-blocking variant of GetPRN.
func (c *Context) GetPRNNowait() (*Response, error) {
	select {
	case n := <-c.ResponseQueue:
		return DecodePRN(n.Data)
	default:
		return nil, nil
	}
}
