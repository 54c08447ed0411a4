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

import "time"

// State is a Secure DFU session state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateTransferReady
	StateSelectObject
	StateCreateObject
	StateTransferringObject
	StateValidateObject
	StateExecuteObject
	StatePreparingDataObject
	StateTransferDone
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateTransferReady:
		return "TRANSFER_READY"
	case StateSelectObject:
		return "SELECT_OBJECT"
	case StateCreateObject:
		return "CREATE_OBJECT"
	case StateTransferringObject:
		return "TRANSFERRING_OBJECT"
	case StateValidateObject:
		return "VALIDATE_OBJECT"
	case StateExecuteObject:
		return "EXECUTE_OBJECT"
	case StatePreparingDataObject:
		return "PREPARING_DATA_OBJECT"
	case StateTransferDone:
		return "TRANSFER_DONE"
	default:
		return "UNKNOWN"
	}
}

// Phase is which procedure of the current image is active.
type Phase int

const (
	PhaseCommand Phase = iota
	PhaseData
)

func (p Phase) String() string {
	if p == PhaseCommand {
		return "COMMAND"
	}
	return "DATA"
}

// Status is the outcome of a single run-loop iteration, returned by a
// stateHandler's handle step and acted on by the session driver.
type Status int

const (
	StatusError Status = iota - 1
	StatusIgnored
	StatusInit
	StatusHandled
	StatusTransitioned
	StatusComplete
)

// DefaultPRN is the Packet Receipt Notification interval configured on
// entry to TRANSFERRING_OBJECT.
const DefaultPRN = 10

// GattPacketSize is the maximum payload of a single Packet-characteristic
// write.
const GattPacketSize = 20

// MaxConnectAttempts bounds DISCONNECTED's scan retries.
const MaxConnectAttempts = 10

// MaxCRCAttempts bounds VALIDATE_OBJECT's retry-from-scratch cycles.
const MaxCRCAttempts = 3

// scanAttemptTimeout bounds a single DISCONNECTED scan attempt.
const scanAttemptTimeout = 3 * time.Second
