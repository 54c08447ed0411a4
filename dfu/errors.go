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

import "fmt"

// Code is the unified DFU error taxonomy: local, remote, and extended-remote
// codes share one numeric space, partitioned into ranges. Based on Nordic's
// iOS DFU library error enumeration.
type Code int

const (
	// legacy remote (0-6), reserved, not surfaced on the Secure path
	CodeRemoteLegacySuccess Code = 1

	// secure remote (11-21)
	CodeRemoteSecureSuccess                = 11
	CodeRemoteSecureOpcodeNotSupported     = 12
	CodeRemoteSecureInvalidParameter       = 13
	CodeRemoteSecureInsufficientResources  = 14
	CodeRemoteSecureInvalidObject          = 15
	CodeRemoteSecureUnsupportedType        = 17
	CodeRemoteSecureOperationNotPermitted  = 18
	CodeRemoteSecureOperationFailed        = 20
	CodeRemoteSecureExtendedError          = 21

	// secure extended (23-33)
	CodeExtendedUnknownCommand      = 23
	CodeExtendedInitCommandInvalid  = 24
	CodeExtendedFWVersionFailure    = 25
	CodeExtendedHWVersionFailure    = 26
	CodeExtendedSDVersionFailure    = 27
	CodeExtendedWrongHashType       = 29
	CodeExtendedHashFailed          = 30
	CodeExtendedWrongSignatureType  = 31
	CodeExtendedVerificationFailed  = 32
	CodeExtendedInsufficientSpace   = 33

	// buttonless (91-97) and experimental buttonless (9001-9004), reserved
	CodeRemoteButtonlessSuccess             = 91
	CodeRemoteExperimentalButtonlessSuccess = 9001

	// local (101+)
	CodeFileNotSpecified             = 101
	CodeFileInvalid                  = 102
	CodeExtendedInitPacketRequired   = 103
	CodeInitPacketRequired           = 104
	CodeFailedToConnect              = 201
	CodeDeviceDisconnected           = 202
	CodeBluetoothDisabled            = 203
	CodeServiceDiscoveryFailed       = 301
	CodeDeviceNotSupported           = 302
	CodeReadingVersionFailed         = 303
	CodeEnablingControlPointFailed   = 304
	CodeWritingCharacteristicFailed  = 305
	CodeReceivingNotificationsFailed = 306
	CodeUnsupportedResponse          = 307
	CodeBytesLost                    = 308
	CodeCRCError                     = 309
	CodeInvalidInternalState         = 500
)

var codeMessages = map[Code]string{
	CodeRemoteLegacySuccess: "Legacy DFU bootloader reported success",

	CodeRemoteSecureSuccess:               "Secure DFU bootloader reported success",
	CodeRemoteSecureOpcodeNotSupported:    "Requested Opcode is not supported",
	CodeRemoteSecureInvalidParameter:      "Invalid Parameter",
	CodeRemoteSecureInsufficientResources: "Secure DFU bootloader cannot complete due to insufficient resources",
	CodeRemoteSecureInvalidObject:         "Object is invalid",
	CodeRemoteSecureUnsupportedType:       "Requested type is not supported",
	CodeRemoteSecureOperationNotPermitted: "Requested operation is not permitted",
	CodeRemoteSecureOperationFailed:       "Operation failed for an unknown reason",
	CodeRemoteSecureExtendedError:         "Secure DFU bootloader reported a detailed error",

	CodeExtendedUnknownCommand:     "Command successfully parsed, but not supported or unknown",
	CodeExtendedInitCommandInvalid: "Init command has invalid update type or missing required fields",
	CodeExtendedFWVersionFailure:   "Firmware version is older than current version, cannot downgrade",
	CodeExtendedHWVersionFailure:   "Hardware version of device does not match required version for update",
	CodeExtendedSDVersionFailure:   "Current SoftDevice FWID does not support the update",
	CodeExtendedWrongHashType:      "Hash type specified by init packet is not supported by the DFU bootloader",
	CodeExtendedHashFailed:         "Firmware image hash cannot be calculated",
	CodeExtendedWrongSignatureType: "Signature type is unknown or not supported by the DFU bootloader",
	CodeExtendedVerificationFailed: "Hash of received firmware image does not match hash in init packet",
	CodeExtendedInsufficientSpace:  "Available space on device is insufficient to hold firmware",

	CodeRemoteButtonlessSuccess:             "Buttonless DFU service reported success",
	CodeRemoteExperimentalButtonlessSuccess:  "Experimental Buttonless DFU service reported success",

	CodeFileNotSpecified:             "Providing DFU firmware is required",
	CodeFileInvalid:                  "Given firmware file is not supported",
	CodeExtendedInitPacketRequired:   "DFU bootloader requires extended Init Packet (>= v7.0.0 sdk)",
	CodeInitPacketRequired:           "Init packet is required and has not been found",
	CodeFailedToConnect:              "DFU service failed to connect to target peripheral",
	CodeDeviceDisconnected:           "DFU target disconnected unexpectedly",
	CodeBluetoothDisabled:            "Bluetooth adapter is disabled",
	CodeServiceDiscoveryFailed:       "Service discovery has failed",
	CodeDeviceNotSupported:           "Selected device does not support legacy, secure, or buttonless DFU",
	CodeReadingVersionFailed:         "Reading DFU version characteristic has failed",
	CodeEnablingControlPointFailed:   "Enabling control point notifications has failed",
	CodeWritingCharacteristicFailed:  "Failed to write to characteristic",
	CodeReceivingNotificationsFailed: "An error was reported for a notification",
	CodeUnsupportedResponse:          "Received response is not supported",
	CodeBytesLost:                    "Number of bytes sent is not equal to number of bytes confirmed in packet receipt notification during upload",
	CodeCRCError:                     "CRC reported by remote device does not match after 3 attempts to send data",
	CodeInvalidInternalState:         "Service went into an invalid state. Attempt to close without crashing. Returning to known state impossible",
}

// successCodes are the SUCCESS sentinel values across the four remote
// error families (legacy, secure, buttonless, experimental buttonless).
var successCodes = map[Code]bool{
	CodeRemoteLegacySuccess:                 true,
	CodeRemoteSecureSuccess:                 true,
	CodeRemoteButtonlessSuccess:             true,
	CodeRemoteExperimentalButtonlessSuccess:  true,
}

// Error is a DFU error carrying its numeric taxonomy code alongside a
// human-readable message and an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Ok reports whether code is one of the four SUCCESS sentinels.
func (c Code) Ok() bool {
	return successCodes[c]
}

// IsRemote reports whether code originated at the target device, as
// opposed to being raised locally by this driver.
func (c Code) IsRemote() bool {
	return c < 100 || c > 9000
}

func (c Code) message() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return "unknown DFU error"
}

// NewError builds an Error for code, optionally wrapping cause.
func NewError(code Code, cause error) *Error {
	return &Error{Code: code, Message: code.message(), Cause: cause}
}
