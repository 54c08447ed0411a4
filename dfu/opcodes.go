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

import "strings"

// Opcode is a Secure DFU Control-Point opcode.
type Opcode byte

const (
	OpProtocolVersion Opcode = 0x00
	OpObjectCreate    Opcode = 0x01
	OpReceiptNotifSet Opcode = 0x02
	OpCRCGet          Opcode = 0x03
	OpObjectExecute   Opcode = 0x04
	OpObjectSelect    Opcode = 0x06
	OpAbort           Opcode = 0x0C
	OpResponse        Opcode = 0x60
)

// ObjectType selects which procedure (init command or firmware data) an
// object operation addresses.
type ObjectType byte

const (
	ObjectTypeInvalid ObjectType = 0x00
	ObjectTypeCommand ObjectType = 0x01
	ObjectTypeData    ObjectType = 0x02
)

// FwType is the firmware image type reported in a FIRMWARE_VERSION
// response. Not used on the hot path, but part of the wire vocabulary.
type FwType int

const (
	FwTypeSoftdevice FwType = 0
	FwTypeApplication FwType = 1
	FwTypeBootloader  FwType = 2
	FwTypeUnknown     FwType = 0xFF
)

// ParseFwTypeString parses a firmware type name (case-insensitive) into
// a FwType, rejecting the dynamic integer-or-string ambiguity that the
// Python source carried (models/package.py's get_fw_data).
func ParseFwTypeString(name string) (FwType, bool) {
	switch strings.ToLower(name) {
	case "softdevice":
		return FwTypeSoftdevice, true
	case "application":
		return FwTypeApplication, true
	case "bootloader":
		return FwTypeBootloader, true
	default:
		return FwTypeUnknown, false
	}
}

// ParseFwTypeWire parses one of the wire values {0,1,2} into a FwType.
func ParseFwTypeWire(v int) (FwType, bool) {
	switch v {
	case 0:
		return FwTypeSoftdevice, true
	case 1:
		return FwTypeApplication, true
	case 2:
		return FwTypeBootloader, true
	default:
		return FwTypeUnknown, false
	}
}

func (t FwType) String() string {
	switch t {
	case FwTypeSoftdevice:
		return "softdevice"
	case FwTypeApplication:
		return "application"
	case FwTypeBootloader:
		return "bootloader"
	default:
		return "unknown"
	}
}

// ResultCode is the result byte of a Control-Point response.
type ResultCode byte

const (
	ResultInvalid                ResultCode = 0x00
	ResultSuccess                ResultCode = 0x01
	ResultOpcodeNotSupported     ResultCode = 0x02
	ResultInvalidParameter       ResultCode = 0x03
	ResultInsufficientResources  ResultCode = 0x04
	ResultInvalidObject          ResultCode = 0x05
	ResultUnsupportedType        ResultCode = 0x07
	ResultOperationNotPermitted  ResultCode = 0x08
	ResultOperationFailed        ResultCode = 0x0A
	ResultExtendedError          ResultCode = 0x0B
)

// errorCode maps a non-success ResultCode to its Code in the secure
// remote family (the +10 offset from error.py).
func (r ResultCode) errorCode() Code {
	switch r {
	case ResultSuccess:
		return CodeRemoteSecureSuccess
	case ResultOpcodeNotSupported:
		return CodeRemoteSecureOpcodeNotSupported
	case ResultInvalidParameter:
		return CodeRemoteSecureInvalidParameter
	case ResultInsufficientResources:
		return CodeRemoteSecureInsufficientResources
	case ResultInvalidObject:
		return CodeRemoteSecureInvalidObject
	case ResultUnsupportedType:
		return CodeRemoteSecureUnsupportedType
	case ResultOperationNotPermitted:
		return CodeRemoteSecureOperationNotPermitted
	case ResultOperationFailed:
		return CodeRemoteSecureOperationFailed
	case ResultExtendedError:
		return CodeRemoteSecureExtendedError
	default:
		return CodeUnsupportedResponse
	}
}

// ExtendedErrorCode is the 4th byte of a response whose result is
// ResultExtendedError.
type ExtendedErrorCode byte

const (
	ExtendedNoError             ExtendedErrorCode = 0x00
	ExtendedUnknownCommand      ExtendedErrorCode = 0x03
	ExtendedInitCommandInvalid  ExtendedErrorCode = 0x04
	ExtendedFWVersionFailure    ExtendedErrorCode = 0x05
	ExtendedHWVersionFailure    ExtendedErrorCode = 0x06
	ExtendedSDVersionFailure    ExtendedErrorCode = 0x07
	ExtendedWrongHashType       ExtendedErrorCode = 0x09
	ExtendedHashFailed          ExtendedErrorCode = 0x0A
	ExtendedWrongSignatureType  ExtendedErrorCode = 0x0B
	ExtendedVerificationFailed  ExtendedErrorCode = 0x0C
	ExtendedInsufficientSpace   ExtendedErrorCode = 0x0D
)

func (e ExtendedErrorCode) errorCode() Code {
	switch e {
	case ExtendedNoError:
		return CodeRemoteSecureSuccess
	case ExtendedUnknownCommand:
		return CodeExtendedUnknownCommand
	case ExtendedInitCommandInvalid:
		return CodeExtendedInitCommandInvalid
	case ExtendedFWVersionFailure:
		return CodeExtendedFWVersionFailure
	case ExtendedHWVersionFailure:
		return CodeExtendedHWVersionFailure
	case ExtendedSDVersionFailure:
		return CodeExtendedSDVersionFailure
	case ExtendedWrongHashType:
		return CodeExtendedWrongHashType
	case ExtendedHashFailed:
		return CodeExtendedHashFailed
	case ExtendedWrongSignatureType:
		return CodeExtendedWrongSignatureType
	case ExtendedVerificationFailed:
		return CodeExtendedVerificationFailed
	case ExtendedInsufficientSpace:
		return CodeExtendedInsufficientSpace
	default:
		return CodeUnsupportedResponse
	}
}
