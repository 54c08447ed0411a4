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
	"encoding/binary"

	"github.com/pkg/errors"
)

// EncodeObjectCreate builds the OBJECT_CREATE request payload.
func EncodeObjectCreate(objType ObjectType, size uint32) []byte {
	data := make([]byte, 0, 6)
	data = append(data, byte(OpObjectCreate), byte(objType))
	sz := make([]byte, 4)
	binary.LittleEndian.PutUint32(sz, size)
	return append(data, sz...)
}

// EncodeReceiptNotifSet builds the RECEIPT_NOTIF_SET request payload.
func EncodeReceiptNotifSet(prn uint16) []byte {
	data := make([]byte, 0, 3)
	data = append(data, byte(OpReceiptNotifSet))
	v := make([]byte, 2)
	binary.LittleEndian.PutUint16(v, prn)
	return append(data, v...)
}

// EncodeCRCGet builds the CRC_GET request payload.
func EncodeCRCGet() []byte {
	return []byte{byte(OpCRCGet)}
}

// EncodeObjectExecute builds the OBJECT_EXECUTE request payload.
func EncodeObjectExecute() []byte {
	return []byte{byte(OpObjectExecute)}
}

// EncodeObjectSelect builds the OBJECT_SELECT request payload.
func EncodeObjectSelect(objType ObjectType) []byte {
	return []byte{byte(OpObjectSelect), byte(objType)}
}

// EncodeAbort builds the ABORT request payload.
func EncodeAbort() []byte {
	return []byte{byte(OpAbort)}
}

// Response is a decoded Control-Point response frame.
type Response struct {
	ReqOpcode Opcode
	Result    ResultCode
	Extended  ExtendedErrorCode
	MaxSize   uint32
	Offset    uint32
	CRC       uint32
}

// Ok reports whether the response carries a SUCCESS result.
func (r *Response) Ok() bool {
	return r.Result == ResultSuccess
}

// ErrorCode maps a non-success response to its taxonomy Code.
func (r *Response) ErrorCode() Code {
	if r.Result == ResultExtendedError {
		return r.Extended.errorCode()
	}
	return r.Result.errorCode()
}

// DecodeResponse parses the bytes of a Control-Point notification into a
// Response. Per §4.B: byte[0] must be RESPONSE, byte[1] the original
// opcode, byte[2] the result code, with SELECT/CRC_GET carrying
// additional little-endian fields on SUCCESS.
func DecodeResponse(data []byte) (*Response, error) {
	if len(data) < 3 {
		return nil, NewError(CodeUnsupportedResponse, errors.New("response shorter than 3 bytes"))
	}
	if Opcode(data[0]) != OpResponse {
		return nil, NewError(CodeUnsupportedResponse, errors.Errorf("byte[0] = %#x, expected RESPONSE", data[0]))
	}

	res := &Response{
		ReqOpcode: Opcode(data[1]),
		Result:    ResultCode(data[2]),
	}

	if res.Result == ResultExtendedError {
		if len(data) < 4 {
			return nil, NewError(CodeUnsupportedResponse, errors.New("extended error response missing sub-code byte"))
		}
		res.Extended = ExtendedErrorCode(data[3])
		return res, nil
	}

	if res.Result != ResultSuccess {
		return res, nil
	}

	switch res.ReqOpcode {
	case OpObjectSelect:
		if len(data) < 15 {
			return nil, NewError(CodeUnsupportedResponse, errors.New("SELECT response shorter than 15 bytes"))
		}
		res.MaxSize = binary.LittleEndian.Uint32(data[3:7])
		res.Offset = binary.LittleEndian.Uint32(data[7:11])
		res.CRC = binary.LittleEndian.Uint32(data[11:15])
	case OpCRCGet:
		if len(data) < 11 {
			return nil, NewError(CodeUnsupportedResponse, errors.New("CRC_GET response shorter than 11 bytes"))
		}
		res.Offset = binary.LittleEndian.Uint32(data[3:7])
		res.CRC = binary.LittleEndian.Uint32(data[7:11])
	}

	return res, nil
}

// DecodePRN parses a Packet Receipt Notification, which is wire-identical
// to a successful CRC_GET response. Its req_opcode is always CRC_GET by
// firmware convention.
func DecodePRN(data []byte) (*Response, error) {
	res, err := DecodeResponse(data)
	if err != nil {
		return nil, err
	}
	if res.Result == ResultSuccess && res.ReqOpcode != OpCRCGet {
		return nil, NewError(CodeUnsupportedResponse, errors.Errorf("PRN req_opcode = %#x, expected CRC_GET", res.ReqOpcode))
	}
	return res, nil
}
