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
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// HashType is the hash algorithm named by an init packet's hash field.
// Mirrors Nordic's dfu_cc.proto HashType enum.
type HashType int32

const (
	HashTypeNone   HashType = 0
	HashTypeCRC    HashType = 1
	HashTypeSHA128 HashType = 2
	HashTypeSHA256 HashType = 3
	HashTypeSHA512 HashType = 4
)

func (h HashType) String() string {
	switch h {
	case HashTypeNone:
		return "none"
	case HashTypeCRC:
		return "crc"
	case HashTypeSHA128:
		return "sha128"
	case HashTypeSHA256:
		return "sha256"
	case HashTypeSHA512:
		return "sha512"
	default:
		return "unknown"
	}
}

// InitPacket is an opaque init command blob plus the few fields this
// driver needs to inspect: the signed/unsigned framing and the declared
// hash type. The remainder of dfu_cc.proto's schema is not decoded; it
// is carried through to the target device as-is.
type InitPacket struct {
	Raw      []byte
	Signed   bool
	HashType HashType
}

// Nordic dfu_cc.proto field numbers relevant to this peek.
//
//	Packet { oneof { Command command = 1; SignedCommand signed_command = 2; } }
//	SignedCommand { Command command = 1; ... }
//	Command { OpCode op_code = 1; InitCommand init = 2; }
//	InitCommand { ... uint32 app_size = 7; InitCommandHash hash = 8; ... }
//	InitCommandHash { HashType hash_type = 1; bytes hash = 2; }
const (
	fieldPacketCommand       = 1
	fieldPacketSignedCommand = 2
	fieldSignedCommandInner  = 1
	fieldCommandInit         = 2
	fieldInitCommandHash     = 8
	fieldHashType            = 1
)

// ParseInitPacket peeks into a serialized dfu_cc.proto Packet message,
// extracting whether it is signed and which hash type it declares. It
// rejects SHA-128, which Nordic's bootloaders never accept.
func ParseInitPacket(data []byte) (*InitPacket, error) {
	command, signed, err := unwrapPacket(data)
	if err != nil {
		return nil, err
	}

	initCmd, err := unwrapCommand(command)
	if err != nil {
		return nil, err
	}

	hashType, err := findHashType(initCmd)
	if err != nil {
		return nil, err
	}

	if hashType == HashTypeSHA128 {
		return nil, NewError(CodeExtendedWrongHashType, errors.New("SHA-128 init packet hash is not supported"))
	}

	return &InitPacket{Raw: data, Signed: signed, HashType: hashType}, nil
}

// unwrapPacket returns the serialized Command bytes, whether they were
// reached via the signed_command oneof branch.
func unwrapPacket(data []byte) (cmd []byte, signed bool, err error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, false, NewError(CodeFileInvalid, errors.New("malformed init packet: bad tag"))
		}
		data = data[n:]

		if typ != protowire.BytesType {
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return nil, false, NewError(CodeFileInvalid, errors.New("malformed init packet: bad field"))
			}
			data = data[m:]
			continue
		}

		val, m := protowire.ConsumeBytes(data)
		if m < 0 {
			return nil, false, NewError(CodeFileInvalid, errors.New("malformed init packet: bad length-delimited field"))
		}
		data = data[m:]

		switch num {
		case fieldPacketCommand:
			return val, false, nil
		case fieldPacketSignedCommand:
			inner, err := unwrapSignedCommand(val)
			if err != nil {
				return nil, false, err
			}
			return inner, true, nil
		}
	}
	return nil, false, NewError(CodeFileInvalid, errors.New("init packet has neither command nor signed_command"))
}

func unwrapSignedCommand(data []byte) ([]byte, error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, NewError(CodeFileInvalid, errors.New("malformed signed_command: bad tag"))
		}
		data = data[n:]

		if typ != protowire.BytesType {
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return nil, NewError(CodeFileInvalid, errors.New("malformed signed_command: bad field"))
			}
			data = data[m:]
			continue
		}

		val, m := protowire.ConsumeBytes(data)
		if m < 0 {
			return nil, NewError(CodeFileInvalid, errors.New("malformed signed_command: bad length-delimited field"))
		}
		data = data[m:]

		if num == fieldSignedCommandInner {
			return val, nil
		}
	}
	return nil, NewError(CodeFileInvalid, errors.New("signed_command has no embedded command"))
}

// unwrapCommand returns the serialized InitCommand bytes embedded in a
// Command message's init field (field 2). Command also carries an
// op_code field (1), which this peek never needs.
func unwrapCommand(data []byte) ([]byte, error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, NewError(CodeFileInvalid, errors.New("malformed command: bad tag"))
		}
		data = data[n:]

		if typ != protowire.BytesType {
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return nil, NewError(CodeFileInvalid, errors.New("malformed command: bad field"))
			}
			data = data[m:]
			continue
		}

		val, m := protowire.ConsumeBytes(data)
		if m < 0 {
			return nil, NewError(CodeFileInvalid, errors.New("malformed command: bad length-delimited field"))
		}
		data = data[m:]

		if num == fieldCommandInit {
			return val, nil
		}
	}
	return nil, NewError(CodeFileInvalid, errors.New("command has no init field"))
}

func findHashType(data []byte) (HashType, error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return HashTypeNone, NewError(CodeFileInvalid, errors.New("malformed init command: bad tag"))
		}
		data = data[n:]

		if num == fieldInitCommandHash && typ == protowire.BytesType {
			val, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return HashTypeNone, NewError(CodeFileInvalid, errors.New("malformed init command: bad hash field"))
			}
			return parseHashMessage(val)
		}

		m := protowire.ConsumeFieldValue(num, typ, data)
		if m < 0 {
			return HashTypeNone, NewError(CodeFileInvalid, errors.New("malformed init command: bad field"))
		}
		data = data[m:]
	}
	return HashTypeNone, NewError(CodeExtendedInitCommandInvalid, errors.New("init command has no hash field"))
}

func parseHashMessage(data []byte) (HashType, error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return HashTypeNone, NewError(CodeFileInvalid, errors.New("malformed hash message: bad tag"))
		}
		data = data[n:]

		if num == fieldHashType && typ == protowire.VarintType {
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return HashTypeNone, NewError(CodeFileInvalid, errors.New("malformed hash message: bad hash_type varint"))
			}
			return HashType(v), nil
		}

		m := protowire.ConsumeFieldValue(num, typ, data)
		if m < 0 {
			return HashTypeNone, NewError(CodeFileInvalid, errors.New("malformed hash message: bad field"))
		}
		data = data[m:]
	}
	return HashTypeNone, NewError(CodeExtendedWrongHashType, errors.New("hash message has no hash_type field"))
}
