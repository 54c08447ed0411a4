package dfu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

// buildInitCommand assembles a Command message wrapping a minimal
// InitCommand carrying only the hash submessage, enough for
// ParseInitPacket to find hash_type without needing the rest of
// dfu_cc.proto's fields. The result is Command{ init: InitCommand{
// hash: Hash{ hash_type } } }, matching Nordic's real nesting.
func buildInitCommand(hashType int32) []byte {
	var hashMsg []byte
	hashMsg = protowire.AppendTag(hashMsg, fieldHashType, protowire.VarintType)
	hashMsg = protowire.AppendVarint(hashMsg, uint64(hashType))

	var initCmd []byte
	initCmd = protowire.AppendTag(initCmd, fieldInitCommandHash, protowire.BytesType)
	initCmd = protowire.AppendBytes(initCmd, hashMsg)

	var command []byte
	command = protowire.AppendTag(command, fieldCommandInit, protowire.BytesType)
	command = protowire.AppendBytes(command, initCmd)
	return command
}

func buildPacket(command []byte, signed bool) []byte {
	var pkt []byte
	if signed {
		var signedCmd []byte
		signedCmd = protowire.AppendTag(signedCmd, fieldSignedCommandInner, protowire.BytesType)
		signedCmd = protowire.AppendBytes(signedCmd, command)

		pkt = protowire.AppendTag(pkt, fieldPacketSignedCommand, protowire.BytesType)
		pkt = protowire.AppendBytes(pkt, signedCmd)
		return pkt
	}

	pkt = protowire.AppendTag(pkt, fieldPacketCommand, protowire.BytesType)
	pkt = protowire.AppendBytes(pkt, command)
	return pkt
}

func TestParseInitPacket_Unsigned(t *testing.T) {
	data := buildPacket(buildInitCommand(int32(HashTypeSHA256)), false)

	init, err := ParseInitPacket(data)
	require.NoError(t, err)
	assert.False(t, init.Signed)
	assert.Equal(t, HashTypeSHA256, init.HashType)
}

func TestParseInitPacket_Signed(t *testing.T) {
	data := buildPacket(buildInitCommand(int32(HashTypeCRC)), true)

	init, err := ParseInitPacket(data)
	require.NoError(t, err)
	assert.True(t, init.Signed)
	assert.Equal(t, HashTypeCRC, init.HashType)
}

func TestParseInitPacket_RejectsSHA128(t *testing.T) {
	data := buildPacket(buildInitCommand(int32(HashTypeSHA128)), false)

	_, err := ParseInitPacket(data)
	assert.Error(t, err)
}

func TestParseInitPacket_MalformedRejected(t *testing.T) {
	_, err := ParseInitPacket([]byte{0xFF, 0xFF, 0xFF})
	assert.Error(t, err)
}

func TestHashTypeString(t *testing.T) {
	assert.Equal(t, "sha256", HashTypeSHA256.String())
	assert.Equal(t, "none", HashTypeNone.String())
}
