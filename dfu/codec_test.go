package dfu

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeObjectCreate(t *testing.T) {
	got := EncodeObjectCreate(ObjectTypeData, 256)
	assert.Equal(t, byte(OpObjectCreate), got[0])
	assert.Equal(t, byte(ObjectTypeData), got[1])
	assert.Equal(t, uint32(256), binary.LittleEndian.Uint32(got[2:6]))
}

func TestEncodeReceiptNotifSet(t *testing.T) {
	got := EncodeReceiptNotifSet(10)
	require.Len(t, got, 3)
	assert.Equal(t, byte(OpReceiptNotifSet), got[0])
	assert.Equal(t, uint16(10), binary.LittleEndian.Uint16(got[1:3]))
}

func TestDecodeResponse_Select(t *testing.T) {
	data := []byte{byte(OpResponse), byte(OpObjectSelect), byte(ResultSuccess)}
	data = appendLE32(data, 256)
	data = appendLE32(data, 140)
	data = appendLE32(data, 0xDEADBEEF)

	resp, err := DecodeResponse(data)
	require.NoError(t, err)
	assert.True(t, resp.Ok())
	assert.Equal(t, uint32(256), resp.MaxSize)
	assert.Equal(t, uint32(140), resp.Offset)
	assert.Equal(t, uint32(0xDEADBEEF), resp.CRC)
}

func TestDecodeResponse_CRCGet(t *testing.T) {
	data := []byte{byte(OpResponse), byte(OpCRCGet), byte(ResultSuccess)}
	data = appendLE32(data, 140)
	data = appendLE32(data, 0x12345678)

	resp, err := DecodeResponse(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(140), resp.Offset)
	assert.Equal(t, uint32(0x12345678), resp.CRC)
}

func TestDecodeResponse_ExtendedError(t *testing.T) {
	data := []byte{byte(OpResponse), byte(OpObjectExecute), byte(ResultExtendedError), byte(ExtendedVerificationFailed)}

	resp, err := DecodeResponse(data)
	require.NoError(t, err)
	assert.False(t, resp.Ok())
	assert.Equal(t, CodeExtendedVerificationFailed, resp.ErrorCode())
}

func TestDecodeResponse_NotResponseTag(t *testing.T) {
	_, err := DecodeResponse([]byte{byte(OpObjectSelect), 0x01, 0x01})
	assert.Error(t, err)
}

func TestDecodeResponse_TooShort(t *testing.T) {
	_, err := DecodeResponse([]byte{byte(OpResponse), byte(OpCRCGet)})
	assert.Error(t, err)
}

func TestDecodePRN_RejectsWrongOpcode(t *testing.T) {
	data := []byte{byte(OpResponse), byte(OpObjectExecute), byte(ResultSuccess)}
	_, err := DecodePRN(data)
	assert.Error(t, err)
}

func TestDecodePRN_Accepts(t *testing.T) {
	data := []byte{byte(OpResponse), byte(OpCRCGet), byte(ResultSuccess)}
	data = appendLE32(data, 20)
	data = appendLE32(data, 0x1)

	resp, err := DecodePRN(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(20), resp.Offset)
}

// Round-trip law from §8: decoding a response then re-encoding its
// semantic fields reproduces the original bytes, for SUCCESS SELECT and
// CRC/PRN frames.
func TestResponseRoundTrip_Select(t *testing.T) {
	original := []byte{byte(OpResponse), byte(OpObjectSelect), byte(ResultSuccess)}
	original = appendLE32(original, 128)
	original = appendLE32(original, 64)
	original = appendLE32(original, 999)

	resp, err := DecodeResponse(original)
	require.NoError(t, err)

	reencoded := []byte{byte(OpResponse), byte(resp.ReqOpcode), byte(resp.Result)}
	reencoded = appendLE32(reencoded, resp.MaxSize)
	reencoded = appendLE32(reencoded, resp.Offset)
	reencoded = appendLE32(reencoded, resp.CRC)

	assert.Equal(t, original, reencoded)
}

func appendLE32(b []byte, v uint32) []byte {
	tmp := make([]byte, 4)
	binary.LittleEndian.PutUint32(tmp, v)
	return append(b, tmp...)
}
