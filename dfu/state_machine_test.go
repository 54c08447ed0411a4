package dfu

import (
	"archive/zip"
	"context"
	"encoding/json"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

// buildInitCommandPadded extends buildInitCommand with an extra opaque
// bytes field so the resulting init packet spans more than a handful
// of bytes, letting a scenario test drive a multi-packet object
// transfer without needing a real firmware image.
func buildInitCommandPadded(hashType int32, padLen int) []byte {
	initCmd := buildInitCommand(hashType)
	initCmd = protowire.AppendTag(initCmd, 50, protowire.BytesType)
	initCmd = protowire.AppendBytes(initCmd, make([]byte, padLen))
	return initCmd
}

// newTestPackage builds a single-application-image package with an init
// packet padded to roughly padLen bytes, for scenario tests that need a
// multi-packet COMMAND-phase transfer.
func newTestPackage(t *testing.T, padLen int, binData []byte) *Package {
	t.Helper()

	dir := t.TempDir()
	zipPath := filepath.Join(dir, "pkg.zip")

	f, err := os.Create(zipPath)
	require.NoError(t, err)

	zw := zip.NewWriter(f)

	datData := buildPacket(buildInitCommandPadded(int32(HashTypeNone), padLen), false)

	bw, err := zw.Create("application.bin")
	require.NoError(t, err)
	_, err = bw.Write(binData)
	require.NoError(t, err)

	dw, err := zw.Create("application.dat")
	require.NoError(t, err)
	_, err = dw.Write(datData)
	require.NoError(t, err)

	manifest := map[string]interface{}{
		"application": map[string]string{"bin_file": "application.bin", "dat_file": "application.dat"},
	}
	mw, err := zw.Create("manifest.json")
	require.NoError(t, err)
	raw, err := json.Marshal(map[string]interface{}{"manifest": manifest})
	require.NoError(t, err)
	_, err = mw.Write(raw)
	require.NoError(t, err)

	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	pkg, err := LoadPackage(zipPath)
	require.NoError(t, err)
	return pkg
}

func TestScenario_FreshTransfer(t *testing.T) {
	pkg := newTestPackage(t, 100, []byte("application-image-bytes"))
	initLen := len(pkg.Images[ImageApplication].InitData)

	gatt := &fakeGatt{maxSize: 256}
	driver := NewDriver(gatt, "DfuTarg", pkg)
	c := driver.Context
	c.Image = pkg.Images[ImageApplication]

	require.NoError(t, gatt.Connect(testHandle("DfuTarg")))
	require.NoError(t, subscribeControlPoint(c))
	c.State = StateTransferReady

	status, err := handlers[StateTransferReady].handle(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, StatusTransitioned, status)
	require.Equal(t, StateSelectObject, c.State)

	status, err = handlers[StateSelectObject].entry(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, StatusInit, status)

	status, err = handlers[StateSelectObject].handle(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, StatusTransitioned, status)
	require.Equal(t, StateCreateObject, c.State)

	status, err = handlers[StateCreateObject].entry(context.Background(), c)
	require.NoError(t, err)
	status, err = handlers[StateCreateObject].handle(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, StatusTransitioned, status)
	require.Equal(t, StateTransferringObject, c.State)

	_, err = handlers[StateTransferringObject].entry(context.Background(), c)
	require.NoError(t, err)

	for c.State == StateTransferringObject {
		status, err = handlers[StateTransferringObject].handle(context.Background(), c)
		require.NoError(t, err)
		if status == StatusTransitioned {
			break
		}
	}
	require.Equal(t, StateValidateObject, c.State)
	assert.Equal(t, uint32(initLen), c.BytesSent)
	assert.Equal(t, crc32.ChecksumIEEE(pkg.Images[ImageApplication].InitData), c.LocalCRC)

	status, err = handlers[StateValidateObject].entry(context.Background(), c)
	require.NoError(t, err)
	status, err = handlers[StateValidateObject].handle(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, StatusTransitioned, status)
	require.Equal(t, StateExecuteObject, c.State)
}

func TestScenario_AlreadySentSkip(t *testing.T) {
	pkg := newTestPackage(t, 10, []byte("fw"))
	initData := pkg.Images[ImageApplication].InitData

	gatt := &fakeGatt{maxSize: 256, offset: uint32(len(initData)), crc: crc32.ChecksumIEEE(initData)}
	driver := NewDriver(gatt, "DfuTarg", pkg)
	c := driver.Context
	c.Image = pkg.Images[ImageApplication]

	require.NoError(t, gatt.Connect(testHandle("DfuTarg")))
	require.NoError(t, subscribeControlPoint(c))

	c.Phase = PhaseCommand
	c.TxData = initData
	c.State = StateSelectObject

	_, err := handlers[StateSelectObject].entry(context.Background(), c)
	require.NoError(t, err)
	status, err := handlers[StateSelectObject].handle(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, StatusTransitioned, status)
	assert.Equal(t, StateExecuteObject, c.State)
	assert.Empty(t, gatt.packetWrites)
}

func TestScenario_ScanFailureExhausted(t *testing.T) {
	pkg := newTestPackage(t, 10, []byte("fw"))
	gatt := &fakeGatt{failFindN: MaxConnectAttempts}
	driver := NewDriver(gatt, "DfuTarg", pkg)
	c := driver.Context

	_, _ = handlers[StateDisconnected].entry(context.Background(), c)

	var status Status
	var err error
	for i := 0; i < MaxConnectAttempts; i++ {
		status, err = handlers[StateDisconnected].handle(context.Background(), c)
		if err != nil {
			break
		}
	}

	require.Error(t, err)
	assert.Equal(t, StatusError, status)
	dfuErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, CodeFailedToConnect, dfuErr.Code)
}

func TestScenario_EmptyQueueGoesToTransferDone(t *testing.T) {
	pkg := newTestPackage(t, 10, []byte("fw"))
	gatt := &fakeGatt{}
	driver := NewDriver(gatt, "DfuTarg", pkg)
	c := driver.Context
	c.ImageQueue = nil

	status, err := handlers[StateDisconnected].handle(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, StatusTransitioned, status)
	assert.Equal(t, StateTransferDone, c.State)
}

func buildCRCGetResponse(offset, crc uint32) []byte {
	resp := []byte{byte(OpResponse), byte(OpCRCGet), byte(ResultSuccess)}
	resp = appendLE32(resp, offset)
	resp = appendLE32(resp, crc)
	return resp
}

// TestScenario_CRCRetryDoesNotDoubleCountObjectsSent drives
// validateObjectHandler through a CRC mismatch (triggering a
// CREATE_OBJECT retry of the same object) followed by a matching CRC,
// and checks ObjectsSent only increments once the object actually
// validates, not once per transfer attempt.
func TestScenario_CRCRetryDoesNotDoubleCountObjectsSent(t *testing.T) {
	pkg := newTestPackage(t, 10, []byte("fw"))

	gatt := &fakeGatt{maxSize: 256}
	driver := NewDriver(gatt, "DfuTarg", pkg)
	c := driver.Context
	c.Image = pkg.Images[ImageApplication]

	require.NoError(t, gatt.Connect(testHandle("DfuTarg")))
	require.NoError(t, subscribeControlPoint(c))

	c.NumObjects = 3
	c.ObjectsSent = 0
	c.LocalCRC = 0xAAAAAAAA
	c.Attempts = 0
	c.State = StateValidateObject

	gatt.push(buildCRCGetResponse(10, 0xBBBBBBBB))
	status, err := handlers[StateValidateObject].handle(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, StatusTransitioned, status)
	assert.Equal(t, StateCreateObject, c.State)
	assert.Equal(t, uint32(0), c.ObjectsSent)

	c.State = StateValidateObject
	gatt.push(buildCRCGetResponse(10, 0xAAAAAAAA))
	status, err = handlers[StateValidateObject].handle(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, StatusTransitioned, status)
	assert.Equal(t, StateExecuteObject, c.State)
	assert.Equal(t, uint32(1), c.ObjectsSent)
}

// TestExecuteObjectHandler_EntryDoesNotForceClearPRN checks EXECUTE_OBJECT's
// entry issues only OBJECT_EXECUTE, not a spurious RECEIPT_NOTIF_SET(0)
// ahead of it; PRN is already 0 by the time EXECUTE is entered.
func TestExecuteObjectHandler_EntryDoesNotForceClearPRN(t *testing.T) {
	pkg := newTestPackage(t, 5, []byte("fw"))

	gatt := &fakeGatt{maxSize: 256}
	driver := NewDriver(gatt, "DfuTarg", pkg)
	c := driver.Context
	c.Image = pkg.Images[ImageApplication]

	require.NoError(t, gatt.Connect(testHandle("DfuTarg")))
	require.NoError(t, subscribeControlPoint(c))

	status, err := handlers[StateExecuteObject].entry(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, StatusInit, status)
	assert.Equal(t, EncodeObjectExecute(), gatt.controlWrites)
}

func TestHandlersRegistry_Exhaustive(t *testing.T) {
	for s := StateDisconnected; s <= StateTransferDone; s++ {
		_, ok := handlers[s]
		assert.True(t, ok, "missing handler for state %s", s)
	}
}
