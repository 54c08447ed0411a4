package dfu

import (
	"hash/crc32"
	"time"

	"github.com/rctsang/nrf52-ble-dfu/ble"
)

// testHandle is the minimal ble.Handle a test needs.
type testHandle string

func (h testHandle) Addr() string { return string(h) }

// fakeGatt is a tiny in-process Secure DFU bootloader simulator: it
// tracks one object's offset/CRC and answers Control-Point requests the
// way a real target would, just enough to drive the state machine
// through a scripted scenario without a real radio.
type fakeGatt struct {
	name string

	findErr     error
	findAttempt int
	failFindN   int // FindByName fails this many times before succeeding

	connectErr error
	connected  bool

	notify ble.NotifyHandler

	maxSize  uint32
	offset   uint32
	crc      uint32
	prn      uint32
	pktCount uint32

	controlWrites []byte
	packetWrites  [][]byte
}

func (g *fakeGatt) FindByName(name string, timeout time.Duration) (ble.Handle, error) {
	g.findAttempt++
	if g.findAttempt <= g.failFindN {
		return nil, errorNotFound
	}
	return testHandle(name), nil
}

func (g *fakeGatt) Connect(handle ble.Handle) error {
	if g.connectErr != nil {
		return g.connectErr
	}
	g.connected = true
	return nil
}

func (g *fakeGatt) IsConnected() bool { return g.connected }

func (g *fakeGatt) SubscribeControlPoint(handler ble.NotifyHandler) error {
	g.notify = handler
	return nil
}

func (g *fakeGatt) Disconnect() error {
	g.connected = false
	return nil
}

func (g *fakeGatt) push(data []byte) {
	if g.notify != nil {
		g.notify(ble.Notification{Data: data, Timestamp: time.Now()})
	}
}

func (g *fakeGatt) WriteControlPoint(data []byte, withAck bool) error {
	g.controlWrites = append(g.controlWrites, data...)
	if len(data) == 0 {
		return nil
	}

	switch Opcode(data[0]) {
	case OpObjectSelect:
		resp := []byte{byte(OpResponse), byte(OpObjectSelect), byte(ResultSuccess)}
		resp = appendLE32(resp, g.maxSize)
		resp = appendLE32(resp, g.offset)
		resp = appendLE32(resp, g.crc)
		g.push(resp)

	case OpObjectCreate:
		g.offset = 0
		g.crc = 0
		g.pktCount = 0
		g.push([]byte{byte(OpResponse), byte(OpObjectCreate), byte(ResultSuccess)})

	case OpReceiptNotifSet:
		g.prn = uint32(data[1]) | uint32(data[2])<<8
		g.pktCount = 0
		g.push([]byte{byte(OpResponse), byte(OpReceiptNotifSet), byte(ResultSuccess)})

	case OpCRCGet:
		resp := []byte{byte(OpResponse), byte(OpCRCGet), byte(ResultSuccess)}
		resp = appendLE32(resp, g.offset)
		resp = appendLE32(resp, g.crc)
		g.push(resp)

	case OpObjectExecute:
		g.push([]byte{byte(OpResponse), byte(OpObjectExecute), byte(ResultSuccess)})

	case OpAbort:
		// no ack, matches the real target's fire-and-forget handling
	}

	return nil
}

func (g *fakeGatt) WritePacket(data []byte) error {
	g.packetWrites = append(g.packetWrites, data)
	g.offset += uint32(len(data))
	g.crc = crc32.Update(g.crc, crc32.IEEETable, data)
	g.pktCount++

	if g.prn > 0 && g.pktCount%g.prn == 0 {
		resp := []byte{byte(OpResponse), byte(OpCRCGet), byte(ResultSuccess)}
		resp = appendLE32(resp, g.offset)
		resp = appendLE32(resp, g.crc)
		g.push(resp)
	}
	return nil
}

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

const errorNotFound = sentinelError("not found")
