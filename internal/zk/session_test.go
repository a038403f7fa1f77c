// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

package zk

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/punchsync/punchsync/internal/models"
)

// fakeDevice is an in-process terminal speaking just enough of the
// protocol to exercise the session: CONNECT/EXIT handshake, inline and
// chunked attendance, and device info queries.
type fakeDevice struct {
	t  *testing.T
	ln net.Listener

	sessionID  uint16
	attendance []byte
	chunkSize  int // 0 serves attendance inline on ACK_OK

	freeDataCalls atomic.Int32
	dataRequests  atomic.Int32
}

func newFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	d := &fakeDevice{t: t, ln: ln, sessionID: 0x1234}
	t.Cleanup(func() { _ = ln.Close() })
	go d.acceptLoop()
	return d
}

func (d *fakeDevice) addr() (string, int) {
	addr := d.ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func (d *fakeDevice) session() *Session {
	ip, port := d.addr()
	return NewSession(Config{
		IP:             ip,
		Port:           port,
		ConnectTimeout: 2 * time.Second,
		CommandTimeout: 2 * time.Second,
	})
}

func (d *fakeDevice) acceptLoop() {
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return
		}
		go d.serve(conn)
	}
}

func (d *fakeDevice) serve(conn net.Conn) {
	defer conn.Close()

	var pending []byte // chunked attendance remaining
	chunking := false

	for {
		req, err := readFrame(conn)
		if err != nil {
			return
		}

		reply := func(cmd uint16, payload []byte) {
			_, _ = conn.Write(EncodePacket(cmd, d.sessionID, req.ReplyID, payload))
		}

		switch req.Command {
		case CmdConnect:
			reply(CmdACKOK, nil)
		case CmdExit:
			reply(CmdACKOK, nil)
			return
		case CmdGetAttendance:
			if d.chunkSize <= 0 {
				reply(CmdACKOK, d.attendance)
				break
			}
			prepare := make([]byte, 8)
			binary.LittleEndian.PutUint32(prepare[0:4], uint32(len(d.attendance)))
			pending = d.attendance
			chunking = true
			reply(CmdPrepareData, prepare)
		case CmdData:
			d.dataRequests.Add(1)
			if !chunking || len(pending) == 0 {
				reply(CmdACKOK, nil)
				break
			}
			n := d.chunkSize
			if n > len(pending) {
				n = len(pending)
			}
			reply(CmdData, pending[:n])
			pending = pending[n:]
		case CmdFreeData:
			d.freeDataCalls.Add(1)
			chunking = false
			reply(CmdACKOK, nil)
		case CmdEnableDevice, CmdDisableDevice:
			reply(CmdACKOK, nil)
		case CmdClearAttlog:
			d.attendance = nil
			reply(CmdACKOK, nil)
		case CmdGetDeviceInfo:
			key := cleanString(req.Payload)
			if key == "~SerialNumber" {
				reply(CmdACKOK, []byte("~SerialNumber=ZX12345\x00"))
			} else {
				reply(CmdACKError, nil)
			}
		default:
			reply(CmdACKError, nil)
		}
	}
}

// readFrame reads one complete frame off conn.
func readFrame(conn net.Conn) (*Packet, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, err
	}
	bodyLen, err := DecodeHeader(header)
	if err != nil {
		return nil, err
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(conn, body); err != nil {
		return nil, err
	}
	return DecodeBody(body)
}

func testPunch(userID string) models.Punch {
	return models.Punch{
		OderID:    1,
		UserID:    userID,
		Timestamp: time.Date(2022, time.June, 3, 4, 43, 12, 0, time.UTC),
		Status:    1,
	}
}

func TestSessionConnectAndDisconnect(t *testing.T) {
	device := newFakeDevice(t)
	session := device.session()

	if err := session.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if session.State() != StateConnected {
		t.Fatalf("expected StateConnected, got %v", session.State())
	}
	if session.sessionID != 0x1234 {
		t.Errorf("expected session id 0x1234, got %#04x", session.sessionID)
	}

	session.Disconnect()
	if session.State() != StateClosed {
		t.Fatalf("expected StateClosed, got %v", session.State())
	}

	// commands after disconnect fail fast
	if _, err := session.GetAttendance(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	// disconnect is idempotent
	session.Disconnect()
}

func TestSessionSmallPayloadAttendance(t *testing.T) {
	device := newFakeDevice(t)
	device.attendance = EncodeAttendanceRecordNew(testPunch("1329"))

	session := device.session()
	if err := session.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer session.Disconnect()

	punches, err := session.GetAttendance(context.Background())
	if err != nil {
		t.Fatalf("GetAttendance: %v", err)
	}
	if len(punches) != 1 {
		t.Fatalf("expected 1 punch, got %d", len(punches))
	}
	if punches[0].UserID != "1329" {
		t.Errorf("expected userID \"1329\", got %q", punches[0].UserID)
	}

	// the inline path never allocates a device-side buffer to free
	if n := device.freeDataCalls.Load(); n != 0 {
		t.Errorf("expected no FREE_DATA on inline path, got %d", n)
	}
}

func TestSessionChunkedAttendance(t *testing.T) {
	device := newFakeDevice(t)
	device.attendance = append(
		EncodeAttendanceRecordNew(testPunch("1001")),
		EncodeAttendanceRecordNew(testPunch("1002"))...,
	)
	device.chunkSize = RecordSizeNew

	session := device.session()
	if err := session.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer session.Disconnect()

	punches, err := session.GetAttendance(context.Background())
	if err != nil {
		t.Fatalf("GetAttendance: %v", err)
	}
	if len(punches) != 2 {
		t.Fatalf("expected 2 punches, got %d", len(punches))
	}
	if punches[0].UserID != "1001" || punches[1].UserID != "1002" {
		t.Errorf("unexpected punch order: %q, %q", punches[0].UserID, punches[1].UserID)
	}

	if n := device.freeDataCalls.Load(); n != 1 {
		t.Errorf("expected FREE_DATA exactly once, got %d", n)
	}
}

func TestSessionDeviceInfo(t *testing.T) {
	device := newFakeDevice(t)
	session := device.session()
	if err := session.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer session.Disconnect()

	info, err := session.GetDeviceInfo(context.Background())
	if err != nil {
		t.Fatalf("GetDeviceInfo: %v", err)
	}
	if info.SerialNumber != "ZX12345" {
		t.Errorf("expected serial ZX12345, got %q", info.SerialNumber)
	}
	// the fake answers only the serial; other fields degrade to empty
	if info.Platform != "" {
		t.Errorf("expected empty platform, got %q", info.Platform)
	}
}

func TestSessionSimpleCommands(t *testing.T) {
	device := newFakeDevice(t)
	device.attendance = EncodeAttendanceRecordNew(testPunch("77"))

	session := device.session()
	if err := session.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer session.Disconnect()

	if err := session.Disable(context.Background()); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if err := session.ClearAttendance(context.Background()); err != nil {
		t.Fatalf("ClearAttendance: %v", err)
	}
	if err := session.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	// the log was erased device-side
	punches, err := session.GetAttendance(context.Background())
	if err != nil {
		t.Fatalf("GetAttendance: %v", err)
	}
	if len(punches) != 0 {
		t.Fatalf("expected empty log after clear, got %d", len(punches))
	}

	// a command the device rejects surfaces as a DeviceError
	var devErr *DeviceError
	if _, err := session.GetUsers(context.Background()); !errors.As(err, &devErr) {
		t.Fatalf("expected DeviceError for unsupported command, got %v", err)
	}
}

func TestSessionCommandTimeoutTearsDown(t *testing.T) {
	// a listener that accepts and stays silent forces the handshake past
	// its deadline
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 1024)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	session := NewSession(Config{
		IP:             addr.IP.String(),
		Port:           addr.Port,
		ConnectTimeout: 200 * time.Millisecond,
		CommandTimeout: 200 * time.Millisecond,
	})

	err = session.Connect(context.Background())
	if !errors.Is(err, ErrCommandTimeout) {
		t.Fatalf("expected ErrCommandTimeout, got %v", err)
	}
	if session.State() != StateClosed {
		t.Fatalf("expected StateClosed after timeout, got %v", session.State())
	}
}

func TestSessionRefusedConnection(t *testing.T) {
	// grab a free port, then close the listener so the dial is refused
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	_ = ln.Close()

	session := NewSession(Config{
		IP:             addr.IP.String(),
		Port:           addr.Port,
		ConnectTimeout: time.Second,
		CommandTimeout: time.Second,
	})
	if err := session.Connect(context.Background()); err == nil {
		t.Fatal("expected connection error")
	}
}
