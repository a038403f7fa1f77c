// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

package zk

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/punchsync/punchsync/internal/logging"
	"github.com/punchsync/punchsync/internal/models"
)

// Default deadlines. Each command exchange is bounded by CommandTimeout;
// the TCP dial and CONNECT handshake get the longer ConnectTimeout.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultCommandTimeout = 5 * time.Second
)

// State tracks the session lifecycle: Idle until Connect, Connected while
// the handshake holds, Closed after Disconnect or any I/O failure.
type State int

const (
	StateIdle State = iota
	StateConnected
	StateClosed
)

// Config addresses one terminal.
type Config struct {
	IP             string
	Port           int
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
}

// DeviceInfo holds the best-effort identification attributes read from the
// terminal. Fields the device fails to answer stay empty.
type DeviceInfo struct {
	SerialNumber    string `json:"serialNumber"`
	Platform        string `json:"platform"`
	DeviceName      string `json:"deviceName"`
	FirmwareVersion string `json:"firmwareVersion"`
}

// Session owns one TCP connection to one device for its whole lifetime.
// Commands are strictly serialized: request, response, next request. Any
// I/O error tears the socket down; subsequent commands fail fast with
// ErrNotConnected. Sessions are not safe for concurrent use.
type Session struct {
	cfg Config

	mu        sync.Mutex
	conn      net.Conn
	state     State
	sessionID uint16
	replyID   uint16
}

// NewSession creates an idle session for the given device address,
// applying default timeouts where the config leaves them zero.
func NewSession(cfg Config) *Session {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	return &Session{cfg: cfg}
}

// addr returns the host:port dial target.
func (s *Session) addr() string {
	return net.JoinHostPort(s.cfg.IP, fmt.Sprintf("%d", s.cfg.Port))
}

// Connect opens the TCP socket and performs the CONNECT handshake. The
// device's ACK_OK carries the session id echoed on every later frame.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateConnected {
		return nil
	}

	dialer := net.Dialer{Timeout: s.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr())
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%s: %w", s.addr(), ErrConnectTimeout)
		}
		return fmt.Errorf("dial %s: %w", s.addr(), err)
	}

	s.conn = conn
	s.state = StateConnected
	s.sessionID = 0
	s.replyID = 0

	resp, err := s.exchange(CmdConnect, nil, s.cfg.ConnectTimeout)
	if err != nil {
		s.teardown()
		return fmt.Errorf("connect handshake: %w", err)
	}
	if resp.Command != CmdACKOK {
		s.teardown()
		return &UnexpectedCommandError{Got: resp.Command, Expected: "ACK_OK"}
	}

	s.sessionID = resp.SessionID
	logging.Debug().Str("device", s.addr()).Uint16("session", s.sessionID).Msg("Device session established")
	return nil
}

// Disconnect sends EXIT best-effort and closes the socket. Safe to call
// from any state and more than once.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateConnected {
		// exit is advisory; the close below is what matters
		_, _ = s.exchange(CmdExit, nil, s.cfg.CommandTimeout)
	}
	s.teardown()
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// GetAttendance drains the device's attendance log through the chunked
// data flow and decodes it into punches. Per-record decode failures are
// dropped, never fatal.
func (s *Session) GetAttendance(ctx context.Context) ([]models.Punch, error) {
	buf, err := s.readChunked(ctx, CmdGetAttendance)
	if err != nil {
		return nil, err
	}
	return ParseAttendance(buf), nil
}

// GetUsers reads the device user table through the same chunked flow.
func (s *Session) GetUsers(ctx context.Context) ([]User, error) {
	buf, err := s.readChunked(ctx, CmdGetUsers)
	if err != nil {
		return nil, err
	}
	return ParseUsers(buf), nil
}

// GetDeviceInfo reads identification attributes one key at a time.
// Individual lookups that fail leave their field empty rather than
// propagating an error.
func (s *Session) GetDeviceInfo(ctx context.Context) (DeviceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return DeviceInfo{}, ErrNotConnected
	}

	return DeviceInfo{
		SerialNumber:    s.queryParam(ctx, "SerialNumber"),
		Platform:        s.queryParam(ctx, "Platform"),
		DeviceName:      s.queryParam(ctx, "DeviceName"),
		FirmwareVersion: s.queryParam(ctx, "ZKFPVersion"),
	}, nil
}

// queryParam issues GET_DEVICE_INFO for one ~Key and parses the value out
// of the key=value response payload. Best effort: any failure returns "".
func (s *Session) queryParam(ctx context.Context, key string) string {
	if ctx.Err() != nil || s.state != StateConnected {
		return ""
	}
	resp, err := s.exchange(CmdGetDeviceInfo, []byte("~"+key+"\x00"), s.cfg.CommandTimeout)
	if err != nil {
		s.teardown()
		return ""
	}
	if resp.Command != CmdACKOK {
		return ""
	}
	value := cleanString(resp.Payload)
	if i := strings.IndexByte(value, '='); i >= 0 {
		value = value[i+1:]
	}
	return strings.TrimSpace(value)
}

// ClearAttendance erases the device-side attendance log.
func (s *Session) ClearAttendance(ctx context.Context) error {
	return s.simpleCommand(ctx, CmdClearAttlog)
}

// Enable returns the terminal to normal user interaction.
func (s *Session) Enable(ctx context.Context) error {
	return s.simpleCommand(ctx, CmdEnableDevice)
}

// Disable locks the terminal UI while data is being read.
func (s *Session) Disable(ctx context.Context) error {
	return s.simpleCommand(ctx, CmdDisableDevice)
}

// simpleCommand issues one command and requires ACK_OK.
func (s *Session) simpleCommand(ctx context.Context, cmd uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	resp, err := s.exchange(cmd, nil, s.cfg.CommandTimeout)
	if err != nil {
		s.teardown()
		return err
	}
	switch resp.Command {
	case CmdACKOK:
		return nil
	case CmdACKError:
		return &DeviceError{Command: cmd}
	default:
		return &UnexpectedCommandError{Got: resp.Command, Expected: "ACK_OK"}
	}
}

// readChunked performs the PREPARE_DATA / DATA / FREE_DATA flow. Small
// responses arrive inline on an ACK_OK and skip FREE_DATA entirely; large
// ones stream in DATA frames until the accumulated size reaches the
// declared total or the device sends ACK_OK, whichever comes first.
func (s *Session) readChunked(ctx context.Context, cmd uint16) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return nil, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := s.exchange(cmd, nil, s.cfg.CommandTimeout)
	if err != nil {
		s.teardown()
		return nil, err
	}

	switch resp.Command {
	case CmdACKOK:
		// small-payload path: data arrives inline
		return resp.Payload, nil
	case CmdACKError:
		return nil, &DeviceError{Command: cmd}
	case CmdPrepareData:
	default:
		return nil, &UnexpectedCommandError{Got: resp.Command, Expected: "ACK_OK or PREPARE_DATA"}
	}

	if len(resp.Payload) < 4 {
		return nil, fmt.Errorf("PREPARE_DATA payload %d bytes: %w", len(resp.Payload), ErrTruncated)
	}
	totalSize := binary.LittleEndian.Uint32(resp.Payload[0:4])

	buf := make([]byte, 0, totalSize)
	for uint32(len(buf)) < totalSize {
		if err := ctx.Err(); err != nil {
			s.teardown()
			return nil, err
		}
		chunk, err := s.exchange(CmdData, nil, s.cfg.CommandTimeout)
		if err != nil {
			s.teardown()
			return nil, err
		}
		if chunk.Command == CmdACKOK {
			break
		}
		if chunk.Command != CmdData && chunk.Command != CmdACKData {
			return nil, &UnexpectedCommandError{Got: chunk.Command, Expected: "DATA or ACK_OK"}
		}
		buf = append(buf, chunk.Payload...)
	}

	// release the device-side buffer; failure here does not lose data
	if _, err := s.exchange(CmdFreeData, nil, s.cfg.CommandTimeout); err != nil {
		logging.Warn().Err(err).Str("device", s.addr()).Msg("FREE_DATA failed")
		s.teardown()
	}

	return buf, nil
}

// exchange sends one command frame and reads frames until one carries the
// matching reply id. Must be called with mu held and state Connected. Any
// error is a hard session error; callers tear down.
func (s *Session) exchange(cmd uint16, payload []byte, timeout time.Duration) (*Packet, error) {
	s.replyID++
	frame := EncodePacket(cmd, s.sessionID, s.replyID, payload)

	deadline := time.Now().Add(timeout)
	if err := s.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	if _, err := s.conn.Write(frame); err != nil {
		return nil, s.classify(err)
	}

	for {
		resp, err := s.readPacket()
		if err != nil {
			return nil, err
		}
		if resp.ReplyID != s.replyID {
			// stale reply from an earlier exchange; drop and keep reading
			logging.Debug().Str("device", s.addr()).Uint16("got", resp.ReplyID).Uint16("want", s.replyID).Msg("Discarding mismatched reply")
			continue
		}
		return resp, nil
	}
}

// readPacket reads one full frame off the socket under the current
// deadline.
func (s *Session) readPacket() (*Packet, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(s.conn, header); err != nil {
		return nil, s.classify(err)
	}
	bodyLen, err := DecodeHeader(header)
	if err != nil {
		return nil, err
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(s.conn, body); err != nil {
		return nil, s.classify(err)
	}
	return DecodeBody(body)
}

// classify maps socket errors onto the session error taxonomy.
func (s *Session) classify(err error) error {
	if isTimeout(err) {
		return fmt.Errorf("%s: %w", s.addr(), ErrCommandTimeout)
	}
	return fmt.Errorf("%s: %w", s.addr(), err)
}

// teardown closes the socket and moves to Closed. Must be called with mu
// held (or from Disconnect which holds it).
func (s *Session) teardown() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.state = StateClosed
}

// isTimeout reports whether err is a network timeout.
func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
