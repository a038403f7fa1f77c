// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

package zk

import (
	"errors"
	"fmt"
)

// Sentinel errors for protocol and session failures. Callers match with
// errors.Is; the session wraps them with device address context.
var (
	// ErrNotConnected is returned by any command issued on a session that
	// is not in the Connected state.
	ErrNotConnected = errors.New("zk: not connected")

	// ErrBadChecksum indicates a received frame whose checksum did not
	// re-verify.
	ErrBadChecksum = errors.New("zk: bad checksum")

	// ErrTruncated indicates a frame or payload shorter than its declared
	// or minimum length.
	ErrTruncated = errors.New("zk: truncated frame")

	// ErrBadMagic indicates a frame that does not start with the 0x5050,
	// 0x8282 magic words.
	ErrBadMagic = errors.New("zk: bad frame magic")

	// ErrConnectTimeout indicates the initial TCP dial exceeded its
	// deadline. A CONNECT handshake that times out after the dial reports
	// ErrCommandTimeout.
	ErrConnectTimeout = errors.New("zk: connect timeout")

	// ErrCommandTimeout indicates a command exchange exceeded the
	// per-command deadline. The session socket is torn down.
	ErrCommandTimeout = errors.New("zk: command timeout")
)

// UnexpectedCommandError reports a response frame whose command code is not
// valid for the request that was issued.
type UnexpectedCommandError struct {
	Got      uint16
	Expected string
}

func (e *UnexpectedCommandError) Error() string {
	return fmt.Sprintf("zk: unexpected command %d (want %s)", e.Got, e.Expected)
}

// DeviceError reports an explicit ACK_ERROR response from the terminal.
type DeviceError struct {
	Command uint16
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("zk: device rejected command %d", e.Command)
}
