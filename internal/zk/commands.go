// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

package zk

// Command codes for the ZK binary protocol (the subset this agent uses).
// All values are sent little-endian in the command-layer header.
const (
	CmdConnect       uint16 = 1000
	CmdExit          uint16 = 1001
	CmdEnableDevice  uint16 = 1002
	CmdDisableDevice uint16 = 1003

	CmdGetAttendance uint16 = 13
	CmdGetUsers      uint16 = 9
	CmdGetDeviceInfo uint16 = 11
	CmdClearAttlog   uint16 = 15

	CmdPrepareData uint16 = 1500
	CmdData        uint16 = 1501
	CmdFreeData    uint16 = 1502

	CmdACKOK    uint16 = 2000
	CmdACKError uint16 = 2001
	CmdACKData  uint16 = 2002
)

// Frame magic words (little-endian u16 pairs at the head of the TCP layer).
const (
	magic1 uint16 = 0x5050
	magic2 uint16 = 0x8282
)

// headerSize is the TCP-layer envelope: two magic words plus a u32 body
// length. commandHeaderSize is the fixed command-layer prefix before the
// payload.
const (
	headerSize        = 8
	commandHeaderSize = 8
)
