// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

// Package zk implements the ZKTeco/ESSL binary wire protocol: packet
// framing with its 16-bit one's-complement checksum, the packed base-2000
// timestamp, attendance record decoding, and a TCP session that drives the
// connect/exit handshake and chunked data retrieval.
//
// Every frame is a two-layer envelope. The TCP layer is eight bytes: two
// magic words (0x5050, 0x8282) and a u32 body length. The command layer is
// eight bytes of header (command, checksum, session id, reply id, all u16)
// followed by the payload. All integers are little-endian.
package zk

import (
	"encoding/binary"
	"fmt"
)

// Packet is one decoded command-layer frame.
type Packet struct {
	Command   uint16
	SessionID uint16
	ReplyID   uint16
	Payload   []byte
}

// Checksum computes the protocol checksum over a command-layer buffer whose
// checksum bytes (offsets 2..4) are zero: sum the buffer as little-endian
// 16-bit words with wrap-around, add a trailing odd byte as its own low
// byte, then negate one's-complement style and truncate to 16 bits.
func Checksum(data []byte) uint16 {
	var sum uint16
	n := len(data)
	for i := 0; i+1 < n; i += 2 {
		sum += binary.LittleEndian.Uint16(data[i : i+2])
	}
	if n%2 == 1 {
		sum += uint16(data[n-1])
	}
	return (^sum + 1) & 0xFFFF
}

// EncodePacket builds a complete wire frame (TCP layer + command layer) for
// the given command and payload.
func EncodePacket(command, sessionID, replyID uint16, payload []byte) []byte {
	body := make([]byte, commandHeaderSize+len(payload))
	binary.LittleEndian.PutUint16(body[0:2], command)
	// checksum bytes stay zero while the sum is computed
	binary.LittleEndian.PutUint16(body[4:6], sessionID)
	binary.LittleEndian.PutUint16(body[6:8], replyID)
	copy(body[commandHeaderSize:], payload)
	binary.LittleEndian.PutUint16(body[2:4], Checksum(body))

	frame := make([]byte, headerSize+len(body))
	binary.LittleEndian.PutUint16(frame[0:2], magic1)
	binary.LittleEndian.PutUint16(frame[2:4], magic2)
	binary.LittleEndian.PutUint32(frame[4:8], uint32(len(body)))
	copy(frame[headerSize:], body)
	return frame
}

// DecodeBody decodes a command-layer buffer (the frame with its TCP-layer
// envelope already removed) and verifies its checksum.
func DecodeBody(body []byte) (*Packet, error) {
	if len(body) < commandHeaderSize {
		return nil, fmt.Errorf("command layer %d bytes: %w", len(body), ErrTruncated)
	}

	received := binary.LittleEndian.Uint16(body[2:4])
	scratch := make([]byte, len(body))
	copy(scratch, body)
	scratch[2], scratch[3] = 0, 0
	if Checksum(scratch) != received {
		return nil, fmt.Errorf("checksum %#04x: %w", received, ErrBadChecksum)
	}

	payload := make([]byte, len(body)-commandHeaderSize)
	copy(payload, body[commandHeaderSize:])
	return &Packet{
		Command:   binary.LittleEndian.Uint16(body[0:2]),
		SessionID: binary.LittleEndian.Uint16(body[4:6]),
		ReplyID:   binary.LittleEndian.Uint16(body[6:8]),
		Payload:   payload,
	}, nil
}

// DecodeHeader validates the TCP-layer envelope and returns the declared
// command-layer length.
func DecodeHeader(header []byte) (int, error) {
	if len(header) < headerSize {
		return 0, fmt.Errorf("header %d bytes: %w", len(header), ErrTruncated)
	}
	if binary.LittleEndian.Uint16(header[0:2]) != magic1 ||
		binary.LittleEndian.Uint16(header[2:4]) != magic2 {
		return 0, ErrBadMagic
	}
	bodyLen := binary.LittleEndian.Uint32(header[4:8])
	if bodyLen < commandHeaderSize {
		return 0, fmt.Errorf("declared body length %d: %w", bodyLen, ErrTruncated)
	}
	return int(bodyLen), nil
}
