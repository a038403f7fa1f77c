// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

package zk

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/punchsync/punchsync/internal/models"
)

// Attendance record sizes. Firmware either returns the 40-byte "new"
// layout or the 16-byte "old" layout; the variant is chosen from the
// buffer length, never mixed within one response.
const (
	RecordSizeNew = 40
	RecordSizeOld = 16
)

// User table record size for GET_USERS responses.
const userRecordSize = 72

// cleanString strips NUL bytes and surrounding whitespace from a raw
// fixed-width field.
func cleanString(raw []byte) string {
	s := strings.ReplaceAll(string(raw), "\x00", "")
	return strings.TrimSpace(s)
}

// ParseAttendance splits a chunked-data buffer into fixed-size attendance
// records and decodes each one. Records that fail to decode are dropped;
// a short trailing fragment is ignored.
func ParseAttendance(buf []byte) []models.Punch {
	size := RecordSizeOld
	if len(buf) >= RecordSizeNew {
		size = RecordSizeNew
	}

	punches := make([]models.Punch, 0, len(buf)/size)
	for off := 0; off+size <= len(buf); off += size {
		p, err := DecodeAttendanceRecord(buf[off : off+size])
		if err != nil {
			continue
		}
		punches = append(punches, p)
	}
	return punches
}

// DecodeAttendanceRecord decodes a single attendance record of either
// layout, selected by the slice length.
func DecodeAttendanceRecord(rec []byte) (models.Punch, error) {
	switch len(rec) {
	case RecordSizeNew:
		return decodeNewRecord(rec)
	case RecordSizeOld:
		return decodeOldRecord(rec)
	default:
		return models.Punch{}, fmt.Errorf("record size %d: %w", len(rec), ErrTruncated)
	}
}

// decodeNewRecord decodes the 40-byte layout: three u16 ordinals, a
// 9-byte NUL-padded userId, packed timestamp at 24, status and punch bytes
// at 28 and 29. Remaining bytes are ignored.
func decodeNewRecord(rec []byte) (models.Punch, error) {
	userID := cleanString(rec[6:15])
	if userID == "" {
		return models.Punch{}, fmt.Errorf("empty userId: %w", ErrTruncated)
	}
	return models.Punch{
		OderID:    binary.LittleEndian.Uint16(rec[0:2]),
		OderID2:   binary.LittleEndian.Uint16(rec[2:4]),
		OderID3:   binary.LittleEndian.Uint16(rec[4:6]),
		UserID:    userID,
		Timestamp: DecodeTimestamp(binary.LittleEndian.Uint32(rec[24:28])).Time(),
		Status:    rec[28],
		Punch:     rec[29],
	}, nil
}

// decodeOldRecord decodes the 16-byte layout: u16 uid, four bytes of
// NUL-padded userId at 2, packed timestamp at 4, status and punch at 8 and
// 9. Some firmware leaves the userId slot empty; the decimal uid stands in
// for it then.
func decodeOldRecord(rec []byte) (models.Punch, error) {
	uid := binary.LittleEndian.Uint16(rec[0:2])
	userID := cleanString(rec[2:6])
	if userID == "" {
		userID = strconv.Itoa(int(uid))
	}
	if userID == "" {
		return models.Punch{}, fmt.Errorf("empty userId: %w", ErrTruncated)
	}
	return models.Punch{
		UserID:    userID,
		Timestamp: DecodeTimestamp(binary.LittleEndian.Uint32(rec[4:8])).Time(),
		Status:    rec[8],
		Punch:     rec[9],
	}, nil
}

// EncodeAttendanceRecordNew packs a punch into the 40-byte layout. Used by
// the fake device in tests; the uid word at offset 32 is left zero.
func EncodeAttendanceRecordNew(p models.Punch) []byte {
	rec := make([]byte, RecordSizeNew)
	binary.LittleEndian.PutUint16(rec[0:2], p.OderID)
	binary.LittleEndian.PutUint16(rec[2:4], p.OderID2)
	binary.LittleEndian.PutUint16(rec[4:6], p.OderID3)
	copy(rec[6:15], p.UserID)
	binary.LittleEndian.PutUint32(rec[24:28], EncodeTimestamp(p.Timestamp))
	rec[28] = p.Status
	rec[29] = p.Punch
	return rec
}

// EncodeAttendanceRecordOld packs a punch into the 16-byte layout.
func EncodeAttendanceRecordOld(uid uint16, p models.Punch) []byte {
	rec := make([]byte, RecordSizeOld)
	binary.LittleEndian.PutUint16(rec[0:2], uid)
	copy(rec[2:6], p.UserID)
	binary.LittleEndian.PutUint32(rec[4:8], EncodeTimestamp(p.Timestamp))
	rec[8] = p.Status
	rec[9] = p.Punch
	return rec
}

// User is one row of the device's user table.
type User struct {
	UID    uint16 `json:"uid"`
	Role   uint8  `json:"role"`
	Name   string `json:"name"`
	UserID string `json:"userId"`
	Card   uint32 `json:"card"`
}

// ParseUsers splits a GET_USERS buffer into 72-byte user records: u16 uid,
// role byte, 8-byte password, 24-byte name at 11, u32 card at 35, 9-byte
// userId string at 48.
func ParseUsers(buf []byte) []User {
	users := make([]User, 0, len(buf)/userRecordSize)
	for off := 0; off+userRecordSize <= len(buf); off += userRecordSize {
		rec := buf[off : off+userRecordSize]
		u := User{
			UID:    binary.LittleEndian.Uint16(rec[0:2]),
			Role:   rec[2],
			Name:   cleanString(rec[11:35]),
			Card:   binary.LittleEndian.Uint32(rec[35:39]),
			UserID: cleanString(rec[48:57]),
		}
		if u.UserID == "" {
			u.UserID = strconv.Itoa(int(u.UID))
		}
		users = append(users, u)
	}
	return users
}
