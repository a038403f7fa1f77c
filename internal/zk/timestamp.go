// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

package zk

import "time"

// Timestamps on the wire are a single u32 counting from year 2000 with
// every month fixed at 31 days. The codec keeps that calendar explicit:
// Timestamp holds the raw field values the device sent, so packing and
// unpacking are exact inverses over the whole u32 domain, including day
// numbers a real calendar does not have (a device never emits those, but
// the codec must not silently rewrite them either).

// Timestamp is a decoded wall-clock reading in the device's base-2000,
// 31-day-month calendar.
type Timestamp struct {
	Year   int
	Month  int // 1..12
	Day    int // 1..31 regardless of month
	Hour   int
	Minute int
	Second int
}

// DecodeTimestamp unpacks a wire timestamp field by field.
func DecodeTimestamp(t uint32) Timestamp {
	var ts Timestamp
	ts.Second = int(t % 60)
	t /= 60
	ts.Minute = int(t % 60)
	t /= 60
	ts.Hour = int(t % 24)
	t /= 24
	ts.Day = int(t%31) + 1
	t /= 31
	ts.Month = int(t%12) + 1
	ts.Year = int(t/12) + 2000
	return ts
}

// Encode packs the fields back into the wire encoding. It is the exact
// inverse of DecodeTimestamp for every u32 value.
func (ts Timestamp) Encode() uint32 {
	packed := uint32(ts.Year-2000)*12 + uint32(ts.Month-1)
	packed = packed*31 + uint32(ts.Day-1)
	packed = packed*24 + uint32(ts.Hour)
	packed = packed*60 + uint32(ts.Minute)
	packed = packed*60 + uint32(ts.Second)
	return packed
}

// Time converts the wall-clock reading to a time.Time. The digits are
// rebuilt with time.UTC, so the stored ISO form shows the clock the device
// showed, independent of the host timezone. Day numbers past the real
// month length (never produced by a device clock) normalize forward per
// time.Date; Valid reports whether that happens.
func (ts Timestamp) Time() time.Time {
	return time.Date(ts.Year, time.Month(ts.Month), ts.Day, ts.Hour, ts.Minute, ts.Second, 0, time.UTC)
}

// Valid reports whether the fields name a real calendar instant, i.e.
// whether Time() preserves them exactly.
func (ts Timestamp) Valid() bool {
	t := ts.Time()
	return t.Year() == ts.Year && int(t.Month()) == ts.Month && t.Day() == ts.Day
}

// TimestampOf captures a time.Time as a wall-clock reading in UTC.
func TimestampOf(t time.Time) Timestamp {
	t = t.UTC()
	return Timestamp{
		Year:   t.Year(),
		Month:  int(t.Month()),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
	}
}

// EncodeTimestamp packs a time.Time into the wire encoding.
func EncodeTimestamp(t time.Time) uint32 {
	return TimestampOf(t).Encode()
}
