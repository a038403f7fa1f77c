// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

package zk

import (
	"testing"
	"time"
)

func TestDecodeTimestampKnownValue(t *testing.T) {
	// 0x2AF4B1E0 unpacks to 2022-06-03 04:43:12 in the base-2000,
	// 31-day-month calendar
	ts := DecodeTimestamp(0x2AF4B1E0)
	want := Timestamp{Year: 2022, Month: 6, Day: 3, Hour: 4, Minute: 43, Second: 12}
	if ts != want {
		t.Fatalf("expected %+v, got %+v", want, ts)
	}
	if !ts.Valid() {
		t.Fatal("expected a valid calendar instant")
	}
	if got := ts.Time(); !got.Equal(time.Date(2022, time.June, 3, 4, 43, 12, 0, time.UTC)) {
		t.Fatalf("unexpected instant %v", got)
	}
}

func TestTimestampEpoch(t *testing.T) {
	ts := DecodeTimestamp(0)
	want := Timestamp{Year: 2000, Month: 1, Day: 1}
	if ts != want {
		t.Fatalf("expected %+v, got %+v", want, ts)
	}
	if EncodeTimestamp(time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)) != 0 {
		t.Fatal("expected the epoch to pack to 0")
	}
}

func TestTimestampRoundTripThroughTime(t *testing.T) {
	tests := []time.Time{
		time.Date(2000, time.January, 1, 0, 0, 1, 0, time.UTC),
		time.Date(2005, time.February, 28, 23, 59, 59, 0, time.UTC),
		time.Date(2019, time.December, 31, 12, 30, 30, 0, time.UTC),
		time.Date(2024, time.July, 15, 8, 1, 2, 0, time.UTC),
		time.Date(2063, time.March, 31, 6, 6, 6, 0, time.UTC),
	}
	for _, want := range tests {
		packed := EncodeTimestamp(want)
		got := DecodeTimestamp(packed).Time()
		if !got.Equal(want) {
			t.Errorf("%v: round-tripped to %v (packed %d)", want, got, packed)
		}
	}
}

func TestTimestampRoundTripSweep(t *testing.T) {
	// every packed value in one full device-calendar year must survive
	// decode/encode unchanged, including tuples like Feb 31 that only
	// exist in the 31-day-month calendar
	const limit = uint32(12 * 31 * 24 * 60 * 60)
	for packed := uint32(0); packed < limit; packed++ {
		if got := DecodeTimestamp(packed).Encode(); got != packed {
			t.Fatalf("packed %d decoded to %+v, re-encoded to %d", packed, DecodeTimestamp(packed), got)
		}
	}
}

func TestTimestampRoundTripUpperDomain(t *testing.T) {
	// sample the rest of the u32 domain in coarse coprime steps
	for packed := uint32(0); packed < 0xFFFF0000; packed += 16777213 {
		if got := DecodeTimestamp(packed).Encode(); got != packed {
			t.Fatalf("packed %d decoded to %+v, re-encoded to %d", packed, DecodeTimestamp(packed), got)
		}
	}
}

func TestTimestampValid(t *testing.T) {
	tests := []struct {
		ts    Timestamp
		valid bool
	}{
		{Timestamp{Year: 2024, Month: 2, Day: 29}, true},
		{Timestamp{Year: 2023, Month: 2, Day: 29}, false},
		{Timestamp{Year: 2022, Month: 2, Day: 31}, false},
		{Timestamp{Year: 2022, Month: 4, Day: 31}, false},
		{Timestamp{Year: 2022, Month: 12, Day: 31}, true},
	}
	for _, tt := range tests {
		if got := tt.ts.Valid(); got != tt.valid {
			t.Errorf("%+v: expected valid=%v, got %v", tt.ts, tt.valid, got)
		}
	}
}
