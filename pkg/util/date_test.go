package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestAlignFromTo(t *testing.T) {
	from := time.Date(2024, 10, 10, 10, 13, 27, 0, time.UTC)
	to := time.Date(2024, 10, 10, 18, 47, 1, 0, time.UTC)

	gotFrom, gotTo := AlignFromTo(from, to, "15m")
	if gotFrom.Minute() != 0 && gotFrom.Minute()%15 != 0 {
		t.Fatalf("from not on 15m grid: %v", gotFrom)
	}
	if !gotFrom.Equal(time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected from %v", gotFrom)
	}
	if !gotTo.Equal(time.Date(2024, 10, 10, 18, 45, 0, 0, time.UTC)) {
		t.Fatalf("unexpected to %v", gotTo)
	}

	gotFrom, _ = AlignFromTo(from, to, "1d")
	if !gotFrom.Equal(time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected day truncation %v", gotFrom)
	}
}

func TestDayKey(t *testing.T) {
	ts := time.Date(2024, 3, 7, 23, 59, 0, 0, time.UTC)
	if got := DayKey(ts); got != "20240307" {
		t.Fatalf("unexpected day key %s", got)
	}
}
