// Package timeutil converts the time arguments accepted by the datapoints
// API (absolute milliseconds, time.Time, "now", "<n><unit>-ago") and the
// granularity strings used by aggregates ("1m", "10d", "2hour").
package timeutil

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidTimestamp   = errors.New("invalid timestamp")
	ErrInvalidGranularity = errors.New("invalid granularity")
)

const (
	msSecond = int64(1000)
	msMinute = 60 * msSecond
	msHour   = 60 * msMinute
	msDay    = 24 * msHour
	msWeek   = 7 * msDay
)

var unitMs = map[string]int64{
	"s": msSecond, "sec": msSecond, "second": msSecond,
	"m": msMinute, "t": msMinute, "min": msMinute, "minute": msMinute,
	"h": msHour, "hour": msHour,
	"d": msDay, "day": msDay,
	"w": msWeek, "week": msWeek,
}

var (
	agoPattern         = regexp.MustCompile(`^(\d+)([a-z]+)-ago$`)
	granularityPattern = regexp.MustCompile(`^(\d*)([a-z]+)$`)
)

// now is swapped in tests.
var now = time.Now

// TimestampToMs converts v to milliseconds since epoch. Accepted forms are
// integer milliseconds, time.Time, "now" and "<n><unit>-ago".
func TimestampToMs(v any) (int64, error) {
	var ms int64
	switch t := v.(type) {
	case int:
		ms = int64(t)
	case int64:
		ms = t
	case float64:
		ms = int64(t)
	case time.Time:
		ms = t.UnixMilli()
	case string:
		parsed, err := parseRelative(t)
		if err != nil {
			return 0, err
		}
		ms = parsed
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidTimestamp, v)
	}
	if ms < 0 {
		return 0, fmt.Errorf("%w: %d is before epoch", ErrInvalidTimestamp, ms)
	}
	return ms, nil
}

func parseRelative(s string) (int64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	current := now().UnixMilli()
	if s == "now" {
		return current, nil
	}
	m := agoPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	unit, ok := unitMs[m[2]]
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit in %q", ErrInvalidTimestamp, s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidTimestamp, s, err)
	}
	return current - n*unit, nil
}

func parseGranularity(g string) (int64, int64, error) {
	m := granularityPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(g)))
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidGranularity, g)
	}
	unit, ok := unitMs[m[2]]
	if !ok {
		return 0, 0, fmt.Errorf("%w: unknown unit in %q", ErrInvalidGranularity, g)
	}
	n := int64(1)
	if m[1] != "" {
		parsed, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || parsed < 1 {
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidGranularity, g)
		}
		n = parsed
	}
	return n, unit, nil
}

// GranularityToMs returns the length of one granularity bucket.
func GranularityToMs(g string) (int64, error) {
	n, unit, err := parseGranularity(g)
	if err != nil {
		return 0, err
	}
	return n * unit, nil
}

// GranularityUnitToMs returns the length of the granularity's unit, ignoring
// the multiplier ("10d" -> one day).
func GranularityUnitToMs(g string) (int64, error) {
	_, unit, err := parseGranularity(g)
	return unit, err
}

// AlignToGranularityUnit rounds ts up to the next whole granularity unit.
func AlignToGranularityUnit(ts int64, g string) (int64, error) {
	unit, err := GranularityUnitToMs(g)
	if err != nil {
		return 0, err
	}
	if ts%unit == 0 {
		return ts, nil
	}
	return ts - ts%unit + unit, nil
}

// DurationToGranularity picks the coarsest unit that keeps the multiplier
// reasonable, rounding up: 90s -> "2m", 36h -> "2d".
func DurationToGranularity(d time.Duration) string {
	steps := []struct {
		unit string
		next float64
	}{{"s", 60}, {"m", 60}, {"h", 24}, {"d", math.Inf(1)}}

	n := d.Seconds()
	i := 0
	for n > steps[i].next {
		n /= steps[i].next
		i++
	}
	// 1e-6 keeps 1.0000001 from rounding up to 2
	return fmt.Sprintf("%d%s", int64(math.Ceil(n-1e-6)), steps[i].unit)
}
