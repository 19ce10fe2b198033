package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrEmptyTime is returned by ParseGTFSTime for a blank field.
var ErrEmptyTime = errors.New("empty GTFS time")

// ParseGTFSTime converts "HH:MM:SS" into seconds since midnight.
// Hours past 23 are kept as-is, so "25:10:00" is 90600.
func ParseGTFSTime(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, ErrEmptyTime
	}

	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid time format %q", value)
	}

	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hours in %q: %w", value, err)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minutes in %q: %w", value, err)
	}
	seconds, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, fmt.Errorf("invalid seconds in %q: %w", value, err)
	}
	if hours < 0 || minutes < 0 || minutes > 59 || seconds < 0 || seconds > 59 {
		return 0, fmt.Errorf("time out of range %q", value)
	}

	return int64(hours*3600 + minutes*60 + seconds), nil
}

// ParseHexColor packs a GTFS "RRGGBB" color into an RGB integer. Blank or
// malformed values yield 0.
func ParseHexColor(value string) int32 {
	value = strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(value) != 6 {
		return 0
	}
	rgb, err := strconv.ParseUint(value, 16, 32)
	if err != nil {
		return 0
	}
	return int32(rgb)
}
