package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGTFSTime(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"00:00:00", 0},
		{"08:00:00", 28800},
		{" 23:50:00", 85800},
		{"25:10:00", 90600},
	}

	for _, tt := range tests {
		got, err := ParseGTFSTime(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseGTFSTimeErrors(t *testing.T) {
	_, err := ParseGTFSTime("")
	assert.ErrorIs(t, err, ErrEmptyTime)

	for _, in := range []string{"8:00", "aa:00:00", "08:61:00", "08:00:75"} {
		_, err := ParseGTFSTime(in)
		assert.Error(t, err, in)
	}
}

func TestParseHexColor(t *testing.T) {
	assert.Equal(t, int32(0xBF0D3E), ParseHexColor("BF0D3E"))
	assert.Equal(t, int32(0x00B0F0), ParseHexColor("#00b0f0"))
	assert.Equal(t, int32(0), ParseHexColor(""))
	assert.Equal(t, int32(0), ParseHexColor("zzzzzz"))
	assert.Equal(t, int32(0), ParseHexColor("FFF"))
}

func TestStopIsStation(t *testing.T) {
	assert.True(t, (&Stop{LocationType: LocationTypeStation}).IsStation())
	assert.False(t, (&Stop{LocationType: 0}).IsStation())
}
