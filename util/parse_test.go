package util_test

import (
	"testing"

	"github.com/downfa11-org/logship/util"
)

func TestParseInt(t *testing.T) {
	tests := []struct {
		input    string
		fallback int
		want     int
	}{
		{"123", 0, 123},
		{"0", 99, 0},
		{"-5", 0, -5},
		{" 19288 ", 0, 19288},
		{"abc", 42, 42},
		{"", 7, 7},
		{"   ", 8, 8},
	}

	for _, tt := range tests {
		got := util.ParseInt(tt.input, tt.fallback)
		if got != tt.want {
			t.Errorf("ParseInt(%q, %d) = %d; want %d", tt.input, tt.fallback, got, tt.want)
		}
	}
}

func TestParseInt64(t *testing.T) {
	if got := util.ParseInt64("209715200", 0); got != 209715200 {
		t.Errorf("ParseInt64 = %d; want 209715200", got)
	}
	if got := util.ParseInt64("x", 5); got != 5 {
		t.Errorf("ParseInt64 fallback = %d; want 5", got)
	}
}

func TestParseUint32(t *testing.T) {
	tests := []struct {
		input    string
		fallback uint32
		want     uint32
	}{
		{"2", 0, 2},
		{"4294967295", 0, 4294967295},
		{"4294967296", 1, 1},
		{"-1", 3, 3},
	}

	for _, tt := range tests {
		if got := util.ParseUint32(tt.input, tt.fallback); got != tt.want {
			t.Errorf("ParseUint32(%q, %d) = %d; want %d", tt.input, tt.fallback, got, tt.want)
		}
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		input    string
		fallback bool
		want     bool
	}{
		{"true", false, true},
		{"false", true, false},
		{"1", false, true},
		{"0", true, false},
		{"t", false, true},
		{"f", true, false},
		{"yes", false, false},
		{"", true, true},
		{"   ", false, false},
	}

	for _, tt := range tests {
		got := util.ParseBool(tt.input, tt.fallback)
		if got != tt.want {
			t.Errorf("ParseBool(%q, %v) = %v; want %v", tt.input, tt.fallback, got, tt.want)
		}
	}
}
