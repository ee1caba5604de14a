package util

import (
	"strconv"
	"strings"
)

func ParseInt(str string, fallback int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(str)); err == nil {
		return v
	}
	return fallback
}

func ParseInt64(str string, fallback int64) int64 {
	if v, err := strconv.ParseInt(strings.TrimSpace(str), 10, 64); err == nil {
		return v
	}
	return fallback
}

func ParseUint32(str string, fallback uint32) uint32 {
	if v, err := strconv.ParseUint(strings.TrimSpace(str), 10, 32); err == nil {
		return uint32(v)
	}
	return fallback
}

func ParseBool(str string, fallback bool) bool {
	if v, err := strconv.ParseBool(strings.TrimSpace(str)); err == nil {
		return v
	}
	return fallback
}
