package transport

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ParseIEEE parses "DD:DD:DD:DD:DD:DD:DD:DD", "0xDDDDDDDDDDDDDDDD" or
// "DDDDDDDDDDDDDDDD" into [8]byte.
func ParseIEEE(s string) ([8]byte, error) {
	var result [8]byte
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	s = strings.ReplaceAll(s, ":", "")
	b, err := hex.DecodeString(s)
	if err != nil {
		return result, fmt.Errorf("parse ieee address: %w", err)
	}
	if len(b) != 8 {
		return result, fmt.Errorf("ieee address must be 8 bytes, got %d", len(b))
	}
	copy(result[:], b)
	return result, nil
}

// FormatIEEE renders an address the way zigbee2mqtt does: 0x followed by 16
// lowercase hex digits.
func FormatIEEE(addr [8]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}
