package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	core "movesqlize/core"
)

// ParseAddressHex decodes a "0x"-optional hex string into an Address,
// zero-padding on the left if it's shorter than AddressLength.
func ParseAddressHex(s string) (core.Address, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return core.Address{}, fmt.Errorf("bad address hex: %w", err)
	}
	if len(b) < core.AddressLength {
		padded := make([]byte, core.AddressLength)
		copy(padded[core.AddressLength-len(b):], b)
		b = padded
	}
	return core.NewAddress(b)
}

func hexDecode(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}
