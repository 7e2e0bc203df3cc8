package core

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// AddressLength is fixed at build time; spec allows 16 or 32 bytes, this
// repo picks the wider of the two so addresses never need truncation when
// a module happens to target a Diem-mainnet-sized chain.
const AddressLength = 32

// Address is a fixed-width account identifier, compared byte-for-byte.
type Address [AddressLength]byte

// AddressZero is the all-zero address, used for the genesis account and as
// a sentinel in tests.
var AddressZero = Address{}

// NewAddress copies b into a fixed-width Address. It errors if len(b) !=
// AddressLength — callers that decode from a self-describing wire format
// (BCS addresses are always exactly AddressLength bytes) should treat a
// mismatch as corruption, not silently truncate or zero-pad.
func NewAddress(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLength {
		return a, fmt.Errorf("address: expected %d bytes, got %d", AddressLength, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// Bytes returns the raw address bytes.
func (a Address) Bytes() []byte {
	return a[:]
}

// Hex renders the canonical lowercase hex form, "0x"-prefixed.
func (a Address) Hex() string {
	return hexutil.Encode(a[:])
}

// Short renders the address as lowercase hex with leading zero digits
// stripped ("0" for the zero address), for use in
// contexts where brevity is required (e.g. table names).
func (a Address) Short() string {
	s := strings.TrimLeft(hex.EncodeToString(a[:]), "0")
	if s == "" {
		return "0"
	}
	return s
}

func (a Address) String() string {
	return a.Hex()
}
