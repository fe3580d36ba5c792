// Package controller models the emulated Switch controller: its identity,
// button/stick/IMU state, and factory/user calibration data.
package controller

import (
	"fmt"
	"strconv"
	"strings"
)

// Address is a 6-byte Bluetooth device address. Its display form is
// colon-hex big-endian; the wire form used on sockets is little-endian
// (reversed). Conversion between the two is centralized here so no other
// package needs to reason about byte order.
type Address [6]byte

// AnyAddress is the zero address, 00:00:00:00:00:00.
var AnyAddress = Address{}

// ParseAddress parses a colon-hex big-endian address such as
// "94:58:CB:00:11:22".
func ParseAddress(s string) (Address, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return Address{}, fmt.Errorf("controller: invalid address %q", s)
	}
	var addr Address
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return Address{}, fmt.Errorf("controller: invalid address %q: %w", s, err)
		}
		addr[i] = byte(v)
	}
	return addr, nil
}

// String renders the address in colon-hex big-endian notation.
func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// LittleEndianBytes returns the 6-byte wire (little-endian) form used by
// the socket layer: the reverse of the display byte order.
func (a Address) LittleEndianBytes() [6]byte {
	var out [6]byte
	for i := range a {
		out[i] = a[len(a)-1-i]
	}
	return out
}

// AddressFromLittleEndian builds an Address from its little-endian wire
// form, as produced by the socket layer.
func AddressFromLittleEndian(b [6]byte) Address {
	var a Address
	for i := range b {
		a[i] = b[len(b)-1-i]
	}
	return a
}
