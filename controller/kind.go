package controller

import "fmt"

// Kind identifies which physical controller is being emulated.
type Kind uint8

const (
	JoyConL Kind = iota + 1
	JoyConR
	ProController
)

// String returns the controller's display name.
func (k Kind) String() string {
	switch k {
	case JoyConL:
		return "Joy-Con (L)"
	case JoyConR:
		return "Joy-Con (R)"
	case ProController:
		return "Pro Controller"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ID returns the controller identifier byte used in device-info replies.
func (k Kind) ID() (byte, error) {
	switch k {
	case JoyConL:
		return 0x01, nil
	case JoyConR:
		return 0x02, nil
	case ProController:
		return 0x03, nil
	default:
		return 0, fmt.Errorf("controller: unknown kind %d", uint8(k))
	}
}

// ConnectionInfo returns the connection-info byte used in device-info
// replies.
func (k Kind) ConnectionInfo() (byte, error) {
	switch k {
	case JoyConL, JoyConR:
		return 0x0E, nil
	case ProController:
		return 0x00, nil
	default:
		return 0, fmt.Errorf("controller: unknown kind %d", uint8(k))
	}
}

// ClosePairingMask returns the big-endian 32-bit mask applied to the
// zero-prefixed button bytes (4..7) of an outbound input report to detect
// when the console has finished pairing. See DESIGN.md "Close-pairing
// masks" for the reasoning behind these values: the original constant
// table was not present in the retrieved reference material, so this is a
// documented implementation decision, not a guess at unavailable intent.
func (k Kind) ClosePairingMask() (uint32, error) {
	switch k {
	case JoyConL:
		// Byte 6 bit .6 (L shoulder), at bit offset 0 within the 32-bit word.
		return 0x00000040, nil
	case JoyConR:
		// Byte 4 bit .6 (R shoulder), at bit offset 16 within the 32-bit word.
		return 0x00400000, nil
	case ProController:
		return 0x00400040, nil
	default:
		return 0, fmt.Errorf("controller: unknown kind %d", uint8(k))
	}
}

// AvailableButtons returns the set of buttons this kind of controller can
// report. Setting a button outside this set is an error.
func (k Kind) AvailableButtons() ([]ButtonKey, error) {
	switch k {
	case ProController:
		return []ButtonKey{
			Y, X, B, A, R, ZR,
			Minus, Plus, RStick, LStick, Home, Capture,
			Down, Up, Right, Left, L, ZL,
		}, nil
	case JoyConR:
		return []ButtonKey{
			Y, X, B, A, RSR, RSL, R, ZR,
			Plus, RStick, Home,
		}, nil
	case JoyConL:
		return []ButtonKey{
			Down, Up, Right, Left, LSR, LSL, L, ZL,
			Minus, LStick, Capture,
		}, nil
	default:
		return nil, fmt.Errorf("controller: unknown kind %d", uint8(k))
	}
}
