package controller

import "fmt"

// ButtonKey identifies a single button bit in the 3-byte button status
// block (offsets 4..7 of an input report). See spec §6 for the bit table.
type ButtonKey uint8

const (
	// Byte 4
	Y ButtonKey = iota
	X
	B
	A
	RSR // SR on the right Joy-Con
	RSL // SL on the right Joy-Con
	R
	ZR
	// Byte 5
	Minus
	Plus
	RStick
	LStick
	Home
	Capture
	// Byte 6
	Down
	Up
	Right
	Left
	LSR // SR on the left Joy-Con
	LSL // SL on the left Joy-Con
	L
	ZL
)

type bitLoc struct {
	byteIdx int
	bit     uint8
}

var buttonBits = map[ButtonKey]bitLoc{
	Y: {0, 0}, X: {0, 1}, B: {0, 2}, A: {0, 3}, RSR: {0, 4}, RSL: {0, 5}, R: {0, 6}, ZR: {0, 7},
	Minus: {1, 0}, Plus: {1, 1}, RStick: {1, 2}, LStick: {1, 3}, Home: {1, 4}, Capture: {1, 5},
	Down: {2, 0}, Up: {2, 1}, Right: {2, 2}, Left: {2, 3}, LSR: {2, 4}, LSL: {2, 5}, L: {2, 6}, ZL: {2, 7},
}

// ButtonState holds the 3-byte packed button status.
type ButtonState struct {
	bytes [3]byte
	kind  Kind
}

// NewButtonState returns a zeroed button state scoped to kind; only
// buttons available to kind may be set on it.
func NewButtonState(kind Kind) ButtonState {
	return ButtonState{kind: kind}
}

func (b ButtonState) available(key ButtonKey) error {
	avail, err := b.kind.AvailableButtons()
	if err != nil {
		return err
	}
	for _, k := range avail {
		if k == key {
			return nil
		}
	}
	return fmt.Errorf("controller: button %d not available on %s", key, b.kind)
}

// Set sets or clears a button. It fails if the button is not available to
// the controller kind this state was constructed for.
func (b *ButtonState) Set(key ButtonKey, pressed bool) error {
	if err := b.available(key); err != nil {
		return err
	}
	loc, ok := buttonBits[key]
	if !ok {
		return fmt.Errorf("controller: unknown button %d", key)
	}
	if pressed {
		b.bytes[loc.byteIdx] |= 1 << loc.bit
	} else {
		b.bytes[loc.byteIdx] &^= 1 << loc.bit
	}
	return nil
}

// Get reports whether a button is currently set.
func (b ButtonState) Get(key ButtonKey) bool {
	loc, ok := buttonBits[key]
	if !ok {
		return false
	}
	return b.bytes[loc.byteIdx]&(1<<loc.bit) != 0
}

// Bytes returns the packed 3-byte representation.
func (b ButtonState) Bytes() [3]byte {
	return b.bytes
}

// SetBytes overwrites the packed representation directly (e.g. when
// loading state received from a higher layer).
func (b *ButtonState) SetBytes(raw [3]byte) {
	b.bytes = raw
}
