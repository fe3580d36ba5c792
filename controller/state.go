package controller

import "fmt"

// State aggregates everything needed to describe the emulated
// controller's current position: identity, buttons, both sticks, and the
// IMU accumulator. It is constructed either with or without SPI flash
// calibration data; without it, stick scale/center/direction operations
// fail with ErrNoCalibration.
type State struct {
	Kind    Kind
	Buttons ButtonState
	Left    StickState
	Right   StickState
	IMU     IMUAccumulator

	spi *SpiFlashImage
}

// New returns a controller state for kind with no calibration attached.
func New(kind Kind) (*State, error) {
	if _, err := kind.ID(); err != nil {
		return nil, err
	}
	return &State{
		Kind:    kind,
		Buttons: NewButtonState(kind),
		Left:    NewStickState(),
		Right:   NewStickState(),
	}, nil
}

// NewWithFlash returns a controller state for kind with calibration
// sourced from spi, with both sticks reset to their calibrated center.
func NewWithFlash(kind Kind, spi *SpiFlashImage) (*State, error) {
	st, err := New(kind)
	if err != nil {
		return nil, err
	}
	st.spi = spi
	st.Left = st.Left.WithCalibration(spi.LeftStickCalibration())
	st.Right = st.Right.WithCalibration(spi.RightStickCalibration())
	return st, nil
}

// Flash returns the attached SPI flash image, or nil if none was attached.
func (s *State) Flash() *SpiFlashImage { return s.spi }

// Clone returns a value copy of the state suitable for a snapshot read
// under a lock (sticks/buttons are plain values; the flash pointer is
// shared since it is treated as immutable after construction).
func (s *State) Clone() State {
	return *s
}

// CheckKind verifies that s.Kind matches want, returning an Invariant-style
// error if not. Used by the protocol engine before synthesizing a report.
func (s *State) CheckKind(want Kind) error {
	if s.Kind != want {
		return fmt.Errorf("controller: state kind %s disagrees with engine kind %s", s.Kind, want)
	}
	return nil
}
