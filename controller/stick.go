package controller

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoCalibration is returned by stick operations that require
// calibration data (scale, center-ness, direction helpers) when the
// controller state was constructed without an SPI flash image.
var ErrNoCalibration = errors.New("controller: no calibration available")

// StickCalibration holds the six 12-bit fields parsed out of a stick's SPI
// flash calibration bytes.
type StickCalibration struct {
	HMaxAbove, VMaxAbove uint16
	HCenter, VCenter     uint16
	HMaxBelow, VMaxBelow uint16
}

// StickCalibrationFromLeftBytes parses a 9-byte left-stick calibration
// block. Field order: h/v max-above, h/v center, h/v max-below.
func StickCalibrationFromLeftBytes(b [9]byte) StickCalibration {
	return StickCalibration{
		HMaxAbove: uint16(b[1]&0x0F)<<8 | uint16(b[0]),
		VMaxAbove: uint16(b[2])<<4 | uint16(b[1]>>4),
		HCenter:   uint16(b[4]&0x0F)<<8 | uint16(b[3]),
		VCenter:   uint16(b[5])<<4 | uint16(b[4]>>4),
		HMaxBelow: uint16(b[7]&0x0F)<<8 | uint16(b[6]),
		VMaxBelow: uint16(b[8])<<4 | uint16(b[7]>>4),
	}
}

// StickCalibrationFromRightBytes parses a 9-byte right-stick calibration
// block. Field order: h/v center, h/v max-below, h/v max-above.
func StickCalibrationFromRightBytes(b [9]byte) StickCalibration {
	return StickCalibration{
		HCenter:   uint16(b[1]&0x0F)<<8 | uint16(b[0]),
		VCenter:   uint16(b[2])<<4 | uint16(b[1]>>4),
		HMaxBelow: uint16(b[4]&0x0F)<<8 | uint16(b[3]),
		VMaxBelow: uint16(b[5])<<4 | uint16(b[4]>>4),
		HMaxAbove: uint16(b[7]&0x0F)<<8 | uint16(b[6]),
		VMaxAbove: uint16(b[8])<<4 | uint16(b[7]>>4),
	}
}

// StickState holds a 12-bit horizontal/vertical pair. Values are always
// < 0x1000.
type StickState struct {
	h, v uint16
	cal  *StickCalibration // nil when no calibration is available
}

// NewStickState returns a stick state centered at zero with no
// calibration attached.
func NewStickState() StickState {
	return StickState{}
}

// WithCalibration returns a copy reset to the calibration's center.
func (s StickState) WithCalibration(cal StickCalibration) StickState {
	s.cal = &cal
	s.h = cal.HCenter
	s.v = cal.VCenter
	return s
}

// WithRaw parses a 3-byte packed stick reading, keeping any calibration
// already attached.
func (s StickState) WithRaw(b [3]byte) StickState {
	s.h = uint16(b[0]) | (uint16(b[1]&0x0F) << 8)
	s.v = uint16(b[1]>>4) | (uint16(b[2]) << 4)
	return s
}

// HV returns the raw horizontal/vertical pair.
func (s StickState) HV() (h, v uint16) { return s.h, s.v }

// Bytes serializes the stick state to its 3-byte packed wire form.
func (s StickState) Bytes() [3]byte {
	return [3]byte{
		byte(s.h & 0xFF),
		byte(s.h>>8) | byte(s.v&0x0F)<<4,
		byte(s.v >> 4),
	}
}

// IsCenter reports whether both axes lie within radius of their
// calibrated centers.
func (s StickState) IsCenter(radius uint16) (bool, error) {
	if s.cal == nil {
		return false, ErrNoCalibration
	}
	withinH := absDiffU16(s.h, s.cal.HCenter) <= radius
	withinV := absDiffU16(s.v, s.cal.VCenter) <= radius
	return withinH && withinV, nil
}

// ResetToCenter moves both axes to the calibrated center.
func (s *StickState) ResetToCenter() error {
	if s.cal == nil {
		return ErrNoCalibration
	}
	s.h = s.cal.HCenter
	s.v = s.cal.VCenter
	return nil
}

// SetUp, SetDown, SetLeft, SetRight move the stick to its calibrated
// extreme in that direction, leaving the other axis at its calibrated
// center.
func (s *StickState) SetUp() error    { return s.setAxisExtreme(false, true) }
func (s *StickState) SetDown() error  { return s.setAxisExtreme(false, false) }
func (s *StickState) SetRight() error { return s.setAxisExtreme(true, true) }
func (s *StickState) SetLeft() error  { return s.setAxisExtreme(true, false) }

func (s *StickState) setAxisExtreme(horizontal, positive bool) error {
	if s.cal == nil {
		return ErrNoCalibration
	}
	if horizontal {
		s.v = s.cal.VCenter
		if positive {
			s.h = s.cal.HCenter + s.cal.HMaxAbove
		} else {
			s.h = s.cal.HCenter - s.cal.HMaxBelow
		}
		return nil
	}
	s.h = s.cal.HCenter
	if positive {
		s.v = s.cal.VCenter + s.cal.VMaxAbove
	} else {
		s.v = s.cal.VCenter - s.cal.VMaxBelow
	}
	return nil
}

// SetHorizontalScale and SetVerticalScale move an axis to a fraction in
// [-1.0, 1.0] of its calibrated travel: positive uses max-above-center,
// negative uses max-below-center. NaN or |scale| > 1 is InvalidScale.
func (s *StickState) SetHorizontalScale(scale float64) error {
	v, err := s.scaledValue(scale, s.calOrNil(), true)
	if err != nil {
		return err
	}
	s.h = v
	return nil
}

func (s *StickState) SetVerticalScale(scale float64) error {
	v, err := s.scaledValue(scale, s.calOrNil(), false)
	if err != nil {
		return err
	}
	s.v = v
	return nil
}

func (s StickState) calOrNil() *StickCalibration { return s.cal }

func (s StickState) scaledValue(scale float64, cal *StickCalibration, horizontal bool) (uint16, error) {
	if cal == nil {
		return 0, ErrNoCalibration
	}
	if math.IsNaN(scale) || math.Abs(scale) > 1.0 {
		return 0, fmt.Errorf("controller: invalid stick scale %v", scale)
	}
	var center, maxAbove, maxBelow uint16
	if horizontal {
		center, maxAbove, maxBelow = cal.HCenter, cal.HMaxAbove, cal.HMaxBelow
	} else {
		center, maxAbove, maxBelow = cal.VCenter, cal.VMaxAbove, cal.VMaxBelow
	}
	if scale >= 0 {
		return uint16(int32(center) + int32(math.Round(float64(maxAbove)*scale))), nil
	}
	return uint16(int32(center) - int32(math.Round(float64(maxBelow)*(-scale)))), nil
}

func absDiffU16(a, b uint16) uint16 {
	if a > b {
		return a - b
	}
	return b - a
}
