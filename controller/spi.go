package controller

// SpiFlashSize is the size of the emulated SPI flash image.
const SpiFlashSize = 0x80000

var defaultLeftStickFactory = [9]byte{0x00, 0x07, 0x70, 0x00, 0x08, 0x80, 0x00, 0x07, 0x70}
var defaultRightStickFactory = [9]byte{0x00, 0x08, 0x80, 0x00, 0x07, 0x70, 0x00, 0x07, 0x70}

const (
	leftStickFactoryOffset  = 0x603D
	rightStickFactoryOffset = 0x6046
	leftStickUserOffset     = 0x8010
	rightStickUserOffset    = 0x801B
	userCalibrationMagicLo  = 0xB2
	userCalibrationMagicHi  = 0xA1
)

// SpiFlashImage models the controller's SPI flash: all bytes are 0xFF
// except the factory calibration regions, which are initialized to fixed
// defaults. User calibration overrides the factory region only when the
// corresponding magic bytes are present.
type SpiFlashImage struct {
	data [SpiFlashSize]byte
}

// NewSpiFlashImage returns a flash image initialized per spec: 0xFF
// everywhere, with the factory stick calibration regions populated.
func NewSpiFlashImage() *SpiFlashImage {
	img := &SpiFlashImage{}
	for i := range img.data {
		img.data[i] = 0xFF
	}
	copy(img.data[leftStickFactoryOffset:], defaultLeftStickFactory[:])
	copy(img.data[rightStickFactoryOffset:], defaultRightStickFactory[:])
	return img
}

// Read returns a copy of size bytes starting at offset. offset and size
// come straight off the wire from an 0x10 subcommand, so any region lying
// outside the image (whole or in part) is treated as all-0xFF rather than
// trusted to fit.
func (s *SpiFlashImage) Read(offset uint32, size int) []byte {
	out := make([]byte, size)
	for i := range out {
		out[i] = 0xFF
	}
	if size <= 0 || offset >= SpiFlashSize {
		return out
	}
	copy(out, s.data[offset:])
	return out
}

// Write overwrites bytes starting at offset, silently truncating at the end
// of the image rather than panicking on an out-of-range offset.
func (s *SpiFlashImage) Write(offset uint32, data []byte) {
	if offset >= SpiFlashSize {
		return
	}
	copy(s.data[offset:], data)
}

// LeftStickCalibration returns the left stick's calibration, preferring
// user calibration when its magic bytes are present.
func (s *SpiFlashImage) LeftStickCalibration() StickCalibration {
	if s.data[leftStickUserOffset] == userCalibrationMagicLo && s.data[leftStickUserOffset+1] == userCalibrationMagicHi {
		var b [9]byte
		copy(b[:], s.data[leftStickUserOffset+2:leftStickUserOffset+11])
		return StickCalibrationFromLeftBytes(b)
	}
	var b [9]byte
	copy(b[:], s.data[leftStickFactoryOffset:leftStickFactoryOffset+9])
	return StickCalibrationFromLeftBytes(b)
}

// RightStickCalibration returns the right stick's calibration, preferring
// user calibration when its magic bytes are present.
func (s *SpiFlashImage) RightStickCalibration() StickCalibration {
	if s.data[rightStickUserOffset] == userCalibrationMagicLo && s.data[rightStickUserOffset+1] == userCalibrationMagicHi {
		var b [9]byte
		copy(b[:], s.data[rightStickUserOffset+2:rightStickUserOffset+11])
		return StickCalibrationFromRightBytes(b)
	}
	var b [9]byte
	copy(b[:], s.data[rightStickFactoryOffset:rightStickFactoryOffset+9])
	return StickCalibrationFromRightBytes(b)
}
