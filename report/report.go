// Package report implements the bit-exact encoding and decoding of Switch
// controller input and output HID reports.
package report

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// InputReport is a 363-byte buffer representing a HID report sent from
// the emulated controller to the console. Its effective length on the
// wire depends on the report id (see Length).
type InputReport struct {
	buf [363]byte
}

// Input report ids.
const (
	IDDefault         = 0x3F
	IDSubcommandReply = 0x21
	IDIMU             = 0x30
	IDIMUNfcIr        = 0x31
	idIMUNfcIr2       = 0x32
	idIMUNfcIr3       = 0x33
)

// NewInput returns a fresh input report with byte 0 set to the HID input
// prefix.
func NewInput() *InputReport {
	r := &InputReport{}
	r.buf[0] = 0xA1
	return r
}

// Bytes returns the full backing buffer.
func (r *InputReport) Bytes() []byte { return r.buf[:] }

// Length returns the effective wire length for the report's current id.
func Length(id byte) (int, error) {
	switch id {
	case IDDefault, IDSubcommandReply:
		return 51, nil
	case IDIMU:
		return 50, nil
	case IDIMUNfcIr, idIMUNfcIr2, idIMUNfcIr3:
		return 363, nil
	default:
		return 0, fmt.Errorf("report: unknown input report id 0x%02X", id)
	}
}

// NormalizeInputID treats ids 0x32 and 0x33 as 0x31, per the wire format.
func NormalizeInputID(id byte) byte {
	if id == idIMUNfcIr2 || id == idIMUNfcIr3 {
		return IDIMUNfcIr
	}
	return id
}

// SetID writes the report id at offset 1.
func (r *InputReport) SetID(id byte) { r.buf[1] = id }

// ID reads the report id at offset 1.
func (r *InputReport) ID() byte { return r.buf[1] }

// SetTimer writes t mod 256 at offset 2.
func (r *InputReport) SetTimer(t uint64) { r.buf[2] = byte(t % 256) }

// SetMisc writes the fixed battery-full/connected byte at offset 3.
func (r *InputReport) SetMisc() { r.buf[3] = 0x8E }

// SetButtons copies the 3-byte packed button status into offsets 4..7.
func (r *InputReport) SetButtons(b [3]byte) { copy(r.buf[4:7], b[:]) }

// SetAnalogSticks writes the packed left/right stick bytes into 7..13.
// Either may be nil, in which case its 3 bytes are zeroed.
func (r *InputReport) SetAnalogSticks(left, right *[3]byte) {
	if left != nil {
		copy(r.buf[7:10], left[:])
	} else {
		clear(r.buf[7:10])
	}
	if right != nil {
		copy(r.buf[10:13], right[:])
	} else {
		clear(r.buf[10:13])
	}
}

// SetVibratorInput writes the fixed vibrator-input byte at offset 13.
func (r *InputReport) SetVibratorInput() { r.buf[13] = 0x80 }

// SetAck writes the subcommand ack byte at offset 14.
func (r *InputReport) SetAck(ack byte) { r.buf[14] = ack }

// SetResponseSubcommand writes the echoed subcommand id at offset 15.
func (r *InputReport) SetResponseSubcommand(sub byte) { r.buf[15] = sub }

// Set6AxisData zeros the IMU stub region at 14..50. Real IMU measurement
// is out of scope; callers that want to encode a live accumulator should
// write the 36-byte block at offset 14 themselves (see
// controller.IMUAccumulator.EncodeBlock applied to buf[14:50]).
func (r *InputReport) Set6AxisData() { clear(r.buf[14:50]) }

// IMUBlock returns the mutable 36-byte IMU region (offsets 14..50) for
// direct encoding.
func (r *InputReport) IMUBlock() []byte { return r.buf[14:50] }

// ErrOutOfBounds is returned when a payload write would exceed its
// designated region.
var ErrOutOfBounds = errors.New("report: data out of bounds")

// SetIrNfcData copies up to 313 bytes starting at offset 50.
func (r *InputReport) SetIrNfcData(data []byte) error {
	if len(data) > 313 {
		return ErrOutOfBounds
	}
	copy(r.buf[50:50+len(data)], data)
	return nil
}

// Sub0x02DeviceInfo writes the RequestDeviceInfo reply payload at offset
// 16: 2-byte firmware version, controller id, 0x02, 6-byte MAC, 0x01, 0x00.
func (r *InputReport) Sub0x02DeviceInfo(addr [6]byte, fwVersion [2]byte, controllerID byte) {
	off := 16
	copy(r.buf[off:off+2], fwVersion[:])
	r.buf[off+2] = controllerID
	r.buf[off+3] = 0x02
	copy(r.buf[off+4:off+10], addr[:])
	r.buf[off+10] = 0x01
	r.buf[off+11] = 0x00
}

// DefaultFirmwareVersion is the firmware version reported by
// Sub0x02DeviceInfo when the caller has no specific value to report.
var DefaultFirmwareVersion = [2]byte{0x04, 0x00}

// ErrSpiReadTooLarge is returned when a requested SPI flash read size
// exceeds the subcommand's maximum.
var ErrSpiReadTooLarge = errors.New("report: spi flash read size exceeds 0x1D")

// Sub0x10SpiFlashRead writes the SpiFlashRead reply: 4-byte little-endian
// offset, 1-byte size, then the payload, starting at offset 16.
func (r *InputReport) Sub0x10SpiFlashRead(offset uint32, size byte, data []byte) error {
	if size > 0x1D {
		return ErrSpiReadTooLarge
	}
	if len(data) != int(size) {
		return fmt.Errorf("report: spi flash read data length %d does not match size %d", len(data), size)
	}
	off := 16
	binary.LittleEndian.PutUint32(r.buf[off:off+4], offset)
	r.buf[off+4] = size
	copy(r.buf[off+5:off+5+int(size)], data)
	return nil
}

// ElapsedTimeCommand identifies one of the seven elapsed-time slots in a
// TriggerButtonsElapsedTime reply.
type ElapsedTimeCommand int

const (
	ElapsedLeft ElapsedTimeCommand = iota
	ElapsedRight
	ElapsedZLeft
	ElapsedZRight
	ElapsedSLeft
	ElapsedSRight
	ElapsedHome
)

// ErrElapsedTimeTooLarge is returned when a requested elapsed time exceeds
// the 16-bit, 10ms-unit encoding's range.
var ErrElapsedTimeTooLarge = errors.New("report: elapsed time exceeds encodable range")

// Sub0x04TriggerButtonsElapsedTime packs command ms/10 values as
// little-endian u16 at offsets 16, 18, 20, 22, 24, 26, 28 in
// (Left, Right, ZLeft, ZRight, SLeft, SRight, Home) order.
func (r *InputReport) Sub0x04TriggerButtonsElapsedTime(commands map[ElapsedTimeCommand]uint32) error {
	for cmd, ms := range commands {
		if ms > 10*0xFFFF {
			return ErrElapsedTimeTooLarge
		}
		off := 16 + 2*int(cmd)
		binary.LittleEndian.PutUint16(r.buf[off:off+2], uint16(ms/10))
	}
	return nil
}

// defaultStickPattern returns the fixed 8-byte pattern that FillDefault
// writes over offsets 4..12 (button bytes included) of the default report
// (id 0x3F).
func defaultStickPattern(isJoyCon bool) [8]byte {
	if isJoyCon {
		return [8]byte{0x00, 0x80, 0x00, 0x80, 0x00, 0x80, 0x00, 0x80}
	}
	return [8]byte{0x40, 0x8A, 0x4F, 0x8A, 0xD0, 0x7E, 0xDF, 0x7F}
}

// FillDefault fills offsets 1..3 with 28 CA 08 and 4..12 with the
// kind-dependent stick pattern, producing the fixed default report.
func (r *InputReport) FillDefault(isJoyCon bool) {
	r.buf[1] = 0x28
	r.buf[2] = 0xCA
	r.buf[3] = 0x08
	pattern := defaultStickPattern(isJoyCon)
	copy(r.buf[4:12], pattern[:])
}

// The NFC/IR MCU config blob written by SetNfcIrMcuConfig replies.
var nfcIrMcuConfigBlob = [34]byte{
	0x01, 0x00, 0xFF, 0x00, 0x08, 0x00, 0x1B, 0x01,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0xC8,
}

// Sub0x21SetNfcIrMcuConfig writes the fixed 34-byte MCU config blob at
// offsets 16..50.
func (r *InputReport) Sub0x21SetNfcIrMcuConfig() {
	copy(r.buf[16:50], nfcIrMcuConfigBlob[:])
}
