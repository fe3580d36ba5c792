package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFillDefaultReport(t *testing.T) {
	cases := []struct {
		name     string
		isJoyCon bool
		want     [8]byte
	}{
		{"joycon", true, [8]byte{0x00, 0x80, 0x00, 0x80, 0x00, 0x80, 0x00, 0x80}},
		{"pro", false, [8]byte{0x40, 0x8A, 0x4F, 0x8A, 0xD0, 0x7E, 0xDF, 0x7F}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewInput()
			r.FillDefault(tc.isJoyCon)
			assert.Equal(t, byte(0xA1), r.Bytes()[0])
			assert.Equal(t, byte(0x28), r.Bytes()[1])
			assert.Equal(t, byte(0xCA), r.Bytes()[2])
			assert.Equal(t, byte(0x08), r.Bytes()[3])
			assert.Equal(t, tc.want[:], r.Bytes()[4:12])
			for _, b := range r.Bytes()[12:] {
				assert.Equal(t, byte(0), b)
			}
		})
	}
}

func TestParseOutputTooShort(t *testing.T) {
	_, err := ParseOutput(make([]byte, 10))
	assert.ErrorIs(t, err, ErrTooShort)
}

func TestParseOutputMalformed(t *testing.T) {
	buf := make([]byte, 12)
	buf[0] = 0xA3
	_, err := ParseOutput(buf)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseOutputSubcommand(t *testing.T) {
	buf := make([]byte, 13)
	buf[0] = 0xA2
	buf[1] = byte(OutputSubCommand)
	buf[11] = byte(SubRequestDeviceInfo)
	buf[12] = 0xAB
	out, err := ParseOutput(buf)
	require.NoError(t, err)
	id, ok := out.ID()
	require.True(t, ok)
	assert.Equal(t, OutputSubCommand, id)
	sub, err := out.Subcommand()
	require.NoError(t, err)
	assert.Equal(t, byte(SubRequestDeviceInfo), sub)
	data, err := out.SubcommandData()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAB}, data)
}

func TestParseOutputNoSubcommandData(t *testing.T) {
	buf := make([]byte, 12)
	buf[0] = 0xA2
	out, err := ParseOutput(buf)
	require.NoError(t, err)
	_, err = out.SubcommandData()
	assert.ErrorIs(t, err, ErrNoDataAvailable)
}

func TestSub0x10SpiFlashReadRoundTrip(t *testing.T) {
	data := []byte{0x00, 0x07, 0x70, 0x00, 0x08, 0x80, 0x00, 0x07, 0x70}
	r := NewInput()
	err := r.Sub0x10SpiFlashRead(0x603D, byte(len(data)), data)
	require.NoError(t, err)
	off := 16
	assert.Equal(t, []byte{0x3D, 0x60, 0x00, 0x00}, r.Bytes()[off:off+4])
	assert.Equal(t, byte(len(data)), r.Bytes()[off+4])
	assert.Equal(t, data, r.Bytes()[off+5:off+5+len(data)])
}

func TestSub0x10SpiFlashReadTooLarge(t *testing.T) {
	r := NewInput()
	err := r.Sub0x10SpiFlashRead(0, 0x1E, make([]byte, 0x1E))
	assert.ErrorIs(t, err, ErrSpiReadTooLarge)
}

func TestSub0x04TriggerButtonsElapsedTimeInvariant(t *testing.T) {
	r := NewInput()
	err := r.Sub0x04TriggerButtonsElapsedTime(map[ElapsedTimeCommand]uint32{
		ElapsedLeft: 10*0xFFFF + 1,
	})
	assert.ErrorIs(t, err, ErrElapsedTimeTooLarge)
}

func TestSub0x04TriggerButtonsElapsedTimeOffsets(t *testing.T) {
	r := NewInput()
	err := r.Sub0x04TriggerButtonsElapsedTime(map[ElapsedTimeCommand]uint32{
		ElapsedLeft:    3000,
		ElapsedHome:    3000,
		ElapsedSLeft:   3000,
		ElapsedSRight:  3000,
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x2C, 0x01}, r.Bytes()[16:18])
	assert.Equal(t, []byte{0x2C, 0x01}, r.Bytes()[24:26])
	assert.Equal(t, []byte{0x2C, 0x01}, r.Bytes()[26:28])
	assert.Equal(t, []byte{0x2C, 0x01}, r.Bytes()[28:30])
}

func TestSetIrNfcDataOutOfBounds(t *testing.T) {
	r := NewInput()
	err := r.SetIrNfcData(make([]byte, 314))
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestLengthTable(t *testing.T) {
	cases := map[byte]int{
		IDDefault: 51, IDSubcommandReply: 51, IDIMU: 50,
		IDIMUNfcIr: 363, idIMUNfcIr2: 363, idIMUNfcIr3: 363,
	}
	for id, want := range cases {
		got, err := Length(id)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := Length(0x99)
	assert.Error(t, err)
}
