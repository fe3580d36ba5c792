package controller

import "encoding/binary"

// Gyroscope encoding constants from the Switch's IMU report format.
const (
	imuSensitivityDefault = 3000.0
	imuSensitivityMult    = 57.3
	imuGyroCoeff          = 0.07
)

// IMUAccumulator holds signed x/y gyro values in device units. Real IMU
// measurement is out of scope; this accumulator only exists so that
// higher layers can drive a synthetic tilt and have it show up correctly
// encoded in streamed input reports.
type IMUAccumulator struct {
	X, Y int32
}

// EncodeBlock writes the accumulator into the 36-byte IMU block embedded
// in 0x31-mode input reports, replicating the (gyro_x, gyro_y, gyro_z)
// triple at offsets (6,8,10), (18,20,22), (30,32,34) as the real firmware
// does across its three IMU samples per report.
func (a IMUAccumulator) EncodeBlock(block []byte) {
	gyroY := int16((float64(a.Y) / imuSensitivityDefault) * imuSensitivityMult / imuGyroCoeff)
	gyroZ := int16(-(float64(a.X) / imuSensitivityDefault) * imuSensitivityMult / imuGyroCoeff)
	const gyroX = 0

	for _, base := range []int{6, 18, 30} {
		binary.LittleEndian.PutUint16(block[base:], uint16(gyroX))
		binary.LittleEndian.PutUint16(block[base+2:], uint16(gyroY))
		binary.LittleEndian.PutUint16(block[base+4:], uint16(gyroZ))
	}
}
