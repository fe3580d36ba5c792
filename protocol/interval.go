package protocol

import (
	"math"
	"time"

	"github.com/joyconemu/switchpad/report"
)

// SendIntervalTable maps a report mode byte to the writer loop's send
// interval. math.Inf(1) means "reply-only, no periodic write".
//
// The physical controllers use 1/60s for modes 0x30/0x31, but this
// implementation defaults to 1/15s for those modes per the documented
// open-question resolution: 1/15 is required here for reliability. The
// table is exposed as configuration so a caller can restore 1/60 or tune
// further.
type SendIntervalTable map[byte]float64

// DefaultSendIntervalTable returns the spec's default interval table.
func DefaultSendIntervalTable() SendIntervalTable {
	return SendIntervalTable{
		report.IDDefault:         1.0,
		report.IDSubcommandReply: math.Inf(1),
		report.IDIMU:             1.0 / 15.0,
		report.IDIMUNfcIr:        1.0 / 15.0,
	}
}

// PairingInterval is the interval forced while the engine is still
// pairing, regardless of report mode.
const PairingInterval = 1.0 / 15.0

// Resolve returns the interval for mode, or (1/15, false) for any mode the
// table doesn't name; the caller is responsible for warning about it.
func (t SendIntervalTable) Resolve(mode byte) (seconds float64, known bool) {
	v, ok := t[report.NormalizeInputID(mode)]
	if !ok {
		return 1.0 / 15.0, false
	}
	return v, true
}

func secondsToDuration(s float64) time.Duration {
	if math.IsInf(s, 1) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(s * float64(time.Second))
}
