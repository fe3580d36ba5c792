package protocol

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the protocol engine's taxonomy (spec §7).
var (
	ErrNoInputReportModeSupplied = errors.New("protocol: no input report mode supplied")
	ErrUnknownInputReportMode    = errors.New("protocol: unknown input report mode")
	ErrWriteWhilePaused          = errors.New("protocol: write while paused")
	ErrDuplicatedReportModeSet   = errors.New("protocol: duplicated report mode set")
)

// ErrLaggedWrites is returned (as a warning, not a fatal error) when the
// writer loop's measured elapsed time exceeds the configured interval.
type ErrLaggedWrites struct{ Elapsed time.Duration }

func (e ErrLaggedWrites) Error() string {
	return fmt.Sprintf("protocol: lagged writes by %s", e.Elapsed)
}

// ErrNotImplemented is emitted as a warning for recognized-but-unhandled
// wire features (RequestIrNfcMcu, unknown SetNfcIrMcuState commands).
type ErrNotImplemented struct{ What string }

func (e ErrNotImplemented) Error() string {
	return "protocol: not implemented: " + e.What
}

// ErrInvariant signals a bug: the engine observed state that should be
// impossible per its own invariants.
type ErrInvariant struct{ Detail string }

func (e ErrInvariant) Error() string {
	return "protocol: invariant violated: " + e.Detail
}

// ErrOutputReportParseFailed wraps a report-layer parse failure
// encountered while reading an output report.
type ErrOutputReportParseFailed struct{ Cause error }

func (e ErrOutputReportParseFailed) Error() string {
	return fmt.Sprintf("protocol: output report parse failed: %v", e.Cause)
}
func (e ErrOutputReportParseFailed) Unwrap() error { return e.Cause }
