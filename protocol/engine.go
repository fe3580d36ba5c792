// Package protocol implements the Switch controller's HID protocol state
// machine: subcommand dispatch, the pairing-to-streaming transition, and
// input-report synthesis and pacing.
package protocol

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/joyconemu/switchpad/controller"
	"github.com/joyconemu/switchpad/internal/watch"
	"github.com/joyconemu/switchpad/report"
	"github.com/joyconemu/switchpad/transport"
)

// protocolState is the plain, mutex-guarded aggregate described in
// DESIGN.md / spec §9: reads clone it out, mutation happens via a closure
// invoked under the lock, so no setter can silently drop its change by
// mutating a local copy.
type protocolState struct {
	isPairing    bool
	sendInterval float64
	reportMode   *byte
	connectedAt  *time.Time
	controllerSt controller.State
	spiFlash     *controller.SpiFlashImage
}

func (s protocolState) clone() protocolState { return s }

// Config configures a new Engine.
type Config struct {
	Kind          controller.Kind
	LocalAddress  controller.Address
	Reconnect     bool
	Logger        *slog.Logger
	IntervalTable SendIntervalTable
}

// Engine is the protocol state machine for a single connection.
type Engine struct {
	kind      controller.Kind
	localAddr controller.Address
	intervals SendIntervalTable
	logger    *slog.Logger

	mu    sync.Mutex
	state protocolState

	running     *watch.Value[bool] // engine-level pause: true == not paused
	writerReady *watch.Value[bool]

	firstReadOnce chan struct{}
	firstReadDone bool
	firstReadMu   sync.Mutex

	writerWake *notifier

	bus *eventBus
}

// New constructs a protocol engine for a single connection, per spec §4.3.
func New(cfg Config) (*Engine, error) {
	if _, err := cfg.Kind.ID(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.IntervalTable == nil {
		cfg.IntervalTable = DefaultSendIntervalTable()
	}

	spi := controller.NewSpiFlashImage()
	cstate, err := controller.NewWithFlash(cfg.Kind, spi)
	if err != nil {
		return nil, err
	}

	st := protocolState{
		controllerSt: *cstate,
		spiFlash:     spi,
	}
	if cfg.Reconnect {
		st.isPairing = false
		st.sendInterval = math.Inf(1)
	} else {
		st.isPairing = true
		st.sendInterval = PairingInterval
	}

	e := &Engine{
		kind:          cfg.Kind,
		localAddr:     cfg.LocalAddress,
		intervals:     cfg.IntervalTable,
		logger:        cfg.Logger,
		state:         st,
		running:       watch.New(true),
		writerReady:   watch.New(false),
		firstReadOnce: make(chan struct{}),
		writerWake:    newNotifier(),
		bus:           newEventBus(),
	}
	return e, nil
}

// MarkConnected sets connected_at to now, used to synthesize the
// input-report timer.
func (e *Engine) MarkConnected() {
	now := time.Now()
	e.mu.Lock()
	e.state.connectedAt = &now
	e.mu.Unlock()
}

// WaitForFirstRead resolves after the first output report has been read,
// or ctx is done.
func (e *Engine) WaitForFirstRead(ctx context.Context) error {
	select {
	case <-e.firstReadOnce:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) markFirstRead() {
	e.firstReadMu.Lock()
	defer e.firstReadMu.Unlock()
	if !e.firstReadDone {
		e.firstReadDone = true
		close(e.firstReadOnce)
	}
}

// Events returns a subscriber channel of protocol log/warning events.
func (e *Engine) Events() <-chan Event {
	return e.bus.subscribe()
}

// Pause suspends controller-state mutation and the writer loop until
// Resume is called.
func (e *Engine) Pause() { e.running.Set(false) }

// Resume releases a previously paused engine.
func (e *Engine) Resume() { e.running.Set(true) }

func (e *Engine) isPaused() bool { return !e.running.Get() }

// WriterReady resolves once pairing reaches the point where sustained
// writing should begin (triggered by SetPlayerLights).
func (e *Engine) WriterReady(ctx context.Context) error {
	if !e.writerReady.WaitFor(true, ctx.Done()) {
		return ctx.Err()
	}
	return nil
}

// SetControllerState replaces the controller state wholesale, waiting out
// any pause first.
func (e *Engine) SetControllerState(ctx context.Context, st controller.State) error {
	if !e.running.WaitFor(true, ctx.Done()) {
		return ctx.Err()
	}
	e.mu.Lock()
	e.state.controllerSt = st
	e.mu.Unlock()
	return nil
}

// MutateControllerState applies f to the current controller state in
// place, waiting out any pause first.
func (e *Engine) MutateControllerState(ctx context.Context, f func(*controller.State)) error {
	if !e.running.WaitFor(true, ctx.Done()) {
		return ctx.Err()
	}
	e.mu.Lock()
	f(&e.state.controllerSt)
	e.mu.Unlock()
	return nil
}

// SendEmptyInput writes a blank input report (362 zero bytes after 0xA1)
// to provoke the console into replying.
func (e *Engine) SendEmptyInput(ctx context.Context, pacer *transport.Pacer) error {
	buf := make([]byte, 363)
	buf[0] = 0xA1
	return pacer.Write(ctx, buf)
}

// ProcessOneRead reads one output report and dispatches it. Parse and
// dispatch failures are reported as warnings; only a transport-level
// error from the pacer itself is returned.
func (e *Engine) ProcessOneRead(ctx context.Context, pacer *transport.Pacer) error {
	buf, err := pacer.Read(ctx)
	if err != nil {
		return err
	}
	e.markFirstRead()
	out, err := report.ParseOutput(buf)
	if err != nil {
		e.warn(ErrOutputReportParseFailed{Cause: err})
		return nil
	}
	id, ok := out.ID()
	if !ok {
		e.warn(ErrOutputReportParseFailed{Cause: fmt.Errorf("unrecognized output report id 0x%02X", buf[1])})
		return nil
	}
	switch id {
	case report.OutputSubCommand:
		return e.replyToSubcommand(ctx, pacer, out)
	case report.OutputRumbleOnly:
		// No-op: rumble synthesis is out of scope.
	case report.OutputRequestIrNfcMcu:
		e.warn(ErrNotImplemented{What: "RequestIrNfcMcu"})
	}
	return nil
}

func (e *Engine) warn(err error) {
	e.bus.dispatch(Event{Warning: err})
}

func (e *Engine) log(kind LogKind, sub byte) {
	e.bus.dispatch(Event{Log: kind, Subcommand: sub})
}

// ProcessOneWrite emits the current streaming input report and then waits
// out either the negotiated send interval or a writer-wake notification.
// writeHook, if non-nil, runs after the write completes and before the
// wait begins (used to notify a controller-state updater loop).
func (e *Engine) ProcessOneWrite(ctx context.Context, pacer *transport.Pacer, writeHook func()) error {
	if !e.running.WaitFor(true, ctx.Done()) {
		return ctx.Err()
	}
	now := time.Now()
	ir, err := e.generateInputReport(nil)
	if err != nil {
		return err
	}
	if err := e.handleWrite(ctx, pacer, ir); err != nil {
		return err
	}
	if writeHook != nil {
		writeHook()
	}

	e.mu.Lock()
	interval := e.state.sendInterval
	e.mu.Unlock()

	if math.IsInf(interval, 1) {
		select {
		case <-e.writerWake.Chan():
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}

	elapsed := time.Since(now)
	wantDelay := secondsToDuration(interval)
	if elapsed > wantDelay {
		e.warn(ErrLaggedWrites{Elapsed: elapsed - wantDelay})
		return nil
	}
	remaining := wantDelay - elapsed
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-e.writerWake.Chan():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// handleWrite checks for pairing-end before writing ir, emits a
// WriteWhilePaused warning (non-fatal) if the engine is paused, and writes
// the report through pacer.
func (e *Engine) handleWrite(ctx context.Context, pacer *transport.Pacer, ir *report.InputReport) error {
	buttons := ir.Bytes()[4:7]
	word := uint32(buttons[0])<<16 | uint32(buttons[1])<<8 | uint32(buttons[2])

	mask, err := e.kind.ClosePairingMask()
	if err != nil {
		return ErrInvariant{Detail: err.Error()}
	}

	if e.endPairingIfMatched(word, mask) {
		e.log(LogPairingEnded, 0)
	}

	if e.isPaused() {
		e.warn(ErrWriteWhilePaused)
	}

	id := ir.ID()
	length, lerr := report.Length(id)
	if lerr != nil {
		length = len(ir.Bytes())
	}
	return pacer.Write(ctx, ir.Bytes()[:length])
}

func boolPtr(b bool) *bool { return &b }

// endPairingIfMatched atomically checks whether the engine is still pairing
// and word (the button bytes of an outbound input report) trips mask, and
// if so flips isPairing to false and re-derives the send interval in the
// same critical section. It reports whether this call performed the
// transition, so a caller racing another handleWrite invocation never
// double-fires the pairing-ended transition.
func (e *Engine) endPairingIfMatched(word uint32, mask uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.isPairing || word&mask == 0 {
		return false
	}
	e.setReportModeLocked(nil, boolPtr(false), true)
	return true
}

// setReportMode records mode (if non-nil) and re-derives the send
// interval. keepMode, when true, leaves reportMode untouched and only
// re-derives the interval (used by pairing-end and EnableVibration).
func (e *Engine) setReportMode(mode *byte, isPairing *bool, keepMode bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setReportModeLocked(mode, isPairing, keepMode)
}

// setReportModeLocked is setReportMode's body; callers must hold e.mu.
func (e *Engine) setReportModeLocked(mode *byte, isPairing *bool, keepMode bool) {
	if !keepMode && mode != nil {
		e.state.reportMode = mode
	}
	pairing := e.state.isPairing
	if isPairing != nil {
		pairing = *isPairing
	}
	e.state.isPairing = pairing

	if pairing {
		e.state.sendInterval = PairingInterval
		return
	}
	var cur byte
	if e.state.reportMode != nil {
		cur = *e.state.reportMode
	} else {
		e.state.sendInterval = PairingInterval
		return
	}
	seconds, known := e.intervals.Resolve(cur)
	if !known {
		e.warn(fmt.Errorf("protocol: unknown send interval for mode 0x%02X, defaulting to 1/15", cur))
	}
	e.state.sendInterval = seconds
}

// generateInputReport synthesizes an input report for mode, or the
// current negotiated report mode if mode is nil.
func (e *Engine) generateInputReport(mode *byte) (*report.InputReport, error) {
	e.mu.Lock()
	st := e.state.clone()
	e.mu.Unlock()

	if err := st.controllerSt.CheckKind(e.kind); err != nil {
		return nil, ErrInvariant{Detail: err.Error()}
	}

	effMode := mode
	if effMode == nil {
		effMode = st.reportMode
	}
	if effMode == nil {
		return nil, ErrNoInputReportModeSupplied
	}

	id := report.NormalizeInputID(*effMode)
	if _, err := report.Length(id); err != nil {
		return nil, ErrUnknownInputReportMode
	}

	ir := report.NewInput()
	ir.SetID(id)

	isJoyCon := e.kind == controller.JoyConL || e.kind == controller.JoyConR
	if id == report.IDDefault {
		ir.FillDefault(isJoyCon)
		return ir, nil
	}

	var timer uint64
	if st.connectedAt != nil {
		elapsed := time.Since(*st.connectedAt)
		timer = uint64(math.Round(elapsed.Seconds() / 0.005))
	}
	ir.SetTimer(timer)
	ir.SetMisc()
	btn := st.controllerSt.Buttons.Bytes()
	ir.SetButtons(btn)
	left := st.controllerSt.Left.Bytes()
	right := st.controllerSt.Right.Bytes()
	ir.SetAnalogSticks(&left, &right)
	ir.SetVibratorInput()

	switch id {
	case report.IDIMUNfcIr:
		ir.Set6AxisData()
		st.controllerSt.IMU.EncodeBlock(ir.IMUBlock())
		ff := make([]byte, 313)
		for i := range ff {
			ff[i] = 0xFF
		}
		if err := ir.SetIrNfcData(ff); err != nil {
			return nil, err
		}
	case report.IDIMU:
		ir.Set6AxisData()
		st.controllerSt.IMU.EncodeBlock(ir.IMUBlock())
	}
	return ir, nil
}

// replyToSubcommand dispatches a SubCommand output report and writes the
// matching input-report reply.
func (e *Engine) replyToSubcommand(ctx context.Context, pacer *transport.Pacer, out *report.OutputReport) error {
	subByte, err := out.Subcommand()
	if err != nil {
		e.warn(err)
		return nil
	}
	sub := report.Subcommand(subByte)
	e.log(LogSubcommandReceived, subByte)

	data, derr := out.SubcommandData()
	if derr != nil {
		data = nil
	}

	resp, err := e.generateInputReport(bytePtr(byte(report.IDSubcommandReply)))
	if err != nil {
		e.warn(err)
		return nil
	}
	resp.SetResponseSubcommand(subByte)

	switch sub {
	case report.SubRequestDeviceInfo:
		resp.SetAck(0x82)
		id, err := e.kind.ID()
		if err != nil {
			e.warn(err)
			return nil
		}
		resp.Sub0x02DeviceInfo([6]byte(e.localAddr), report.DefaultFirmwareVersion, id)

	case report.SubSetInputReportMode:
		if len(data) < 1 {
			e.warn(ErrNotImplemented{What: "SetInputReportMode without payload"})
			return nil
		}
		mode := data[0]
		e.mu.Lock()
		dup := e.state.reportMode != nil && *e.state.reportMode == mode
		e.mu.Unlock()
		if dup {
			e.warn(ErrDuplicatedReportModeSet)
		}
		e.setReportMode(&mode, nil, false)
		resp.SetAck(0x80)
		e.writerWake.Notify()

	case report.SubTriggerButtonsElapsedTime:
		resp.SetAck(0x83)
		var cmds map[report.ElapsedTimeCommand]uint32
		if isJoyCon := e.kind == controller.JoyConL || e.kind == controller.JoyConR; isJoyCon {
			cmds = map[report.ElapsedTimeCommand]uint32{
				report.ElapsedSLeft:  3000,
				report.ElapsedSRight: 3000,
			}
		} else {
			cmds = map[report.ElapsedTimeCommand]uint32{
				report.ElapsedLeft:  3000,
				report.ElapsedRight: 3000,
			}
		}
		if err := resp.Sub0x04TriggerButtonsElapsedTime(cmds); err != nil {
			e.warn(err)
			return nil
		}

	case report.SubSetShipmentState:
		resp.SetAck(0x80)

	case report.SubSpiFlashRead:
		resp.SetAck(0x90)
		if len(data) < 5 {
			e.warn(ErrNotImplemented{What: "SpiFlashRead without payload"})
			return nil
		}
		offset := binary.LittleEndian.Uint32(data[0:4])
		size := data[4]
		e.mu.Lock()
		flash := e.state.spiFlash
		e.mu.Unlock()
		var payload []byte
		if flash != nil {
			payload = flash.Read(offset, int(size))
		} else {
			payload = make([]byte, size)
		}
		if err := resp.Sub0x10SpiFlashRead(offset, size, payload); err != nil {
			e.warn(err)
			return nil
		}

	case report.SubSetNfcIrMcuConfig:
		resp.SetAck(0xA0)
		resp.Sub0x21SetNfcIrMcuConfig()

	case report.SubSetNfcIrMcuState:
		if len(data) < 1 || (data[0] != 0x00 && data[0] != 0x01) {
			e.warn(ErrNotImplemented{What: "SetNfcIrMcuState command"})
			return nil
		}
		resp.SetAck(0x80)

	case report.SubSetPlayerLights:
		resp.SetAck(0x80)
		e.writerReady.Set(true)

	case report.SubEnable6AxisSensor:
		resp.SetAck(0x80)

	case report.SubEnableVibration:
		if len(data) >= 1 && data[0] == 0x01 {
			e.mu.Lock()
			e.state.sendInterval = PairingInterval
			e.mu.Unlock()
		} else {
			e.setReportMode(nil, nil, true)
		}
		resp.SetAck(0x80)

	default:
		e.warn(ErrNotImplemented{What: fmt.Sprintf("subcommand 0x%02X", subByte)})
		return nil
	}

	return e.handleWrite(ctx, pacer, resp)
}

func bytePtr(b byte) *byte { return &b }
