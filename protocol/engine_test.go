package protocol

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joyconemu/switchpad/controller"
	"github.com/joyconemu/switchpad/report"
	"github.com/joyconemu/switchpad/transport"
)

// fakeSeqPacketConn is a minimal in-memory transport.SeqPacketConn double
// driving the pacer underneath the engine under test.
type fakeSeqPacketConn struct {
	reads  chan []byte
	writes chan []byte
}

func newFakeConn() *fakeSeqPacketConn {
	return &fakeSeqPacketConn{
		reads:  make(chan []byte, 16),
		writes: make(chan []byte, 16),
	}
}

func (f *fakeSeqPacketConn) Recv(buf []byte) (int, error) {
	data := <-f.reads
	return copy(buf, data), nil
}

func (f *fakeSeqPacketConn) Send(buf []byte) (int, error) {
	cp := append([]byte(nil), buf...)
	f.writes <- cp
	return len(buf), nil
}

// fakeHCISource never delivers an event; the engine-level tests don't
// exercise flow control directly (that's transport's job).
type fakeHCISource struct{ events chan []byte }

func newFakeHCISource() *fakeHCISource { return &fakeHCISource{events: make(chan []byte, 4)} }

func (f *fakeHCISource) Recv(buf []byte) (int, error) {
	ev := <-f.events
	return copy(buf, ev), nil
}

func newTestPacer(t *testing.T) (*transport.Pacer, *fakeSeqPacketConn) {
	t.Helper()
	itr := newFakeConn()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	p, err := transport.New(ctx, transport.Sockets{
		Interrupt:   itr,
		Credit:      newFakeHCISource(),
		Supervision: newFakeHCISource(),
	}, transport.Config{FlowControlPermits: 64})
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p, itr
}

func outputSubcommand(sub report.Subcommand, data []byte) []byte {
	buf := make([]byte, 12+len(data))
	buf[0] = 0xA2
	buf[1] = byte(report.OutputSubCommand)
	buf[11] = byte(sub)
	copy(buf[12:], data)
	return buf
}

func newProEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Config{
		Kind:         controller.ProController,
		LocalAddress: controller.Address{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
	})
	require.NoError(t, err)
	return e
}

func readReply(t *testing.T, itr *fakeSeqPacketConn) []byte {
	t.Helper()
	select {
	case got := <-itr.writes:
		return got
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reply write")
		return nil
	}
}

// RequestDeviceInfo should echo the local address, firmware version and
// controller id into the subcommand reply payload.
func TestReplyToSubcommand_DeviceInfo(t *testing.T) {
	e := newProEngine(t)
	pacer, itr := newTestPacer(t)

	itr.reads <- outputSubcommand(report.SubRequestDeviceInfo, nil)
	require.NoError(t, e.ProcessOneRead(context.Background(), pacer))

	got := readReply(t, itr)
	assert.Equal(t, byte(0xA1), got[0])
	assert.Equal(t, byte(report.IDSubcommandReply), got[1])
	assert.Equal(t, byte(0x82), got[14])
	assert.Equal(t, byte(report.SubRequestDeviceInfo), got[15])

	id, err := controller.ProController.ID()
	require.NoError(t, err)
	assert.Equal(t, report.DefaultFirmwareVersion[:], got[16:18])
	assert.Equal(t, id, got[18])
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}, got[20:26])
}

// SpiFlashRead at the left-stick factory calibration offset should reply
// with exactly the requested 9 bytes of factory calibration data.
func TestReplyToSubcommand_SpiFlashRead(t *testing.T) {
	e := newProEngine(t)
	pacer, itr := newTestPacer(t)

	data := make([]byte, 5)
	data[0], data[1], data[2], data[3] = 0x3D, 0x60, 0x00, 0x00
	data[4] = 0x09

	itr.reads <- outputSubcommand(report.SubSpiFlashRead, data)
	require.NoError(t, e.ProcessOneRead(context.Background(), pacer))

	got := readReply(t, itr)
	assert.Equal(t, byte(0x90), got[14])
	assert.Equal(t, byte(0x3D), got[16])
	assert.Equal(t, byte(0x60), got[17])
	assert.Equal(t, byte(0x09), got[20])
	assert.Equal(t, []byte{0x00, 0x07, 0x70, 0x00, 0x08, 0x80, 0x00, 0x07, 0x70}, got[21:30])
}

// SetInputReportMode to 0x30 during pairing should ack but must not cause
// the engine to treat pairing as concluded: only a close-pairing button
// mask does that.
func TestReplyToSubcommand_SetInputReportModeDuringPairing(t *testing.T) {
	e := newProEngine(t)
	pacer, itr := newTestPacer(t)

	itr.reads <- outputSubcommand(report.SubSetInputReportMode, []byte{report.IDIMU})
	require.NoError(t, e.ProcessOneRead(context.Background(), pacer))

	got := readReply(t, itr)
	assert.Equal(t, byte(0x80), got[14])

	e.mu.Lock()
	mode := e.state.reportMode
	pairing := e.state.isPairing
	e.mu.Unlock()
	require.NotNil(t, mode)
	assert.Equal(t, byte(report.IDIMU), *mode)
	assert.True(t, pairing, "report mode alone must not end pairing")
}

// A streaming write whose button bytes carry the kind's close-pairing mask
// ends pairing and logs LogPairingEnded.
func TestHandleWrite_ClosePairingMaskEndsPairing(t *testing.T) {
	e := newProEngine(t)
	pacer, itr := newTestPacer(t)
	events := e.Events()

	mode := byte(report.IDIMU)
	e.setReportMode(&mode, nil, false)

	mask, err := controller.ProController.ClosePairingMask()
	require.NoError(t, err)
	require.NoError(t, e.SetControllerState(context.Background(), func() controller.State {
		st, err := controller.NewWithFlash(controller.ProController, controller.NewSpiFlashImage())
		require.NoError(t, err)
		btn := [3]byte{
			byte(mask >> 16),
			byte(mask >> 8),
			byte(mask),
		}
		st.Buttons.SetBytes(btn)
		return *st
	}()))

	ir, err := e.generateInputReport(nil)
	require.NoError(t, err)
	require.NoError(t, e.handleWrite(context.Background(), pacer, ir))
	<-itr.writes

	select {
	case evt := <-events:
		require.Equal(t, LogPairingEnded, evt.Log)
	case <-time.After(time.Second):
		t.Fatal("expected LogPairingEnded event")
	}

	e.mu.Lock()
	pairing := e.state.isPairing
	e.mu.Unlock()
	assert.False(t, pairing)
}

// Concurrent handleWrite calls that both observe pairing still in progress
// must flip isPairing exactly once, per the single-transition invariant.
func TestEndPairingIfMatched_ConcurrentCallsFireOnce(t *testing.T) {
	e := newProEngine(t)
	mask, err := controller.ProController.ClosePairingMask()
	require.NoError(t, err)

	const goroutines = 32
	results := make(chan bool, goroutines)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			results <- e.endPairingIfMatched(mask, mask)
		}()
	}
	wg.Wait()
	close(results)

	transitions := 0
	for fired := range results {
		if fired {
			transitions++
		}
	}
	assert.Equal(t, 1, transitions, "exactly one caller must perform the pairing-end transition")

	e.mu.Lock()
	pairing := e.state.isPairing
	e.mu.Unlock()
	assert.False(t, pairing)
}

// ProcessOneWrite must report ErrLaggedWrites as a warning (not a fatal
// error) when the caller's writeHook stalls past the negotiated interval.
func TestProcessOneWrite_LagWarning(t *testing.T) {
	e, err := New(Config{
		Kind:          controller.ProController,
		LocalAddress:  controller.Address{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
		IntervalTable: SendIntervalTable{report.IDDefault: 0.01},
	})
	require.NoError(t, err)
	pacer, itr := newTestPacer(t)
	events := e.Events()

	mode := byte(report.IDDefault)
	e.setReportMode(&mode, boolPtr(false), false)

	err = e.ProcessOneWrite(context.Background(), pacer, func() {
		time.Sleep(50 * time.Millisecond)
	})
	require.NoError(t, err)
	<-itr.writes

	select {
	case evt := <-events:
		require.Error(t, evt.Warning)
		var lagged ErrLaggedWrites
		assert.ErrorAs(t, evt.Warning, &lagged)
	case <-time.After(time.Second):
		t.Fatal("expected lagged-writes warning")
	}
}

// EnableVibration must never itself flip isPairing: only the close-pairing
// button mask transition does that.
func TestReplyToSubcommand_EnableVibrationDoesNotAffectPairing(t *testing.T) {
	e := newProEngine(t)
	pacer, itr := newTestPacer(t)

	e.mu.Lock()
	before := e.state.isPairing
	e.mu.Unlock()

	itr.reads <- outputSubcommand(report.SubEnableVibration, []byte{0x01})
	require.NoError(t, e.ProcessOneRead(context.Background(), pacer))
	readReply(t, itr)

	e.mu.Lock()
	after := e.state.isPairing
	e.mu.Unlock()
	assert.Equal(t, before, after)
}

// An unrecognized subcommand byte produces a warning event and no reply
// write.
func TestReplyToSubcommand_UnknownSubcommandWarns(t *testing.T) {
	e := newProEngine(t)
	pacer, itr := newTestPacer(t)
	events := e.Events()

	itr.reads <- outputSubcommand(report.Subcommand(0xEE), nil)
	require.NoError(t, e.ProcessOneRead(context.Background(), pacer))

	select {
	case evt := <-events:
		require.Error(t, evt.Warning)
	case <-time.After(time.Second):
		t.Fatal("expected a warning event")
	}
	select {
	case <-itr.writes:
		t.Fatal("unknown subcommand must not produce a reply write")
	case <-time.After(100 * time.Millisecond):
	}
}

// Setting the same report mode twice warns about the duplicate but still
// acks normally. Each read also emits a LogSubcommandReceived event, so
// those are skipped on the way to the warning.
func TestReplyToSubcommand_DuplicateReportModeWarns(t *testing.T) {
	e := newProEngine(t)
	pacer, itr := newTestPacer(t)
	events := e.Events()

	itr.reads <- outputSubcommand(report.SubSetInputReportMode, []byte{report.IDDefault})
	require.NoError(t, e.ProcessOneRead(context.Background(), pacer))
	readReply(t, itr)

	itr.reads <- outputSubcommand(report.SubSetInputReportMode, []byte{report.IDDefault})
	require.NoError(t, e.ProcessOneRead(context.Background(), pacer))
	readReply(t, itr)

	deadline := time.After(time.Second)
	for {
		select {
		case evt := <-events:
			if evt.Warning == nil && evt.Log == LogSubcommandReceived {
				continue
			}
			require.Error(t, evt.Warning)
			assert.ErrorIs(t, evt.Warning, ErrDuplicatedReportModeSet)
			return
		case <-deadline:
			t.Fatal("expected duplicated report mode warning")
		}
	}
}

// SetPlayerLights releases WriterReady.
func TestReplyToSubcommand_SetPlayerLightsUnblocksWriterReady(t *testing.T) {
	e := newProEngine(t)
	pacer, itr := newTestPacer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	readyErr := make(chan error, 1)
	go func() { readyErr <- e.WriterReady(ctx) }()

	itr.reads <- outputSubcommand(report.SubSetPlayerLights, []byte{0x01})
	require.NoError(t, e.ProcessOneRead(context.Background(), pacer))
	readReply(t, itr)

	require.NoError(t, <-readyErr)
}
