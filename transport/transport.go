// Package transport paces L2CAP reads and writes against the HCI-level
// flow control and link supervision signals the Bluetooth controller
// exposes, so writes never outrun the link's credit window.
package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joyconemu/switchpad/internal/watch"
)

const (
	DefaultFlowControlPermits = 4
	DefaultReadBufSize        = 50

	hciNumberOfCompletedPacketsEventMask = 1 << 0x13
	hciMaxSlotsChangeEventMask           = 1 << 0x1B
	hciEventTypeMask                     = 1 << 0x04

	lowSlotThreshold  = 5
	noWriteWindowTime = 1 * time.Second
)

// Errors surfaced by the pacer. Matches the transport error kinds in spec §7.
var (
	ErrOperationWhileClosed    = errors.New("transport: operation while closed")
	ErrReaderClosed            = errors.New("transport: reader closed")
	ErrWriterClosed            = errors.New("transport: writer closed")
	ErrMonitorCreditClosed     = errors.New("transport: credit monitor closed")
	ErrMonitorSupervisionClose = errors.New("transport: supervision monitor closed")
)

// SeqPacketConn is the L2CAP sequential-packet socket interface the pacer
// reads/writes through. Implemented by a real socket in internal/btsock
// and by an in-memory fake in tests.
type SeqPacketConn interface {
	Recv(buf []byte) (int, error)
	Send(buf []byte) (int, error)
}

// HCIEventSource is a filtered HCI raw socket delivering one kind of
// event per Recv call.
type HCIEventSource interface {
	Recv(buf []byte) (int, error)
}

// Sockets bundles the collaborator-provided connections a Pacer is built
// from: the interrupt L2CAP channel plus two purpose-filtered HCI raw
// sockets.
type Sockets struct {
	Interrupt   SeqPacketConn
	Credit      HCIEventSource
	Supervision HCIEventSource
}

// Config tunes the pacer's defaults.
type Config struct {
	FlowControlPermits int
	ReadBufSize        int
	Logger             *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.FlowControlPermits <= 0 {
		c.FlowControlPermits = DefaultFlowControlPermits
	}
	if c.ReadBufSize <= 0 {
		c.ReadBufSize = DefaultReadBufSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Pacer reads and writes the interrupt L2CAP channel, throttled by the
// HCI credit window and link supervision backoff.
type Pacer struct {
	sockets Sockets
	cfg     Config

	running  *watch.Value[bool] // true == not paused
	writable *watch.Value[bool] // true == no-write window is open

	sem *boundedSemaphore

	closeOnce sync.Once
	closed    chan struct{}
}

// New constructs a Pacer and starts its credit/link-supervision monitor
// goroutines. The monitors run until ctx is canceled or Close is called.
func New(ctx context.Context, sockets Sockets, cfg Config) (*Pacer, error) {
	cfg = cfg.withDefaults()
	p := &Pacer{
		sockets:  sockets,
		cfg:      cfg,
		running:  watch.New(true),
		writable: watch.New(true),
		sem:      newBoundedSemaphore(cfg.FlowControlPermits, cfg.FlowControlPermits),
		closed:   make(chan struct{}),
	}
	go p.monitorCredit(ctx)
	go p.monitorSupervision(ctx)
	return p, nil
}

func (p *Pacer) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

func (p *Pacer) monitorCredit(ctx context.Context) {
	buf := make([]byte, 10)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.closed:
			return
		default:
		}
		n, err := p.sockets.Credit.Recv(buf)
		if err != nil {
			p.cfg.Logger.Error("credit monitor socket error", "error", err)
			return
		}
		if n == 0 {
			p.cfg.Logger.Warn("credit monitor socket closed by peer")
			return
		}
		permits := int(binary.LittleEndian.Uint16(buf[6:8]))
		p.sem.addPermits(permits)
	}
}

func (p *Pacer) monitorSupervision(ctx context.Context) {
	buf := make([]byte, 10)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.closed:
			return
		default:
		}
		n, err := p.sockets.Supervision.Recv(buf)
		if err != nil {
			p.cfg.Logger.Error("supervision monitor socket error", "error", err)
			return
		}
		if n == 0 {
			p.cfg.Logger.Warn("supervision monitor socket closed by peer")
			return
		}
		if buf[5] < lowSlotThreshold {
			p.writable.Set(false)
			time.Sleep(noWriteWindowTime)
			p.writable.Set(true)
		}
	}
}

// Read waits for a running (non-paused) state, then reads one packet from
// the interrupt socket.
func (p *Pacer) Read(ctx context.Context) ([]byte, error) {
	if p.isClosed() {
		return nil, ErrOperationWhileClosed
	}
	if !p.running.WaitFor(true, ctxDoneOr(ctx, p.closed)) {
		return nil, ErrOperationWhileClosed
	}
	buf := make([]byte, p.cfg.ReadBufSize)
	n, err := p.sockets.Interrupt.Recv(buf)
	if err != nil {
		return nil, fmt.Errorf("transport: read: %w", err)
	}
	if n == 0 {
		return nil, ErrReaderClosed
	}
	return buf[:n], nil
}

// Write waits for a running state, acquires one credit permit (consumed,
// replenished only by the credit monitor), waits for the no-write window
// to be open, then writes buf.
func (p *Pacer) Write(ctx context.Context, buf []byte) error {
	if p.isClosed() {
		return ErrOperationWhileClosed
	}
	if !p.running.WaitFor(true, ctxDoneOr(ctx, p.closed)) {
		return ErrOperationWhileClosed
	}
	if err := p.sem.acquire(ctx); err != nil {
		return fmt.Errorf("transport: acquire credit: %w", err)
	}
	if !p.writable.WaitFor(true, ctxDoneOr(ctx, p.closed)) {
		return ErrOperationWhileClosed
	}
	n, err := p.sockets.Interrupt.Send(buf)
	if err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	if n == 0 {
		return ErrWriterClosed
	}
	return nil
}

// Pause suspends both Read and Write indefinitely.
func (p *Pacer) Pause() { p.running.Set(false) }

// Resume releases a previously paused pacer.
func (p *Pacer) Resume() { p.running.Set(true) }

// Close cancels the monitor loops and marks the pacer closed. The
// underlying sockets are owned by the caller and are not closed here.
func (p *Pacer) Close() {
	p.closeOnce.Do(func() { close(p.closed) })
}

func ctxDoneOr(ctx context.Context, extra <-chan struct{}) <-chan struct{} {
	if ctx == nil {
		return extra
	}
	out := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-extra:
		}
		close(out)
	}()
	return out
}
