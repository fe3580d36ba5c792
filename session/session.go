// Package session supervises a single paired connection: it wires a
// transport.Pacer to a protocol.Engine and runs the reader, writer, and
// event-relay loops that carry the connection until it ends.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joyconemu/switchpad/protocol"
	"github.com/joyconemu/switchpad/transport"
)

// DefaultEmptyReportAttempts bounds how many empty input reports the
// handshake sends while waiting for the console's first output report.
const DefaultEmptyReportAttempts = 10

const emptyReportRetryInterval = 100 * time.Millisecond

// Config configures a Session.
type Config struct {
	Pacer  *transport.Pacer
	Engine *protocol.Engine
	Logger *slog.Logger

	// EmptyReportAttempts overrides DefaultEmptyReportAttempts when > 0.
	EmptyReportAttempts int

	// OnStateChange, when set, is invoked for every protocol.Event
	// emitted by Engine.Events -- a wiring convenience for callers (a
	// TUI, a metrics sink) that want to observe protocol activity
	// without subscribing to the engine directly.
	OnStateChange func(protocol.Event)
}

// Session supervises one paired connection's reader, writer, handshake,
// and event-relay goroutines, and tears all of them down together on the
// first error or on context cancellation.
type Session struct {
	pacer         *transport.Pacer
	engine        *protocol.Engine
	logger        *slog.Logger
	attempts      int
	onStateChange func(protocol.Event)

	mu       sync.Mutex
	firstErr error
}

// New constructs a Session from cfg.
func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	attempts := cfg.EmptyReportAttempts
	if attempts <= 0 {
		attempts = DefaultEmptyReportAttempts
	}
	return &Session{
		pacer:         cfg.Pacer,
		engine:        cfg.Engine,
		logger:        cfg.Logger,
		attempts:      attempts,
		onStateChange: cfg.OnStateChange,
	}
}

// Run drives the session until ctx is canceled or any loop fails. On
// exit it pauses the pacer and cancels the remaining loops before
// waiting for all of them to return, then reports the first error any
// loop encountered, if any.
func (s *Session) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(4)
	go s.runHandshake(runCtx, cancel, &wg)
	go s.runReader(runCtx, cancel, &wg)
	go s.runWriter(runCtx, cancel, &wg)
	go s.runEventRelay(runCtx, &wg)

	<-runCtx.Done()
	s.pacer.Pause()
	cancel()
	wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

func (s *Session) fail(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.firstErr == nil {
		s.firstErr = err
	}
	s.mu.Unlock()
}

// runHandshake sends empty input reports until the console's first
// output report arrives (or attempts run out), then marks the engine
// connected so its report timer starts.
func (s *Session) runHandshake(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup) {
	defer wg.Done()

	readDone := make(chan struct{})
	go func() {
		if err := s.engine.WaitForFirstRead(ctx); err == nil {
			close(readDone)
		}
	}()

	for i := 0; i < s.attempts; i++ {
		select {
		case <-readDone:
			s.engine.MarkConnected()
			return
		case <-ctx.Done():
			return
		default:
		}
		if err := s.engine.SendEmptyInput(ctx, s.pacer); err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("handshake: failed to send empty input report", "error", err)
				s.fail(err)
				cancel()
			}
			return
		}
		select {
		case <-readDone:
			s.engine.MarkConnected()
			return
		case <-ctx.Done():
			return
		case <-time.After(emptyReportRetryInterval):
		}
	}

	select {
	case <-readDone:
		s.engine.MarkConnected()
	case <-ctx.Done():
	}
}

func (s *Session) runReader(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		if err := s.engine.ProcessOneRead(ctx, s.pacer); err != nil {
			if ctx.Err() == nil {
				s.logger.Error("reader loop stopped", "error", err)
				s.fail(err)
				cancel()
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// runWriter waits for the pairing handshake to reach the point where
// sustained writing should begin (SetPlayerLights), then streams input
// reports at the engine's negotiated cadence until the session ends.
func (s *Session) runWriter(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup) {
	defer wg.Done()
	if err := s.engine.WriterReady(ctx); err != nil {
		return
	}
	for {
		if err := s.engine.ProcessOneWrite(ctx, s.pacer, nil); err != nil {
			if ctx.Err() == nil {
				s.logger.Error("writer loop stopped", "error", err)
				s.fail(err)
				cancel()
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (s *Session) runEventRelay(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	events := s.engine.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.Warning != nil {
				s.logger.Warn("protocol warning", "error", evt.Warning)
			}
			if s.onStateChange != nil {
				s.onStateChange(evt)
			}
		}
	}
}
