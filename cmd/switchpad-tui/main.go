// Command switchpad-tui is an interactive demo that maps keystrokes to a
// live controller.State against a running emulation session: WASD/Shift-WASD
// for the left/right stick, space to recenter both, a fixed keymap for face
// and system buttons, q or Ctrl-C to quit.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/joyconemu/switchpad/controller"
	"github.com/joyconemu/switchpad/internal/btsock"
	"github.com/joyconemu/switchpad/internal/log"
	"github.com/joyconemu/switchpad/protocol"
	"github.com/joyconemu/switchpad/session"
	"github.com/joyconemu/switchpad/transport"
)

const (
	psmControl   = 17
	psmInterrupt = 19
)

// keymap maps a single keystroke to the button it toggles. Held-until-
// released state isn't observable from a raw terminal a keystroke at a
// time, so every key press is a brief tap: press then release.
var keymap = map[rune]controller.ButtonKey{
	'j': controller.B,
	'k': controller.A,
	'u': controller.Y,
	'i': controller.X,
	'n': controller.Minus,
	'm': controller.Plus,
	'h': controller.Home,
	'g': controller.Capture,
	'q': 0, // handled separately as quit
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: switchpad-tui <local-address>")
		os.Exit(1)
	}
	local, err := controller.ParseAddress(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid local address:", err)
		os.Exit(1)
	}

	logger, _, err := log.SetupLogger("info", "")
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger setup failed:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, local, logger.With("component", "tui")); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, local controller.Address, logger interface {
	Info(string, ...any)
	Error(string, ...any)
}) error {
	ctrlListener, err := btsock.ListenL2CAP(local, psmControl)
	if err != nil {
		return fmt.Errorf("listen control psm: %w", err)
	}
	defer ctrlListener.Close()
	itrListener, err := btsock.ListenL2CAP(local, psmInterrupt)
	if err != nil {
		return fmt.Errorf("listen interrupt psm: %w", err)
	}
	defer itrListener.Close()

	logger.Info("waiting for console to pair")
	ctrlConn, err := ctrlListener.Accept()
	if err != nil {
		return fmt.Errorf("accept control psm: %w", err)
	}
	defer ctrlConn.Close()
	itrConn, err := itrListener.Accept()
	if err != nil {
		return fmt.Errorf("accept interrupt psm: %w", err)
	}
	defer itrConn.Close()

	creditSock, err := btsock.OpenHCIFiltered(0, 0x13)
	if err != nil {
		return fmt.Errorf("open credit hci socket: %w", err)
	}
	defer creditSock.Close()
	supervisionSock, err := btsock.OpenHCIFiltered(0, 0x1B)
	if err != nil {
		return fmt.Errorf("open supervision hci socket: %w", err)
	}
	defer supervisionSock.Close()

	pacer, err := transport.New(ctx, transport.Sockets{
		Interrupt:   itrConn,
		Credit:      creditSock,
		Supervision: supervisionSock,
	}, transport.Config{})
	if err != nil {
		return fmt.Errorf("start transport pacer: %w", err)
	}
	defer pacer.Close()

	engine, err := protocol.New(protocol.Config{Kind: controller.ProController, LocalAddress: local})
	if err != nil {
		return fmt.Errorf("start protocol engine: %w", err)
	}

	sess := session.New(session.Config{Pacer: pacer, Engine: engine})

	sessionDone := make(chan error, 1)
	go func() { sessionDone <- sess.Run(ctx) }()

	inputDone := make(chan error, 1)
	go func() { inputDone <- readKeystrokes(ctx, engine) }()

	select {
	case err := <-sessionDone:
		return err
	case err := <-inputDone:
		if err != nil {
			logger.Error("keyboard input loop stopped", "error", err)
		}
		<-sessionDone
		return nil
	case <-ctx.Done():
		<-sessionDone
		return nil
	}
}

// readKeystrokes puts the terminal in raw mode and translates each
// keystroke into a button tap on the engine's live controller state.
func readKeystrokes(ctx context.Context, engine *protocol.Engine) error {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("enter raw terminal mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	r := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		ch, _, err := r.ReadRune()
		if err != nil {
			return err
		}
		if ch == 'q' || ch == 3 { // q or Ctrl-C
			return nil
		}
		if key, ok := keymap[ch]; ok && ch != 'q' {
			tapButton(ctx, engine, key)
		}
		applyStickKey(ctx, engine, ch)
	}
}

func tapButton(ctx context.Context, engine *protocol.Engine, key controller.ButtonKey) {
	_ = engine.MutateControllerState(ctx, func(st *controller.State) {
		_ = st.Buttons.Set(key, true)
	})
	_ = engine.MutateControllerState(ctx, func(st *controller.State) {
		_ = st.Buttons.Set(key, false)
	})
}

func applyStickKey(ctx context.Context, engine *protocol.Engine, ch rune) {
	_ = engine.MutateControllerState(ctx, func(st *controller.State) {
		switch ch {
		case 'w':
			_ = st.Left.SetUp()
		case 's':
			_ = st.Left.SetDown()
		case 'a':
			_ = st.Left.SetLeft()
		case 'd':
			_ = st.Left.SetRight()
		case 'W':
			_ = st.Right.SetUp()
		case 'S':
			_ = st.Right.SetDown()
		case 'A':
			_ = st.Right.SetLeft()
		case 'D':
			_ = st.Right.SetRight()
		case ' ':
			_ = st.Left.ResetToCenter()
			_ = st.Right.ResetToCenter()
		}
	})
}
