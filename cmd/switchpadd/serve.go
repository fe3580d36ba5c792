package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joyconemu/switchpad/controller"
	"github.com/joyconemu/switchpad/internal/btsock"
	"github.com/joyconemu/switchpad/internal/log"
	"github.com/joyconemu/switchpad/protocol"
	"github.com/joyconemu/switchpad/session"
	"github.com/joyconemu/switchpad/transport"
)

// Control and interrupt HID PSMs, fixed by the Bluetooth HID profile.
const (
	psmControl   = 17
	psmInterrupt = 19
)

// ServeCmd pairs with a console and emulates one controller until it exits
// or the connection drops.
type ServeCmd struct {
	Kind         string `help:"Controller kind: pro, joycon_l, joycon_r" default:"pro" enum:"pro,joycon_l,joycon_r"`
	LocalAddress string `help:"Local Bluetooth adapter address (colon-hex)" required:""`
	HCIDevice    uint16 `help:"HCI device index for the credit/supervision raw sockets" default:"0"`
	Reconnect    bool   `help:"Keep re-pairing after the console disconnects" default:"false"`

	FlowControlPermits int `help:"Initial L2CAP write credit window" default:"4"`

	RawLog string `help:"Write a hex dump of every interrupt-channel packet to this file" env:"SWITCHPAD_RAW_LOG"`
}

func (s *ServeCmd) kind() (controller.Kind, error) {
	switch s.Kind {
	case "pro":
		return controller.ProController, nil
	case "joycon_l":
		return controller.JoyConL, nil
	case "joycon_r":
		return controller.JoyConR, nil
	default:
		return 0, fmt.Errorf("unknown controller kind %q", s.Kind)
	}
}

// Run is invoked by Kong.
func (s *ServeCmd) Run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kind, err := s.kind()
	if err != nil {
		return err
	}
	local, err := controller.ParseAddress(s.LocalAddress)
	if err != nil {
		return fmt.Errorf("invalid local address: %w", err)
	}

	for {
		if err := s.runOnce(ctx, kind, local, logger); err != nil {
			return err
		}
		if !s.Reconnect || ctx.Err() != nil {
			return nil
		}
		logger.Info("console disconnected, waiting for a new pairing")
	}
}

func (s *ServeCmd) runOnce(ctx context.Context, kind controller.Kind, local controller.Address, logger *slog.Logger) error {
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

	logger.Info("waiting for console pairing", "kind", kind, "local", local)
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

	var itrTransport transport.SeqPacketConn = itrConn
	if s.RawLog != "" {
		f, err := os.OpenFile(s.RawLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open raw log: %w", err)
		}
		defer f.Close()
		itrTransport = rawLoggingConn{SeqPacketConn: itrConn, raw: log.NewRaw(f)}
	}

	creditSock, err := btsock.OpenHCIFiltered(s.HCIDevice, 0x13) // HCI_EV_NUM_COMPLETED_PKTS
	if err != nil {
		return fmt.Errorf("open credit hci socket: %w", err)
	}
	defer creditSock.Close()

	supervisionSock, err := btsock.OpenHCIFiltered(s.HCIDevice, 0x1B) // HCI_EV_MAX_SLOTS_CHANGE
	if err != nil {
		return fmt.Errorf("open supervision hci socket: %w", err)
	}
	defer supervisionSock.Close()

	pacer, err := transport.New(ctx, transport.Sockets{
		Interrupt:   itrTransport,
		Credit:      creditSock,
		Supervision: supervisionSock,
	}, transport.Config{
		FlowControlPermits: s.FlowControlPermits,
		Logger:             logger,
	})
	if err != nil {
		return fmt.Errorf("start transport pacer: %w", err)
	}
	defer pacer.Close()

	engine, err := protocol.New(protocol.Config{
		Kind:         kind,
		LocalAddress: local,
		Reconnect:    s.Reconnect,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("start protocol engine: %w", err)
	}

	sess := session.New(session.Config{
		Pacer:  pacer,
		Engine: engine,
		Logger: logger,
	})

	logger.Info("console connected, starting session")
	return sess.Run(ctx)
}
