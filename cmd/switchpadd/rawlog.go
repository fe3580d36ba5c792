package main

import (
	"github.com/joyconemu/switchpad/internal/log"
	"github.com/joyconemu/switchpad/transport"
)

// rawLoggingConn wraps a transport.SeqPacketConn, mirroring every packet
// through a log.RawLogger before returning it to the caller -- a hex-dump
// trace of exactly what crossed the interrupt channel, for diagnosing
// pairing issues against a real console.
type rawLoggingConn struct {
	transport.SeqPacketConn
	raw log.RawLogger
}

func (c rawLoggingConn) Recv(buf []byte) (int, error) {
	n, err := c.SeqPacketConn.Recv(buf)
	if n > 0 {
		c.raw.Log(true, buf[:n])
	}
	return n, err
}

func (c rawLoggingConn) Send(buf []byte) (int, error) {
	n, err := c.SeqPacketConn.Send(buf)
	if n > 0 {
		c.raw.Log(false, buf[:n])
	}
	return n, err
}
