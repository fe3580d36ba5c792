package transport

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSeqPacketConn is an in-memory SeqPacketConn for tests.
type fakeSeqPacketConn struct {
	mu      sync.Mutex
	writes  [][]byte
	reads   chan []byte
}

func newFakeConn() *fakeSeqPacketConn {
	return &fakeSeqPacketConn{reads: make(chan []byte, 16)}
}

func (f *fakeSeqPacketConn) Recv(buf []byte) (int, error) {
	data := <-f.reads
	return copy(buf, data), nil
}

func (f *fakeSeqPacketConn) Send(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), buf...)
	f.writes = append(f.writes, cp)
	return len(buf), nil
}

func (f *fakeSeqPacketConn) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

// fakeHCISource lets a test push synthetic HCI events.
type fakeHCISource struct {
	events chan []byte
}

func newFakeHCISource() *fakeHCISource {
	return &fakeHCISource{events: make(chan []byte, 16)}
}

func (f *fakeHCISource) Recv(buf []byte) (int, error) {
	ev := <-f.events
	return copy(buf, ev), nil
}

func creditEvent(n uint16) []byte {
	buf := make([]byte, 10)
	binary.LittleEndian.PutUint16(buf[6:8], n)
	return buf
}

func TestCreditExhaustionAndReplenish(t *testing.T) {
	itr := newFakeConn()
	credit := newFakeHCISource()
	supervision := newFakeHCISource()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := New(ctx, Sockets{Interrupt: itr, Credit: credit, Supervision: supervision}, Config{})
	require.NoError(t, err)
	defer p.Close()

	for i := 0; i < DefaultFlowControlPermits; i++ {
		writeCtx, writeCancel := context.WithTimeout(context.Background(), time.Second)
		require.NoError(t, p.Write(writeCtx, []byte{0x01}))
		writeCancel()
	}
	assert.Equal(t, DefaultFlowControlPermits, itr.writeCount())

	blockedCtx, blockedCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	err = p.Write(blockedCtx, []byte{0x02})
	blockedCancel()
	assert.Error(t, err)

	credit.events <- creditEvent(2)
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 2; i++ {
		writeCtx, writeCancel := context.WithTimeout(context.Background(), time.Second)
		require.NoError(t, p.Write(writeCtx, []byte{0x03}))
		writeCancel()
	}
	assert.Equal(t, DefaultFlowControlPermits+2, itr.writeCount())
}

func TestPauseBlocksReadAndWrite(t *testing.T) {
	itr := newFakeConn()
	credit := newFakeHCISource()
	supervision := newFakeHCISource()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := New(ctx, Sockets{Interrupt: itr, Credit: credit, Supervision: supervision}, Config{})
	require.NoError(t, err)
	defer p.Close()

	p.Pause()
	blockedCtx, blockedCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	_, err = p.Read(blockedCtx)
	blockedCancel()
	assert.Error(t, err)

	blockedCtx, blockedCancel = context.WithTimeout(context.Background(), 100*time.Millisecond)
	err = p.Write(blockedCtx, []byte{0x01})
	blockedCancel()
	assert.Error(t, err)
	assert.Equal(t, 0, itr.writeCount())

	p.Resume()
	itr.reads <- []byte{0xAB, 0xCD}
	readCtx, readCancel := context.WithTimeout(context.Background(), time.Second)
	got, err := p.Read(readCtx)
	readCancel()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAB, 0xCD}, got)
}

func TestReaderClosedOnZeroRead(t *testing.T) {
	itr := newFakeConn()
	credit := newFakeHCISource()
	supervision := newFakeHCISource()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := New(ctx, Sockets{Interrupt: itr, Credit: credit, Supervision: supervision}, Config{})
	require.NoError(t, err)
	defer p.Close()

	itr.reads <- []byte{}
	readCtx, readCancel := context.WithTimeout(context.Background(), time.Second)
	_, err = p.Read(readCtx)
	readCancel()
	assert.ErrorIs(t, err, ErrReaderClosed)
}
