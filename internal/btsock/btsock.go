// Package btsock opens the real AF_BLUETOOTH sockets the pacer drives:
// an L2CAP SEQPACKET connection per PSM, and HCI raw sockets filtered
// down to one event type each. golang.org/x/sys/unix carries the generic
// socket syscalls but none of the Bluetooth address family constants, so
// those are declared here from the kernel's bluetooth.h/hci.h/l2cap.h.
package btsock

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/joyconemu/switchpad/controller"
)

// Bluetooth address family and protocol numbers (linux/bluetooth.h).
const (
	afBluetooth  = 31
	btprotoL2CAP = 0
	btprotoHCI   = 1
)

// L2CAP socket option levels/names (linux/l2cap.h).
const (
	solL2CAP  = 6
	l2capOMTU = 1
)

// HCI raw socket option + filter layout (linux/hci.h).
const (
	solHCI         = 0
	hciFilter      = 2
	hciChannelRaw  = 0
	hciEventPkt    = 0x04
	hciFilterSize  = 32 // sizeof(struct hci_filter): type_mask, event_mask[2], opcode
	hciDevIDNone   = 0xffff
)

// sockaddrL2 mirrors struct sockaddr_l2 (linux/l2cap.h): family, psm,
// 6-byte address, cid, address type. Field order and widths matter; this
// is written to the kernel via raw bind()/connect(), not through a Go
// struct that the compiler lays out for us.
type sockaddrL2 struct {
	family     uint16
	psm        uint16
	bdaddr     [6]byte
	cid        uint16
	bdaddrType uint8
	_          [1]byte // alignment pad, matches the kernel struct
}

func (s *sockaddrL2) raw() (unsafe.Pointer, uint32) {
	return unsafe.Pointer(s), uint32(unsafe.Sizeof(*s))
}

// sockaddrHCI mirrors struct sockaddr_hci (linux/hci.h): family, device
// index, channel.
type sockaddrHCI struct {
	family  uint16
	dev     uint16
	channel uint16
}

func (s *sockaddrHCI) raw() (unsafe.Pointer, uint32) {
	return unsafe.Pointer(s), uint32(unsafe.Sizeof(*s))
}

// hciFilterBytes builds the 32-byte struct hci_filter value that keeps
// only events of kind eventType (e.g. HCI_EV_NUM_COMPLETED_PKTS or
// HCI_EV_MAX_SLOTS_CHANGE) flowing through a raw HCI socket.
func hciFilterBytes(eventType byte) [hciFilterSize]byte {
	var f [hciFilterSize]byte
	// type_mask: only HCI event packets.
	f[0] = 1 << hciEventPkt
	// event_mask is a 64-bit bitmap split across two uint32 words
	// starting at offset 4; eventType selects the bit within it.
	bit := uint(eventType)
	word := 4 + (bit/32)*4
	shift := bit % 32
	if shift < 8 {
		f[word] |= byte(1 << shift)
	} else {
		f[word+shift/8] |= byte(1 << (shift % 8))
	}
	return f
}

func sysBind(fd int, ptr unsafe.Pointer, n uint32) error {
	_, _, errno := unix.Syscall(unix.SYS_BIND, uintptr(fd), uintptr(ptr), uintptr(n))
	if errno != 0 {
		return errno
	}
	return nil
}

func sysConnect(fd int, ptr unsafe.Pointer, n uint32) error {
	_, _, errno := unix.Syscall(unix.SYS_CONNECT, uintptr(fd), uintptr(ptr), uintptr(n))
	if errno != 0 {
		return errno
	}
	return nil
}

func sysAccept(fd int) (int, error) {
	nfd, _, errno := unix.Syscall(unix.SYS_ACCEPT, uintptr(fd), 0, 0)
	if errno != 0 {
		return -1, errno
	}
	return int(nfd), nil
}

// L2CAPListener binds and listens on a single PSM, accepting one
// SEQPACKET connection at a time -- matching a Switch pairing session,
// which only ever has one console attached to the control/interrupt
// channels.
type L2CAPListener struct {
	fd  int
	psm uint16
}

// ListenL2CAP binds local to psm on a SEQPACKET L2CAP socket and starts
// listening for a single incoming connection.
func ListenL2CAP(local controller.Address, psm uint16) (*L2CAPListener, error) {
	fd, err := unix.Socket(afBluetooth, unix.SOCK_SEQPACKET, btprotoL2CAP)
	if err != nil {
		return nil, fmt.Errorf("btsock: socket: %w", err)
	}
	addr := sockaddrL2{family: afBluetooth, psm: psm, bdaddr: local.LittleEndianBytes()}
	ptr, n := addr.raw()
	if err := sysBind(fd, ptr, n); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("btsock: bind psm %d: %w", psm, err)
	}
	if err := unix.Listen(fd, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("btsock: listen psm %d: %w", psm, err)
	}
	return &L2CAPListener{fd: fd, psm: psm}, nil
}

// Accept blocks until a console connects to this PSM and returns a
// transport.SeqPacketConn wrapping the accepted socket.
func (l *L2CAPListener) Accept() (*L2CAPConn, error) {
	nfd, err := sysAccept(l.fd)
	if err != nil {
		return nil, fmt.Errorf("btsock: accept psm %d: %w", l.psm, err)
	}
	return &L2CAPConn{fd: nfd}, nil
}

// Close releases the listening socket.
func (l *L2CAPListener) Close() error { return unix.Close(l.fd) }

// L2CAPConn is a connected SEQPACKET L2CAP socket. It satisfies
// transport.SeqPacketConn.
type L2CAPConn struct{ fd int }

// DialL2CAP actively connects to remote's psm, for the (less common)
// case where this side initiates instead of accepting.
func DialL2CAP(local, remote controller.Address, psm uint16) (*L2CAPConn, error) {
	fd, err := unix.Socket(afBluetooth, unix.SOCK_SEQPACKET, btprotoL2CAP)
	if err != nil {
		return nil, fmt.Errorf("btsock: socket: %w", err)
	}
	localAddr := sockaddrL2{family: afBluetooth, psm: psm, bdaddr: local.LittleEndianBytes()}
	ptr, n := localAddr.raw()
	if err := sysBind(fd, ptr, n); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("btsock: bind: %w", err)
	}
	remoteAddr := sockaddrL2{family: afBluetooth, psm: psm, bdaddr: remote.LittleEndianBytes()}
	ptr, n = remoteAddr.raw()
	if err := sysConnect(fd, ptr, n); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("btsock: connect psm %d: %w", psm, err)
	}
	return &L2CAPConn{fd: fd}, nil
}

// Recv implements transport.SeqPacketConn.
func (c *L2CAPConn) Recv(buf []byte) (int, error) {
	n, err := unix.Read(c.fd, buf)
	if err != nil {
		return 0, fmt.Errorf("btsock: recv: %w", err)
	}
	return n, nil
}

// Send implements transport.SeqPacketConn.
func (c *L2CAPConn) Send(buf []byte) (int, error) {
	n, err := unix.Write(c.fd, buf)
	if err != nil {
		return 0, fmt.Errorf("btsock: send: %w", err)
	}
	return n, nil
}

// Close closes the underlying socket, unblocking any goroutine blocked
// in Recv -- this is the only thing that can unblock it, since Recv has
// no context-cancellation of its own.
func (c *L2CAPConn) Close() error { return unix.Close(c.fd) }

// HCISocket is a raw HCI socket filtered down to one event type. It
// satisfies transport.HCIEventSource.
type HCISocket struct{ fd int }

// OpenHCIFiltered opens a raw HCI socket on devID (or hciDevIDNone for
// "any adapter") and installs a filter keeping only events of eventType,
// e.g. HCI_EV_NUM_COMPLETED_PKTS (0x13) for the credit monitor or
// HCI_EV_MAX_SLOTS_CHANGE (0x1B) for the link-supervision monitor.
func OpenHCIFiltered(devID uint16, eventType byte) (*HCISocket, error) {
	fd, err := unix.Socket(afBluetooth, unix.SOCK_RAW, btprotoHCI)
	if err != nil {
		return nil, fmt.Errorf("btsock: socket: %w", err)
	}
	filter := hciFilterBytes(eventType)
	if err := unix.SetsockoptString(fd, solHCI, hciFilter, string(filter[:])); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("btsock: setsockopt HCI_FILTER: %w", err)
	}
	addr := sockaddrHCI{family: afBluetooth, dev: devID, channel: hciChannelRaw}
	ptr, n := addr.raw()
	if err := sysBind(fd, ptr, n); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("btsock: bind hci: %w", err)
	}
	return &HCISocket{fd: fd}, nil
}

// Recv implements transport.HCIEventSource.
func (h *HCISocket) Recv(buf []byte) (int, error) {
	n, err := unix.Read(h.fd, buf)
	if err != nil {
		return 0, fmt.Errorf("btsock: hci recv: %w", err)
	}
	return n, nil
}

// Close closes the underlying socket, unblocking any pending Recv.
func (h *HCISocket) Close() error { return unix.Close(h.fd) }
