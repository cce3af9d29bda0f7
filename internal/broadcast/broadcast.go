// Package broadcast implements the beat-event fan-out: a UDP endpoint that
// multiple co-hosted consumer processes can bind concurrently, each
// receiving a copy of every datagram, via SO_REUSEPORT/SO_REUSEADDR. The
// processor has no awareness of how many consumers exist.
//
// Low-level socket-option control follows the same golang.org/x/sys/unix
// approach the reference TNC uses for its own low-level device control
// (ptt.go, cm108.go) — here applied to a socket instead of a serial line.
package broadcast

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"github.com/schuyler/corazonn/internal/wire"
	"golang.org/x/sys/unix"
)

// reusePortControl sets SO_REUSEADDR and SO_REUSEPORT on the raw socket
// before bind, which is what lets every local consumer (monitor, audio
// engine, lighting engine) bind the same port simultaneously.
func reusePortControl(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			sockErr = err
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// Publisher writes beat events to the fan-out port. It never binds that port
// and is never read from: the processor only ever writes here (§9's
// "write-only from emitter tasks" singleton).
type Publisher struct {
	conn *net.UDPConn
	addr *net.UDPAddr
}

// NewPublisher opens a UDP socket for sending beat events to localhost:port.
// The socket is bound to an ephemeral local port, so it is never one of the
// sockets the kernel delivers beat events to.
func NewPublisher(port int) (*Publisher, error) {
	lc := net.ListenConfig{Control: reusePortControl}
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	pc, err := lc.ListenPacket(context.Background(), "udp4", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("broadcast: listen: %w", err)
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("broadcast: unexpected connection type %T", pc)
	}

	raddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("broadcast: resolve %s: %w", addr, err)
	}

	return &Publisher{conn: conn, addr: raddr}, nil
}

// Publish sends one beat event. Send failures are returned for the caller to
// log at debug level per the error-handling design; they never block or
// perturb subsequent sends (UDP send is atomic per datagram, safe from
// multiple concurrent emitter goroutines).
func (p *Publisher) Publish(e wire.BeatEvent) error {
	data, err := wire.EncodeBeatEvent(e)
	if err != nil {
		return fmt.Errorf("broadcast: encode: %w", err)
	}
	if _, err := p.conn.WriteToUDP(data, p.addr); err != nil {
		return fmt.Errorf("broadcast: send: %w", err)
	}
	return nil
}

// Close releases the underlying socket.
func (p *Publisher) Close() error {
	return p.conn.Close()
}

// Subscriber is a reference consumer binding: any local process (the
// monitor, or a real audio/lighting engine) binds the same port the same
// way, with no coordination with the processor required.
type Subscriber struct {
	conn *net.UDPConn
}

// NewSubscriber binds the fan-out port for receiving beat events.
func NewSubscriber(port int) (*Subscriber, error) {
	lc := net.ListenConfig{Control: reusePortControl}
	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("broadcast: listen: %w", err)
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("broadcast: unexpected connection type %T", pc)
	}
	return &Subscriber{conn: conn}, nil
}

// Next blocks for the next beat event.
func (s *Subscriber) Next() (wire.BeatEvent, error) {
	buf := make([]byte, 256)
	n, _, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		return wire.BeatEvent{}, fmt.Errorf("broadcast: receive: %w", err)
	}
	return wire.DecodeBeatEvent(buf[:n])
}

// Close releases the underlying socket.
func (s *Subscriber) Close() error {
	return s.conn.Close()
}
