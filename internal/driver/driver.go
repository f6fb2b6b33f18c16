// Package driver provides the narrow interface the input parser uses to
// talk to the physical receiver, and two concrete implementations: a TCP
// client for dump1090/readsb-style local receivers, and an in-memory stub
// for tests.
//
// Grounded on original_source/src/core/input.h: the spec scopes the real
// receiver driver (UART, FPGA, etc.) out of the core, specifying only
// this read/write contract.
package driver

import (
	"context"
	"net"
)

// Driver is the contract the input parser depends on. Connect/Disconnect
// bracket one physical connection's lifetime; Reconfigure is called when
// the filter's extended-squitter-only policy changes, for drivers that
// can push filtering down to hardware; Read and Write move bytes.
type Driver interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Reconfigure() error
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
}

// TCPDriver dials a host:port TCP endpoint exposing a Beast byte stream,
// the common case for a local dump1090/readsb receiver.
type TCPDriver struct {
	Addr string

	conn net.Conn
}

func NewTCPDriver(addr string) *TCPDriver {
	return &TCPDriver{Addr: addr}
}

func (d *TCPDriver) Connect(ctx context.Context) error {
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return err
	}
	d.conn = conn
	return nil
}

func (d *TCPDriver) Disconnect() error {
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

// Reconfigure is a no-op for a plain TCP receiver: it has no filtering
// capability of its own to push a policy into.
func (d *TCPDriver) Reconfigure() error { return nil }

func (d *TCPDriver) Read(buf []byte) (int, error) {
	if d.conn == nil {
		return 0, net.ErrClosed
	}
	return d.conn.Read(buf)
}

func (d *TCPDriver) Write(buf []byte) (int, error) {
	if d.conn == nil {
		return 0, net.ErrClosed
	}
	return d.conn.Write(buf)
}
