// Package network implements the reconnecting uplink transport: a single
// TCP connection shared by one sending and one receiving goroutine, with
// a two-role disconnect protocol that guarantees a connection failure is
// reported exactly once and that a fresh socket is adopted by both
// goroutines atomically, without either one closing a file descriptor the
// other is still blocked on.
//
// Grounded line-for-line on original_source/src/core/network.c. Spec's
// Non-goals exclude uplink encryption, so this dials plain TCP rather
// than the TLS the teacher repo's control_channel.go uses.
package network

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// connState mirrors enum CONN_STATE.
type connState int32

const (
	disconnected connState = iota
	connected
	shuttingDown
)

// transitState mirrors enum TRANSIT_STATE: which role, if any, is the
// current leader of a reconnection in progress.
type transitState int32

const (
	transitNone transitState = iota
	// transitSend: the receiver detected the failure first and leads the
	// reconnect; the sender is the (temporarily unsynchronized) follower.
	transitSend
	// transitRecv: the sender detected the failure first and leads the
	// reconnect; the receiver is the follower.
	transitRecv
)

// role identifies which of Send/Receive is reporting a failure. The
// numeric aliasing to transitState is deliberate and mirrors the
// original's EMIT_BY enum: the role that observes a failure becomes the
// transit leader whose opposite number is now out of sync.
type role int32

const (
	byRecv role = role(transitSend)
	bySend role = role(transitRecv)
)

type action int

const (
	actionNone action = iota
	actionRetry
)

// Dialer opens a fresh connection to the uplink collector. Implementations
// may apply socket-level tuning (DSCP marking, keepalive) before
// returning.
type Dialer func(ctx context.Context) (net.Conn, error)

// Statistics is a read-only snapshot of the network layer's counters.
type Statistics struct {
	ConnectionAttempts uint64
	Disconnects        uint64
	BytesSent          uint64
	BytesReceived      uint64
	OnlineSeconds      float64
	IsOnline           bool
}

// ReconnectInterval is the delay between failed connection attempts.
const ReconnectInterval = 10 * time.Second

// Network owns the uplink connection and its two-role disconnect FSM.
type Network struct {
	dial Dialer

	mu   sync.Mutex
	cond *sync.Cond

	state   connState
	transit transitState

	recvConn net.Conn
	sendConn net.Conn

	sendMu sync.Mutex

	stats      Statistics
	onlineSince time.Time

	// connGen counts each transition into the connected state, so a
	// caller that must re-run per-connection setup (the Login handshake)
	// can tell a fresh connection apart from one it has already acted on.
	connGen int
}

// New returns a Network that dials new connections with dial. Run must be
// called in its own goroutine before Send/Receive are used.
func New(dial Dialer) *Network {
	n := &Network{dial: dial, state: disconnected, transit: transitNone}
	n.cond = sync.NewCond(&n.mu)
	return n
}

// Run is the reconnect mainloop: it dials, installs the fresh connection
// according to the current transit state, announces Connected, and
// blocks until a disconnect is observed, forever until ctx is cancelled.
func (n *Network) Run(ctx context.Context) {
	defer n.shutdown()
	for {
		if ctx.Err() != nil {
			return
		}
		conn, ok := n.connectLoop(ctx)
		if !ok {
			return
		}

		n.mu.Lock()
		switch n.transit {
		case transitNone:
			n.recvConn = conn
			n.sendConn = conn
		case transitRecv:
			n.sendConn = conn
		case transitSend:
			n.recvConn = conn
		}
		n.state = connected
		n.onlineSince = time.Now()
		n.connGen++
		n.cond.Broadcast()

		for n.state != disconnected && ctx.Err() == nil {
			n.waitCond(ctx)
		}
		n.stats.Disconnects++
		shutDown := n.state == shuttingDown
		n.mu.Unlock()

		if shutDown || ctx.Err() != nil {
			return
		}
	}
}

// waitCond waits on the condition variable, waking early if ctx is
// cancelled. Caller holds mu.
func (n *Network) waitCond(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			n.mu.Lock()
			n.cond.Broadcast()
			n.mu.Unlock()
		case <-done:
		}
	}()
	n.cond.Wait()
	close(done)
}

func (n *Network) connectLoop(ctx context.Context) (net.Conn, bool) {
	n.mu.Lock()
	n.stats.ConnectionAttempts++
	n.mu.Unlock()

	for {
		conn, err := n.dial(ctx)
		if err == nil {
			return conn, true
		}
		n.mu.Lock()
		n.stats.Disconnects++
		n.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(ReconnectInterval):
		}
		n.mu.Lock()
		n.stats.ConnectionAttempts++
		n.mu.Unlock()
	}
}

func (n *Network) shutdown() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == connected {
		switch n.transit {
		case transitNone, transitSend:
			closeConn(n.recvConn)
			n.recvConn = nil
		case transitRecv:
			closeConn(n.sendConn)
			n.sendConn = nil
		}
	}
	n.state = shuttingDown
	n.cond.Broadcast()
}

func closeConn(c net.Conn) {
	if c == nil {
		return
	}
	_ = c.Close()
}

// emitDisconnect is the heart of the protocol: it decides, from the
// current state and who is reporting, whether this is a brand new
// failure (promote the reporter to leader), a repeated failure by the
// already-leading role (tear the connection down for real), or the
// follower catching up to a leader that has already reconnected (adopt
// the fresh socket). Returns whether the caller should retry its I/O.
func (n *Network) emitDisconnect(by role) action {
	n.mu.Lock()
	defer n.mu.Unlock()

	var mysock *net.Conn
	var othsock net.Conn
	if by == byRecv {
		mysock, othsock = &n.recvConn, n.sendConn
	} else {
		mysock, othsock = &n.sendConn, n.recvConn
	}

	switch {
	case n.state == connected && n.transit == transitNone:
		// first failure: the reporter becomes the leader. Shut the
		// connection down (not close) so the follower, still blocked on
		// the same fd, also observes the failure.
		shutdownConn(*mysock)
		*mysock = nil
		n.transit = transitState(by)
		n.state = disconnected
		n.stats.OnlineSeconds += time.Since(n.onlineSince).Seconds()
		n.cond.Broadcast()

	case n.state == connected && n.transit == transitState(by):
		// the leader has failed again before the follower noticed the
		// first failure: close for real and go back to disconnected.
		closeConn(*mysock)
		*mysock = nil
		n.state = disconnected
		n.stats.OnlineSeconds += time.Since(n.onlineSince).Seconds()
		n.cond.Broadcast()

	case n.state == connected:
		// the follower has finally seen the failure, but the leader
		// already reconnected: adopt the fresh socket and resynchronize.
		closeConn(*mysock)
		*mysock = othsock
		n.transit = transitNone

	case n.state != shuttingDown && n.transit != transitState(by):
		// not reconnected yet, but the follower has also now seen the
		// failure on its stale socket: finish closing it.
		closeConn(*mysock)
		*mysock = nil
		n.transit = transitNone
	}

	if n.state == connected {
		return actionRetry
	}
	return actionNone
}

// shutdownConn closes the shared net.Conn value so any other goroutine
// still blocked in Read/Write on the very same value observes the
// failure too. Go's net.Conn has no separate half-close-without-releasing
// primitive the way a raw socket's shutdown(2) does, but Close already
// delivers the needed effect: concurrent blocked calls on the same Conn
// unblock with a "use of closed network connection" error.
func shutdownConn(c net.Conn) {
	closeConn(c)
}

// WaitConnected blocks until the network is connected or ctx is done.
func (n *Network) WaitConnected(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for n.state != connected {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n.waitCond(ctx)
	}
	return nil
}

// WaitReconnect blocks until the network is connected with a generation
// newer than last, returning the new generation. Used by callers (the
// Login handshake) that must re-run once per physical connection rather
// than once per call, since WaitConnected alone can't distinguish "still
// connected" from "connected again after a drop".
func (n *Network) WaitReconnect(ctx context.Context, last int) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for n.state != connected || n.connGen == last {
		if ctx.Err() != nil {
			return last, ctx.Err()
		}
		n.waitCond(ctx)
	}
	return n.connGen, nil
}

// ForceDisconnect triggers a reconnect from the sending side. Must only be
// called by the goroutine that otherwise calls Send.
func (n *Network) ForceDisconnect() {
	n.emitDisconnect(bySend)
}

// CheckConnected reports whether the network is connected, from the
// sending side's point of view, emitting a disconnect if it is stale.
func (n *Network) CheckConnected() bool {
	n.mu.Lock()
	emit := n.state != connected || n.transit == transitSend
	n.mu.Unlock()
	if emit {
		n.emitDisconnect(bySend)
		return false
	}
	return true
}

// Send writes the entirety of buf to the uplink, reporting failure
// through the disconnect protocol. Exclusive among callers via sendMu, so
// a single write is never interleaved with another.
func (n *Network) Send(buf []byte) bool {
	n.sendMu.Lock()
	defer n.sendMu.Unlock()
	return n.trySend(buf)
}

func (n *Network) trySend(buf []byte) bool {
	n.mu.Lock()
	conn := n.sendConn
	n.mu.Unlock()
	if conn == nil {
		n.emitDisconnect(bySend)
		return false
	}
	total := len(buf)
	for len(buf) > 0 {
		nw, err := conn.Write(buf)
		if err != nil || nw <= 0 {
			n.emitDisconnect(bySend)
			return false
		}
		buf = buf[nw:]
	}
	n.mu.Lock()
	n.stats.BytesSent += uint64(total)
	n.mu.Unlock()
	return true
}

// SendTimeout behaves like Send but treats conn write deadlines as a
// normal failure report, used by the Relay pipeline's keep-alive path.
func (n *Network) SendTimeout(buf []byte, timeout time.Duration) bool {
	n.sendMu.Lock()
	defer n.sendMu.Unlock()
	n.mu.Lock()
	conn := n.sendConn
	n.mu.Unlock()
	if conn != nil && timeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(timeout))
		defer conn.SetWriteDeadline(time.Time{})
	}
	return n.trySend(buf)
}

// Receive reads into buf, retrying internally while the disconnect
// protocol reports a transient adoption in progress. It returns 0 only
// once the connection is genuinely gone and the caller should wait for a
// fresh one via WaitConnected.
func (n *Network) Receive(buf []byte) (int, error) {
	for {
		n.mu.Lock()
		conn := n.recvConn
		n.mu.Unlock()
		if conn == nil {
			if n.emitDisconnect(byRecv) != actionRetry {
				return 0, nil
			}
			continue
		}
		nr, err := conn.Read(buf)
		if nr > 0 {
			n.mu.Lock()
			n.stats.BytesReceived += uint64(nr)
			n.mu.Unlock()
			return nr, nil
		}
		if err != nil && n.emitDisconnect(byRecv) != actionRetry {
			return 0, err
		}
	}
}

// Stats returns a snapshot of the network layer's counters.
func (n *Network) Stats() Statistics {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.stats
	s.IsOnline = n.state == connected
	if s.IsOnline {
		s.OnlineSeconds += time.Since(n.onlineSince).Seconds()
	}
	return s
}

// DialTCP returns a Dialer that connects to host:port over plain TCP and
// applies the socket tuning in tune (DSCP marking, keepalive), if any.
func DialTCP(host string, port int, tune func(net.Conn) error) Dialer {
	addr := fmt.Sprintf("%s:%d", host, port)
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		if tune != nil {
			if err := tune(conn); err != nil {
				conn.Close()
				return nil, err
			}
		}
		return conn, nil
	}
}
