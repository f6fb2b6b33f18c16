package network

import (
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// dscpValues maps DSCP names (RFC 2474/4594) to their 6-bit code points.
// The TOS byte written to the socket is the code point shifted left two
// bits (TOS = DSCP<<2 | ECN), ECN left at 0.
var dscpValues = map[string]int{
	"EF":                                46,
	"AF11": 10, "AF12": 12, "AF13": 14,
	"AF21": 18, "AF22": 20, "AF23": 22,
	"AF31": 26, "AF32": 28, "AF33": 30,
	"AF41": 34, "AF42": 36, "AF43": 38,
	"CS0": 0, "CS1": 8, "CS2": 16, "CS3": 24,
	"CS4": 32, "CS5": 40, "CS6": 48, "CS7": 56,
}

// ParseDSCP converts a DSCP name ("AF41", "EF", ...) to its numeric code
// point. An empty name returns 0, nil (DSCP marking disabled).
func ParseDSCP(name string) (int, error) {
	name = strings.TrimSpace(strings.ToUpper(name))
	if name == "" {
		return 0, nil
	}
	val, ok := dscpValues[name]
	if !ok {
		return 0, fmt.Errorf("network: unknown DSCP value %q (valid: EF, AF11..AF43, CS0..CS7)", name)
	}
	return val, nil
}

// TuneUplink returns a socket-tuning function for DialTCP: it marks the
// connection with the given DSCP code point (0 disables marking) and
// enables TCP keepalive, using golang.org/x/sys/unix rather than the raw
// syscall package so the option names stay correct across the kernels the
// feeder's embedded hosts run.
func TuneUplink(dscp int, keepalive time.Duration) func(net.Conn) error {
	return func(conn net.Conn) error {
		tcpConn, ok := conn.(*net.TCPConn)
		if !ok {
			return nil
		}
		if keepalive > 0 {
			if err := tcpConn.SetKeepAlive(true); err != nil {
				return fmt.Errorf("network: enabling keepalive: %w", err)
			}
			if err := tcpConn.SetKeepAlivePeriod(keepalive); err != nil {
				return fmt.Errorf("network: setting keepalive period: %w", err)
			}
		}
		if dscp == 0 {
			return nil
		}
		rawConn, err := tcpConn.SyscallConn()
		if err != nil {
			return fmt.Errorf("network: getting raw conn for DSCP: %w", err)
		}
		tos := dscp << 2
		var sysErr error
		if err := rawConn.Control(func(fd uintptr) {
			sysErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS, tos)
		}); err != nil {
			return fmt.Errorf("network: control fd for DSCP: %w", err)
		}
		if sysErr != nil {
			return fmt.Errorf("network: setsockopt IP_TOS=%d: %w", tos, sysErr)
		}
		return nil
	}
}
