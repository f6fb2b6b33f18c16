// Package login implements the device login handshake sent once per
// uplink connection: device identity and version, serial number, GPS fix
// (deferred if not yet available) and an optional username.
//
// Grounded on original_source/src/core/login.c.
package login

import (
	"encoding/binary"
	"log/slog"

	"github.com/openskynetwork/opensky-sensor-sub000/internal/codec"
	"github.com/openskynetwork/opensky-sensor-sub000/internal/frame"
	"github.com/openskynetwork/opensky-sensor-sub000/internal/serialprovider"
)

// MaxUsername is the uplink's hard limit on username length, in bytes.
const MaxUsername = 40

// Sender abstracts the uplink send so login does not depend on the
// network package directly.
type Sender interface {
	Send(buf []byte) bool
}

// GPSPositionSender abstracts the GPS state's deferred-send request.
type GPSPositionSender interface {
	SendPosition()
}

// Identity is the device identity and firmware version announced at
// login.
type Identity struct {
	DeviceType                       uint32
	VersionMajor, VersionMinor, VersionPatch uint32
}

// Config is the Login handshake's configuration (IDENT.* surface).
type Config struct {
	Identity Identity
	Username string
}

// Login runs the handshake over sender, using serial to obtain the
// device's serial number and gps to request the position message.
type Login struct {
	sender Sender
	serial serialprovider.Provider
	gps    GPSPositionSender
	cfg    Config
	log    *slog.Logger
}

func New(sender Sender, serial serialprovider.Provider, gps GPSPositionSender, cfg Config, log *slog.Logger) *Login {
	if log == nil {
		log = slog.Default()
	}
	return &Login{sender: sender, serial: serial, gps: gps, cfg: cfg, log: log}
}

// Run performs the full handshake. It returns false if any required step
// fails, in which case the caller (cmd/feeder's per-connection login
// loop) should retry on the next connection.
func (l *Login) Run() bool {
	if !l.sendDeviceIdentity() {
		return false
	}
	if !l.sendSerial() {
		return false
	}
	l.gps.SendPosition()
	return l.sendUsername()
}

func (l *Login) send(t frame.Type, payload []byte) bool {
	msg := codec.EncodeMessage(nil, t, payload)
	return l.sender.Send(msg)
}

func (l *Login) sendDeviceIdentity() bool {
	var payload [16]byte
	binary.BigEndian.PutUint32(payload[0:4], l.cfg.Identity.DeviceType)
	binary.BigEndian.PutUint32(payload[4:8], l.cfg.Identity.VersionMajor)
	binary.BigEndian.PutUint32(payload[8:12], l.cfg.Identity.VersionMinor)
	binary.BigEndian.PutUint32(payload[12:16], l.cfg.Identity.VersionPatch)
	return l.send('A', payload[:])
}

// sendSerial sends the issued serial if one is already known. If
// acquiring it requires a network round trip, it instead asks the server
// for one via a serial-request message; the server's reply is expected
// to arrive on the talkback channel. A permanent or temporary local
// failure aborts the handshake so it can be retried on the next
// connection.
func (l *Login) sendSerial() bool {
	serial, res := l.serial.GetSerial()
	switch res {
	case serialprovider.Success:
		var payload [4]byte
		binary.BigEndian.PutUint32(payload[:], serial)
		return l.send('5', payload[:])
	case serialprovider.FailNet:
		return l.send('B', nil)
	default:
		l.log.Warn("could not obtain device serial", "result", res)
		return false
	}
}

func (l *Login) sendUsername() bool {
	username := l.cfg.Username
	if username == "" {
		return true
	}
	if len(username) > MaxUsername {
		l.log.Warn("username too long, truncating", "len", len(username), "max", MaxUsername)
		username = username[:MaxUsername]
	}
	return l.send('C', []byte(username))
}
