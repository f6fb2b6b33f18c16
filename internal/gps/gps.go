// Package gps holds the feeder's last known GPS position and defers
// sending it to the uplink until both a fix is available and someone has
// actually asked for it (the Login handshake, or a later fix update while
// a send is still pending).
//
// Grounded on original_source/src/core/gps.c.
package gps

import (
	"math"
	"sync"

	"github.com/openskynetwork/opensky-sensor-sub000/internal/codec"
	"github.com/openskynetwork/opensky-sensor-sub000/internal/frame"
)

// Sender abstracts the uplink send so gps does not depend on the network
// package directly.
type Sender interface {
	Send(buf []byte) bool
}

// State is the thread-safe GPS position holder.
type State struct {
	mu sync.Mutex

	sender Sender

	lat, lon, alt float64
	hasPosition   bool
	hasFix        bool
	needPosition  bool
}

func New(sender Sender) *State {
	return &State{sender: sender}
}

// SetPosition updates the last known coordinates, independent of fix
// status, and sends them if a send is pending and a fix is present.
func (s *State) SetPosition(lat, lon, alt float64) {
	s.mu.Lock()
	s.lat, s.lon, s.alt = lat, lon, alt
	s.hasPosition = true
	s.mu.Unlock()
	s.sendIfAvailable()
}

// SetPositionWithFix updates the coordinates and marks a fix present in
// one step, then sends if a send is pending.
func (s *State) SetPositionWithFix(lat, lon, alt float64) {
	s.mu.Lock()
	s.lat, s.lon, s.alt = lat, lon, alt
	s.hasPosition = true
	s.hasFix = true
	s.mu.Unlock()
	s.sendIfAvailable()
}

// SetHasFix updates fix status independent of position (e.g. the GPS
// receiver reports loss of fix while position tracking continues).
func (s *State) SetHasFix(hasFix bool) {
	s.mu.Lock()
	s.hasFix = hasFix
	s.mu.Unlock()
	if hasFix {
		s.sendIfAvailable()
	}
}

// SendPosition is called by Login: it requests a send, sending
// immediately if position and fix are both already available, deferring
// otherwise (needPosition stays true until a later Set* call completes
// the send).
func (s *State) SendPosition() {
	s.mu.Lock()
	s.needPosition = true
	ready := s.hasPosition && s.hasFix
	lat, lon, alt := s.lat, s.lon, s.alt
	s.mu.Unlock()
	if ready {
		s.doSend(lat, lon, alt)
	}
}

// sendIfAvailable sends only if a send is pending and both position and
// fix are available; on send failure the request remains pending so a
// later Set* call retries it.
func (s *State) sendIfAvailable() {
	s.mu.Lock()
	if !s.needPosition || !s.hasPosition || !s.hasFix {
		s.mu.Unlock()
		return
	}
	lat, lon, alt := s.lat, s.lon, s.alt
	s.mu.Unlock()
	s.doSend(lat, lon, alt)
}

// doSend encodes and sends without holding the mutex, matching the
// original's care not to block other GPS updates behind a network send.
func (s *State) doSend(lat, lon, alt float64) {
	var payload [24]byte
	binEnc(payload[0:8], lat)
	binEnc(payload[8:16], lon)
	binEnc(payload[16:24], alt)

	msg := codec.EncodeMessage(nil, frame.Type('7'), payload[:])
	if s.sender.Send(msg) {
		s.mu.Lock()
		s.needPosition = false
		s.mu.Unlock()
	}
}

func binEnc(dst []byte, v float64) {
	bits := math.Float64bits(v)
	for i := 0; i < 8; i++ {
		dst[i] = byte(bits >> uint(56-8*i))
	}
}
