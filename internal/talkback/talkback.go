// Package talkback implements the downlink control channel: short,
// length-prefixed packets (not byte-stuffed, unlike the uplink) that the
// server uses to reconfigure the running feeder. Only the filter
// reconfiguration packet is part of the core; packet types that would
// start a reverse shell or trigger a restart/reboot/upgrade are
// explicitly out of scope and are simply reported as unknown.
//
// Grounded on original_source/src/core/tb.c.
package talkback

import (
	"context"
	"encoding/binary"
	"log/slog"
)

const (
	bufSize    = 128
	headerSize = 4
	minPacket  = 4
	maxPacket  = 128
)

// PacketType identifies a talkback packet; only PacketTypeFilter has a
// registered handler in the core.
type PacketType uint16

const PacketTypeFilter PacketType = 4

// ProcessorFn handles one packet's payload.
type ProcessorFn func(payload []byte)

// Receiver abstracts the network layer's downlink read and connection
// wait, so talkback does not depend on the network package directly.
type Receiver interface {
	WaitConnected(ctx context.Context) error
	Receive(buf []byte) (int, error)
}

type processor struct {
	payloadLen int
	fn         ProcessorFn
}

// Talkback dispatches incoming control packets to registered processors.
type Talkback struct {
	recv       Receiver
	processors map[PacketType]processor
	log        *slog.Logger
}

func New(recv Receiver, log *slog.Logger) *Talkback {
	if log == nil {
		log = slog.Default()
	}
	return &Talkback{recv: recv, processors: make(map[PacketType]processor), log: log}
}

// Register installs a handler for a packet type. Packets whose payload
// length does not match payloadLen are discarded with a warning rather
// than dispatched.
func (t *Talkback) Register(typ PacketType, payloadLen int, fn ProcessorFn) {
	t.processors[typ] = processor{payloadLen: payloadLen, fn: fn}
}

// Run reads and dispatches control packets until ctx is cancelled. Each
// new connection resets the accumulation buffer, since a partial packet
// from a dropped connection can never be completed.
func (t *Talkback) Run(ctx context.Context) {
	buf := make([]byte, 0, bufSize)
	readBuf := make([]byte, bufSize)
	for ctx.Err() == nil {
		if err := t.recv.WaitConnected(ctx); err != nil {
			return
		}
		buf = buf[:0]

		for {
			buf = t.drain(buf)

			n, err := t.recv.Receive(readBuf[:bufSize-len(buf)])
			if err != nil || n <= 0 {
				break // connection lost: wait for the next one
			}
			buf = append(buf, readBuf[:n]...)
		}
	}
}

// drain processes every complete packet currently in buf, returning the
// remaining unconsumed bytes.
func (t *Talkback) drain(buf []byte) []byte {
	for len(buf) >= headerSize {
		typ := PacketType(binary.BigEndian.Uint16(buf[0:2]))
		length := int(binary.BigEndian.Uint16(buf[2:4]))
		if length > maxPacket || length < minPacket {
			t.log.Warn("malformed talkback packet, resetting buffer", "type", typ, "len", length)
			return buf[:0]
		}
		if len(buf) < length {
			break // incomplete: wait for more data
		}
		t.process(typ, buf[headerSize:length])
		buf = buf[length:]
	}
	return buf
}

func (t *Talkback) process(typ PacketType, payload []byte) {
	p, ok := t.processors[typ]
	if !ok {
		t.log.Warn("unknown talkback packet type", "type", typ)
		return
	}
	if len(payload) != p.payloadLen {
		t.log.Warn("talkback packet size mismatch, discarding", "type", typ, "len", len(payload))
		return
	}
	p.fn(payload)
}
