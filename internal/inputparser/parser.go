// Package inputparser turns the driver's raw byte stream into decoded
// frames, handling byte-stuffing and resynchronization after corrupt
// data. Grounded on original_source/src/core/recv.c's use of the
// INPUT_getFrame contract, and on beast.c/tb.c for the buffer-refill
// style (read more, then re-scan what's accumulated).
package inputparser

import (
	"context"
	"errors"

	"github.com/openskynetwork/opensky-sensor-sub000/internal/codec"
	"github.com/openskynetwork/opensky-sensor-sub000/internal/driver"
	"github.com/openskynetwork/opensky-sensor-sub000/internal/frame"
)

const readChunk = 4096

// Statistics is a read-only snapshot of the parser's counters.
type Statistics struct {
	OutOfSync uint64
	Unknown   uint64
}

// Parser wraps a driver.Driver with the Beast frame scanner.
type Parser struct {
	drv     driver.Driver
	acc     []byte
	scratch []byte
	readBuf []byte

	stats Statistics
}

func New(drv driver.Driver) *Parser {
	return &Parser{
		drv:     drv,
		scratch: make([]byte, frame.MaxRawLen),
		readBuf: make([]byte, readChunk),
	}
}

func (p *Parser) Connect(ctx context.Context) error {
	p.acc = p.acc[:0]
	return p.drv.Connect(ctx)
}

func (p *Parser) Disconnect() error {
	return p.drv.Disconnect()
}

func (p *Parser) Reconfigure() error {
	return p.drv.Reconfigure()
}

func (p *Parser) Stats() Statistics {
	return p.stats
}

// GetFrame returns the next decoded frame plus the exact raw bytes that
// produced it (sync, type and still-stuffed body). ok is false once the
// underlying driver read fails (connection lost); the caller should
// reconnect.
func (p *Parser) GetFrame() (d frame.Decoded, raw frame.Raw, ok bool) {
	for {
		if decoded, rawBytes, done := p.tryParseOne(); done {
			return decoded, rawBytes, true
		}
		n, err := p.drv.Read(p.readBuf)
		if n <= 0 || err != nil {
			return frame.Decoded{}, frame.Raw{}, false
		}
		p.acc = append(p.acc, p.readBuf[:n]...)
	}
}

// tryParseOne attempts to extract and decode one complete frame from the
// accumulator, discarding bad data and resynchronizing as needed. done is
// false if the accumulator doesn't yet hold a complete frame.
func (p *Parser) tryParseOne() (frame.Decoded, frame.Raw, bool) {
	for {
		if len(p.acc) == 0 {
			return frame.Decoded{}, frame.Raw{}, false
		}
		if p.acc[0] != codec.Sync {
			// Not at a frame boundary: scan forward for the next Sync.
			i := 1
			for i < len(p.acc) && p.acc[i] != codec.Sync {
				i++
			}
			p.stats.OutOfSync++
			p.acc = p.acc[i:]
			continue
		}

		t, body, next, ok, err := codec.NextFrame(p.acc, p.scratch)
		if err != nil {
			p.acc = p.acc[1:]
			continue
		}
		if !ok {
			return frame.Decoded{}, frame.Raw{}, false
		}

		d, derr := codec.DecodeBody(t, body)
		if derr != nil {
			// Malformed/truncated frame (e.g. a mid-frame unescaped Sync)
			// or a type byte the driver never legitimately sends: count
			// it and resume scanning from the Sync that terminated it,
			// which is the start of the next frame.
			if errors.Is(derr, codec.ErrUnknownType) {
				p.stats.Unknown++
			} else {
				p.stats.OutOfSync++
			}
			p.acc = p.acc[next:]
			continue
		}

		var raw frame.Raw
		raw.Type = t
		raw.Len = next
		copy(raw.Data[:], p.acc[:next])
		p.acc = p.acc[next:]
		return d, raw, true
	}
}
