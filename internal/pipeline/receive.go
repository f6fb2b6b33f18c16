// Package pipeline wires the input parser, filter and buffer into the
// Receive loop, and the buffer, network and throttle into the Relay loop
// — the two goroutines a running feeder actually spends its life in.
//
// Grounded on original_source/src/core/recv.c (Receive) and
// original_source/src/core/relay.c (Relay).
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/openskynetwork/opensky-sensor-sub000/internal/buffer"
	"github.com/openskynetwork/opensky-sensor-sub000/internal/filter"
	"github.com/openskynetwork/opensky-sensor-sub000/internal/frame"
	"github.com/openskynetwork/opensky-sensor-sub000/internal/inputparser"
)

// reconnectDelay bounds how fast Receive retries a failed Connect, so a
// driver that fails immediately doesn't spin the CPU.
const reconnectDelay = time.Second

// Receive owns the input side: connect the parser's driver, reset the
// filter's synchronization state (a fresh connection means Mode-S frames
// are unsynchronized until a new Status frame arrives), then pull decoded
// frames until the driver disconnects, classifying and committing each
// one to buf.
func Receive(ctx context.Context, parser *inputparser.Parser, filt *filter.Filter, buf *buffer.Buffer, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	for ctx.Err() == nil {
		if err := parser.Connect(ctx); err != nil {
			log.Warn("input connect failed, retrying", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}
		filt.Reset()

		for ctx.Err() == nil {
			d, raw, ok := parser.GetFrame()
			if !ok {
				break
			}
			if d.Type == frame.TypeStatus {
				filt.ObserveStatus(d.MLAT)
			}
			if !filt.Pass(&d) {
				continue
			}

			slot := buf.NewFrame()
			slot.Decoded = d
			slot.Raw = raw
			buf.CommitFrame(slot)
		}

		if err := parser.Disconnect(); err != nil {
			log.Warn("input disconnect failed", "error", err)
		}
	}
}
