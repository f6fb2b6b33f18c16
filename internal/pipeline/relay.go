package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/openskynetwork/opensky-sensor-sub000/internal/buffer"
	"github.com/openskynetwork/opensky-sensor-sub000/internal/codec"
	"github.com/openskynetwork/opensky-sensor-sub000/internal/frame"
	"github.com/openskynetwork/opensky-sensor-sub000/internal/network"
)

// keepAliveType is the uplink's type '6' keep-alive message: empty
// payload, sent whenever GetFrameTimeout comes back empty.
const keepAliveType frame.Type = '6'

// Sender is the subset of *network.Network the Relay pipeline drives.
type Sender interface {
	WaitConnected(ctx context.Context) error
	Send(buf []byte) bool
	SendTimeout(buf []byte, timeout time.Duration) bool
}

// Relay owns the output side: wait for the uplink to connect, drop any
// history the buffer was holding if History mode is off, then forward
// committed frames one at a time, falling back to a keep-alive when
// nothing is queued within the configured timeout.
//
// Grounded on original_source/src/core/relay.c.
func Relay(ctx context.Context, buf *buffer.Buffer, net Sender, keepAliveInterval time.Duration, throttle *Throttle, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	if throttle == nil {
		throttle = NewThrottle(0)
	}

	for ctx.Err() == nil {
		if err := net.WaitConnected(ctx); err != nil {
			return
		}
		buf.FlushUnlessHistory()

		for ctx.Err() == nil {
			slot, err := buf.GetFrameTimeout(ctx, keepAliveInterval)
			if err != nil {
				return
			}
			if slot == nil {
				msg := codec.EncodeMessage(nil, keepAliveType, nil)
				if !net.SendTimeout(msg, keepAliveInterval) {
					break // connection lost: re-enter WaitConnected
				}
				continue
			}

			wire := slot.Raw.Bytes()
			if err := throttle.Wait(ctx, len(wire)); err != nil {
				buf.PutFrame(slot)
				return
			}
			if !net.Send(wire) {
				buf.PutFrame(slot)
				log.Warn("relay send failed, frame returned to queue head")
				break
			}
			buf.ReleaseFrame(slot)
		}
	}
}

var _ Sender = (*network.Network)(nil)
