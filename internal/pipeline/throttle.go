package pipeline

import (
	"context"

	"golang.org/x/time/rate"
)

// maxBurstBytes caps the token bucket's burst, mirroring the teacher's
// ThrottledWriter (internal/agent/throttle.go): a single oversized Send
// should still be capped to a sane per-call reservation rather than
// stalling on one enormous WaitN.
const maxBurstBytes = 256 * 1024

// Throttle rate-limits the Relay pipeline's uplink sends, matching
// NETWORK.RateLimitBytesPerSec. Grounded on
// nishisan-dev-n-backup/internal/agent/throttle.go's ThrottledWriter,
// adapted from an io.Writer wrapper to a plain byte-count waiter since
// the Relay sends whole frames through Network.Send rather than through
// an io.Writer.
type Throttle struct {
	limiter *rate.Limiter
	burst   int
}

// NewThrottle returns a Throttle capped at bytesPerSec. bytesPerSec <= 0
// disables throttling: Wait always returns immediately.
func NewThrottle(bytesPerSec int64) *Throttle {
	if bytesPerSec <= 0 {
		return &Throttle{}
	}
	burst := int(bytesPerSec)
	if burst > maxBurstBytes {
		burst = maxBurstBytes
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst), burst: burst}
}

// Wait blocks until n bytes' worth of tokens are available, splitting the
// reservation into burst-sized chunks so a single large frame can't
// demand more tokens than the bucket will ever hold.
func (t *Throttle) Wait(ctx context.Context, n int) error {
	if t.limiter == nil {
		return nil
	}
	for n > 0 {
		chunk := n
		if chunk > t.burst {
			chunk = t.burst
		}
		if err := t.limiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
