// Package codec implements the Beast binary framing protocol used on the
// local input stream and the uplink: a single escape byte (Sync) doubled
// whenever it appears in frame content, so a reader can always find frame
// boundaries by scanning for Sync.
package codec

import (
	"bytes"

	"github.com/openskynetwork/opensky-sensor-sub000/internal/frame"
)

// Sync is the frame escape/delimiter byte.
const Sync = 0x1a

// Encode appends the byte-stuffed form of src to dst and returns the
// extended slice. Every occurrence of Sync in src is doubled; no other
// byte is touched. Grounded on the bulk-copy-then-duplicate algorithm in
// the original BEAST_encode: find the next Sync with a fast bulk search,
// copy up to and including it, then emit one more Sync, and repeat.
func Encode(dst, src []byte) []byte {
	for {
		i := bytes.IndexByte(src, Sync)
		if i < 0 {
			return append(dst, src...)
		}
		dst = append(dst, src[:i+1]...)
		dst = append(dst, Sync)
		src = src[i+1:]
	}
}

// EncodeMessage builds a full wire message: Sync, type byte, then the
// byte-stuffed payload. Used for login, keepalive and GPS messages sent
// on the uplink.
func EncodeMessage(dst []byte, t frame.Type, payload []byte) []byte {
	dst = append(dst, Sync, byte(t))
	return Encode(dst, payload)
}

// Unstuff reverses byte-stuffing for a single already-delimited frame body
// (the bytes strictly between the leading Sync+Type and the terminating
// Sync of the next frame, with doubled Syncs still present). It writes the
// unstuffed bytes to dst and returns the number written.
func Unstuff(dst, body []byte) int {
	written := 0
	for len(body) > 0 {
		i := bytes.IndexByte(body, Sync)
		if i < 0 {
			written += copy(dst[written:], body)
			return written
		}
		written += copy(dst[written:], body[:i+1])
		// the doubled Sync: skip the duplicate
		body = body[i+2:]
	}
	return written
}
