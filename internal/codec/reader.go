package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/openskynetwork/opensky-sensor-sub000/internal/frame"
)

// payloadLen returns the pre-stuff payload length carried after the
// mlat+siglevel header for a type/1/2/3/4 frame, or -1 if t does not carry
// one (a frame type the uplink never receives from the driver).
func payloadLen(t frame.Type) int {
	switch t {
	case frame.TypeModeAC:
		return 2
	case frame.TypeModeSShort:
		return 7
	case frame.TypeModeSLong:
		return 14
	case frame.TypeStatus:
		return 14
	default:
		return -1
	}
}

// ErrUnknownType is returned by DecodeBody for a type byte the driver
// never legitimately sends (spec §4.1's frameTypeUnknown counter).
var ErrUnknownType = fmt.Errorf("codec: unexpected frame type from input")

// ErrResync is returned by NextFrame when the accumulated buffer did not
// start on a Sync byte. The returned offset is 0; the caller must skip the
// leading bytes itself before trying again.
var ErrResync = fmt.Errorf("codec: buffer did not start on sync byte")

// NextFrame scans buf, which must begin with the leading Sync of a frame,
// for the unescaped Sync that starts the following frame. It returns the
// frame's type, its unstuffed body (mlat+siglevel+payload) and the offset
// of the next frame's leading Sync within buf. ok is false if buf does not
// yet contain a complete frame (the caller should read more and retry).
//
// Grounded on the original input parser's use of BEAST_SYNC as the only
// frame delimiter: a lone, non-doubled Sync always starts a new frame.
func NextFrame(buf []byte, scratch []byte) (t frame.Type, body []byte, next int, ok bool, err error) {
	if len(buf) == 0 {
		return 0, nil, 0, false, nil
	}
	if buf[0] != Sync {
		return 0, nil, 0, false, ErrResync
	}
	if len(buf) < 2 {
		return 0, nil, 0, false, nil
	}
	t = frame.Type(buf[1])

	i := 2
	for {
		if i >= len(buf) {
			return t, nil, 0, false, nil
		}
		j := indexByteFrom(buf, Sync, i)
		if j < 0 {
			return t, nil, 0, false, nil
		}
		if j+1 >= len(buf) {
			return t, nil, 0, false, nil
		}
		if buf[j+1] == Sync {
			// escaped content byte, keep scanning past the pair
			i = j + 2
			continue
		}
		// unescaped Sync at j: that is the next frame
		n := Unstuff(scratch, buf[2:j])
		return t, scratch[:n], j, true, nil
	}
}

func indexByteFrom(buf []byte, b byte, from int) int {
	for k := from; k < len(buf); k++ {
		if buf[k] == b {
			return k
		}
	}
	return -1
}

// DecodeBody interprets an unstuffed frame body according to its type,
// filling in a frame.Decoded. Only type 1/2/3/4 frames (the ones the
// local receiver emits) carry the mlat+siglevel+payload layout; other
// types are not expected from the driver and are rejected.
func DecodeBody(t frame.Type, body []byte) (frame.Decoded, error) {
	want := payloadLen(t)
	if want < 0 {
		return frame.Decoded{}, ErrUnknownType
	}
	if len(body) != 7+want {
		return frame.Decoded{}, fmt.Errorf("codec: short frame body for type %q: got %d want %d", byte(t), len(body), 7+want)
	}
	var d frame.Decoded
	d.Type = t
	var mlatBuf [8]byte
	copy(mlatBuf[2:], body[:6])
	d.MLAT = binary.BigEndian.Uint64(mlatBuf[:])
	d.SigLevel = int8(body[6])
	d.PayloadLen = want
	copy(d.Payload[:want], body[7:7+want])
	return d, nil
}
