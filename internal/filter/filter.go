// Package filter implements the receive-side frame classification policy:
// counting frames by type, tracking synchronization with the local
// receiver's Status stream, and optionally restricting Mode-S traffic to
// extended squitters only.
//
// Grounded on original_source/src/core/filter.c.
package filter

import (
	"sync"

	"github.com/openskynetwork/opensky-sensor-sub000/internal/frame"
)

// downlink format bits for the two "extended squitter" Mode-S formats.
const (
	dfExtendedSquitter              = 17
	dfExtendedSquitterNonTransponder = 18
)

const extSquitterMask = uint64(1)<<dfExtendedSquitter | uint64(1)<<dfExtendedSquitterNonTransponder

// Configuration mirrors the FILTER.* options in the external
// configuration surface.
type Configuration struct {
	CRC                  bool
	ModeSExtSquitterOnly bool
	SyncFilter           bool // require synchronization before passing Mode-S frames
}

// Statistics is a read-only snapshot of the filter's counters.
type Statistics struct {
	FramesByType   [4]uint64 // indexed by typeIndex
	ModeSByType    [32]uint64
	Unknown        uint64
	Filtered       uint64
	ModeSFiltered  uint64
	Unsynchronized uint64
}

// Filter tracks synchronization state and applies the configured policy.
type Filter struct {
	mu            sync.Mutex
	cfg           Configuration
	synchronized  bool
	stats         Statistics

	// OnReconfigure, if set, is invoked after SetModeSExtSquitter changes
	// the policy, so the input driver can be told to reconfigure (e.g. an
	// FPGA-backed receiver that filters in hardware). It must not call
	// back into the Filter.
	OnReconfigure func()
}

// New returns a Filter in the unsynchronized state.
func New(cfg Configuration) *Filter {
	return &Filter{cfg: cfg}
}

// Reset clears synchronization. Called whenever the input connection is
// (re-)established: a fresh Status frame with a non-zero mlat must be
// observed before Mode-S frames pass again.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synchronized = false
}

// SetSynchronizedFilter toggles whether unsynchronized Mode-S frames are
// dropped.
func (f *Filter) SetSynchronizedFilter(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg.SyncFilter = enabled
}

// SetModeSExtSquitter toggles the extended-squitter-only policy and, if
// OnReconfigure is set, notifies the input driver of the change.
func (f *Filter) SetModeSExtSquitter(enabled bool) {
	f.mu.Lock()
	f.cfg.ModeSExtSquitterOnly = enabled
	f.mu.Unlock()
	if f.OnReconfigure != nil {
		f.OnReconfigure()
	}
}

func typeIndex(t frame.Type) (int, bool) {
	switch t {
	case frame.TypeModeAC:
		return 0, true
	case frame.TypeModeSShort:
		return 1, true
	case frame.TypeModeSLong:
		return 2, true
	case frame.TypeStatus:
		return 3, true
	default:
		return 0, false
	}
}

// ObserveStatus marks the filter as synchronized once a Status frame with
// a non-zero mlat timestamp has been seen.
func (f *Filter) ObserveStatus(mlat uint64) {
	if mlat == 0 {
		return
	}
	f.mu.Lock()
	f.synchronized = true
	f.mu.Unlock()
}

// Pass reports whether a decoded frame should be kept, applying the
// filter's counters and policy in the same order as the original:
// count by type, drop unsynchronized traffic if required, drop non
// Mode-S frames from the classification step, count by downlink format,
// then apply the extended-squitter-only policy.
func (f *Filter) Pass(d *frame.Decoded) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx, known := typeIndex(d.Type)
	if !known {
		f.stats.Unknown++
		return false
	}
	f.stats.FramesByType[idx]++

	if !f.synchronized {
		f.stats.Unsynchronized++
		if f.cfg.SyncFilter {
			f.stats.Filtered++
			return false
		}
	}

	if d.Type != frame.TypeModeSShort && d.Type != frame.TypeModeSLong {
		f.stats.Filtered++
		return false
	}

	ftype := d.ModeSField()
	if ftype >= 0 && ftype < len(f.stats.ModeSByType) {
		f.stats.ModeSByType[ftype]++
	}

	if f.cfg.ModeSExtSquitterOnly {
		if ftype < 0 || ftype >= 32 || extSquitterMask&(uint64(1)<<uint(ftype)) == 0 {
			f.stats.ModeSFiltered++
			return false
		}
	}

	return true
}

// Stats returns a snapshot of the filter's counters.
func (f *Filter) Stats() Statistics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}
