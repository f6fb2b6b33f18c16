package talkback

// FilterTarget is the subset of *filter.Filter the reconfigure packet
// acts on, kept narrow so talkback does not import the filter package
// directly (mirrors tb.c calling through filter.h's small surface).
type FilterTarget interface {
	SetSynchronizedFilter(enabled bool)
	SetModeSExtSquitter(enabled bool)
	Reset()
}

const (
	filtSyncOnly        = 1 << 0
	filtExtSquitterOnly = 1 << 1
	filtResetSync       = 1 << 7
)

// RegisterFilterReconfigure wires the FILTER packet type to target,
// matching packetConfigureFilter in tb.c: payload[0] is a bitmask of
// which settings are present, payload[1] carries their new values.
func RegisterFilterReconfigure(t *Talkback, target FilterTarget) {
	t.Register(PacketTypeFilter, 2, func(payload []byte) {
		mask, cfg := payload[0], payload[1]
		if mask&filtSyncOnly != 0 {
			target.SetSynchronizedFilter(cfg&filtSyncOnly != 0)
		}
		if mask&filtExtSquitterOnly != 0 {
			target.SetModeSExtSquitter(cfg&filtExtSquitterOnly != 0)
		}
		if mask&filtResetSync != 0 {
			target.Reset()
		}
	})
}
