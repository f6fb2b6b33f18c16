package filter

import (
	"testing"

	"github.com/openskynetwork/opensky-sensor-sub000/internal/frame"
)

func modeS(df int) frame.Decoded {
	var d frame.Decoded
	d.Type = frame.TypeModeSLong
	d.PayloadLen = 14
	d.Payload[0] = byte(df << 3)
	return d
}

func TestNoModeSPassesUntilSynchronized(t *testing.T) {
	f := New(Configuration{SyncFilter: true})
	d := modeS(17)
	if f.Pass(&d) {
		t.Fatal("frame passed before synchronization")
	}
	f.ObserveStatus(0) // zero mlat: must not synchronize
	if f.Pass(&d) {
		t.Fatal("frame passed after zero-mlat status")
	}
	f.ObserveStatus(12345)
	if !f.Pass(&d) {
		t.Fatal("frame should pass once synchronized")
	}
}

func TestResetClearsSynchronization(t *testing.T) {
	f := New(Configuration{SyncFilter: true})
	f.ObserveStatus(1)
	d := modeS(17)
	if !f.Pass(&d) {
		t.Fatal("expected pass while synchronized")
	}
	f.Reset()
	if f.Pass(&d) {
		t.Fatal("expected drop immediately after reset")
	}
}

func TestExtSquitterOnlyPolicy(t *testing.T) {
	f := New(Configuration{ModeSExtSquitterOnly: true})
	f.ObserveStatus(1)
	pass := modeS(17)
	if !f.Pass(&pass) {
		t.Fatal("DF17 should pass under ext-squitter-only policy")
	}
	drop := modeS(4)
	if f.Pass(&drop) {
		t.Fatal("DF4 should be dropped under ext-squitter-only policy")
	}
	if f.Stats().ModeSFiltered != 1 {
		t.Fatalf("modeSFiltered = %d, want 1", f.Stats().ModeSFiltered)
	}
}

func TestNonModeSFramesAreDropped(t *testing.T) {
	f := New(Configuration{ModeSExtSquitterOnly: true})
	f.ObserveStatus(1)
	var status frame.Decoded
	status.Type = frame.TypeStatus
	if f.Pass(&status) {
		t.Fatal("status frames are never forwarded, only Mode-S short/long")
	}
	if f.Stats().Filtered != 1 {
		t.Fatalf("filtered = %d, want 1", f.Stats().Filtered)
	}

	var modeAC frame.Decoded
	modeAC.Type = frame.TypeModeAC
	if f.Pass(&modeAC) {
		t.Fatal("mode-AC frames are never forwarded, only Mode-S short/long")
	}
}

func TestSetModeSExtSquitterTriggersReconfigure(t *testing.T) {
	f := New(Configuration{})
	called := false
	f.OnReconfigure = func() { called = true }
	f.SetModeSExtSquitter(true)
	if !called {
		t.Fatal("OnReconfigure was not invoked")
	}
}
