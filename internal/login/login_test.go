package login

import (
	"testing"

	"github.com/openskynetwork/opensky-sensor-sub000/internal/serialprovider"
)

type fakeSender struct {
	messages [][]byte
	failAt   int
}

func (f *fakeSender) Send(buf []byte) bool {
	if f.failAt == len(f.messages) {
		f.messages = append(f.messages, buf)
		return false
	}
	f.messages = append(f.messages, buf)
	return true
}

type fakeGPS struct{ called bool }

func (g *fakeGPS) SendPosition() { g.called = true }

func TestLoginHappyPath(t *testing.T) {
	sender := &fakeSender{failAt: -1}
	gps := &fakeGPS{}
	l := New(sender, serialprovider.StaticProvider{Serial: 42}, gps, Config{
		Identity: Identity{DeviceType: 1, VersionMajor: 2, VersionMinor: 3, VersionPatch: 4},
		Username: "tester",
	}, nil)

	if !l.Run() {
		t.Fatal("login should succeed")
	}
	if len(sender.messages) != 3 {
		t.Fatalf("sent %d messages, want 3 (identity, serial, username)", len(sender.messages))
	}
	if sender.messages[0][1] != 'A' {
		t.Fatalf("first message type = %q, want 'A'", sender.messages[0][1])
	}
	if sender.messages[1][1] != '5' {
		t.Fatalf("second message type = %q, want '5'", sender.messages[1][1])
	}
	if sender.messages[2][1] != 'C' {
		t.Fatalf("third message type = %q, want 'C'", sender.messages[2][1])
	}
	if !gps.called {
		t.Fatal("GPS SendPosition was not requested")
	}
	if string(sender.messages[2][2:]) != "tester" {
		t.Fatalf("username payload = %q", sender.messages[2][2:])
	}
}

func TestLoginAbortsOnIdentityFailure(t *testing.T) {
	sender := &fakeSender{failAt: 0}
	gps := &fakeGPS{}
	l := New(sender, serialprovider.StaticProvider{Serial: 1}, gps, Config{}, nil)
	if l.Run() {
		t.Fatal("login should fail when the identity message cannot be sent")
	}
	if gps.called {
		t.Fatal("GPS should not be asked for a position if login aborts early")
	}
}

func TestUsernameOmittedWhenUnset(t *testing.T) {
	sender := &fakeSender{failAt: -1}
	gps := &fakeGPS{}
	l := New(sender, serialprovider.StaticProvider{Serial: 1}, gps, Config{}, nil)
	if !l.Run() {
		t.Fatal("login should succeed")
	}
	if len(sender.messages) != 2 {
		t.Fatalf("sent %d messages, want 2 (no username)", len(sender.messages))
	}
}

func TestSerialRequestedViaTalkbackOnNetworkFailure(t *testing.T) {
	sender := &fakeSender{failAt: -1}
	gps := &fakeGPS{}
	serial := fakeSerialProvider{result: serialprovider.FailNet}
	l := New(sender, serial, gps, Config{}, nil)
	if !l.Run() {
		t.Fatal("login should still proceed past a FailNet serial result")
	}
	if sender.messages[1][1] != 'B' {
		t.Fatalf("expected a serial-request message type 'B', got %q", sender.messages[1][1])
	}
	if len(sender.messages[1]) != 2 {
		t.Fatalf("serial-request message length = %d, want 2 (sync+type, empty payload)", len(sender.messages[1]))
	}
}

type fakeSerialProvider struct {
	result serialprovider.Result
}

func (f fakeSerialProvider) GetSerial() (uint32, serialprovider.Result) {
	return 0, f.result
}
