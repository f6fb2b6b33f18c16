package gps

import "testing"

type fakeSender struct {
	sent   [][]byte
	fail   bool
}

func (f *fakeSender) Send(buf []byte) bool {
	if f.fail {
		return false
	}
	cp := append([]byte(nil), buf...)
	f.sent = append(f.sent, cp)
	return true
}

func TestSendPositionDefersUntilFixAvailable(t *testing.T) {
	fs := &fakeSender{}
	s := New(fs)
	s.SendPosition()
	if len(fs.sent) != 0 {
		t.Fatal("should defer: no position or fix yet")
	}
	s.SetPosition(1, 2, 3)
	if len(fs.sent) != 0 {
		t.Fatal("should defer: no fix yet")
	}
	s.SetHasFix(true)
	if len(fs.sent) != 1 {
		t.Fatalf("sent = %d messages, want 1", len(fs.sent))
	}
}

func TestSendPositionImmediateWhenAlreadyAvailable(t *testing.T) {
	fs := &fakeSender{}
	s := New(fs)
	s.SetPositionWithFix(10, 20, 30)
	s.SendPosition()
	if len(fs.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(fs.sent))
	}
}

func TestFailedSendStaysPendingAndRetries(t *testing.T) {
	fs := &fakeSender{fail: true}
	s := New(fs)
	s.SetPositionWithFix(10, 20, 30)
	s.SendPosition()
	if len(fs.sent) != 0 {
		t.Fatal("send should have failed")
	}
	fs.fail = false
	s.SetPosition(11, 21, 31)
	if len(fs.sent) != 1 {
		t.Fatalf("sent = %d, want 1 after retry succeeds", len(fs.sent))
	}
}
