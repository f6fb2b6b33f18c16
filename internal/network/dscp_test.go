package network

import "testing"

func TestParseDSCP(t *testing.T) {
	cases := []struct {
		name    string
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{"ef", 46, false},
		{"AF41", 34, false},
		{"CS0", 0, false},
		{"bogus", 0, true},
	}
	for _, c := range cases {
		got, err := ParseDSCP(c.name)
		if (err != nil) != c.wantErr {
			t.Fatalf("ParseDSCP(%q) error = %v, wantErr %v", c.name, err, c.wantErr)
		}
		if got != c.want {
			t.Fatalf("ParseDSCP(%q) = %d, want %d", c.name, got, c.want)
		}
	}
}
