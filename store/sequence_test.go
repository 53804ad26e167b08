package store

import "testing"

func TestCounterKey(t *testing.T) {
	tests := []struct {
		identity int
		want     string
	}{
		{1, "0001MSGID"},
		{102, "0102MSGID"},
		{9999, "9999MSGID"},
	}
	for _, tt := range tests {
		if got := CounterKey(tt.identity); got != tt.want {
			t.Errorf("CounterKey(%d) = %q, want %q", tt.identity, got, tt.want)
		}
	}
}

func TestFormatMessageID(t *testing.T) {
	tests := []struct {
		identity int
		seq      int64
		want     string
	}{
		{1, 7, "100000007"},
		{1, 12345678, "112345678"},
		{102, 1, "10200000001"},
	}
	for _, tt := range tests {
		if got := FormatMessageID(tt.identity, tt.seq); got != tt.want {
			t.Errorf("FormatMessageID(%d, %d) = %q, want %q", tt.identity, tt.seq, got, tt.want)
		}
	}
}
