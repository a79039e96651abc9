package dmx

import (
	"testing"

	"github.com/dokzlo13/qlcremote/internal/protocol"
)

func TestSetThenReadBack(t *testing.T) {
	s := NewStore()
	for _, ch := range []int{1, 256, 512} {
		if !s.Set(1, ch, 200) {
			t.Fatalf("Set(1, %d) rejected", ch)
		}
		if got, _ := s.Get(1, ch); got != 200 {
			t.Errorf("Get(1, %d) = %d, want 200", ch, got)
		}
	}

	if s.Set(1, 0, 1) || s.Set(1, 513, 1) || s.Set(0, 1, 1) {
		t.Error("out-of-range writes should be rejected")
	}
}

func TestPageResponseRoundTrip(t *testing.T) {
	s := NewStore()
	s.Set(1, 100, 42)

	values := make([]int, 24)
	for i := range values {
		values[i] = 255 - i
	}
	msg, ok := protocol.Parse(protocol.ChannelValuesResponse(1, values))
	if !ok {
		t.Fatal("response did not parse")
	}
	cv := msg.(protocol.ChannelValues)

	if n := s.ApplyReadings(1, 1, cv.Readings); n != 24 {
		t.Fatalf("ApplyReadings wrote %d channels, want 24", n)
	}

	got := s.Values(1, 1, 24)
	for i, v := range got {
		if v != values[i] {
			t.Errorf("channel %d = %d, want %d", i+1, v, values[i])
		}
	}

	snap := s.Snapshot(1)
	for ch := 25; ch <= 512; ch++ {
		want := byte(0)
		if ch == 100 {
			want = 42
		}
		if snap[ch-1] != want {
			t.Fatalf("channel %d = %d, want untouched %d", ch, snap[ch-1], want)
		}
	}
}

func TestApplyReadingsDropsOutOfRange(t *testing.T) {
	s := NewStore()
	readings := []protocol.Reading{{Offset: 0, Value: 1}, {Offset: 1, Value: 2}, {Offset: 2, Value: 3}}

	if n := s.ApplyReadings(1, 511, readings); n != 2 {
		t.Errorf("ApplyReadings near the end wrote %d, want 2", n)
	}
	if got, _ := s.Get(1, 512); got != 2 {
		t.Errorf("channel 512 = %d, want 2", got)
	}
}

func TestAverage(t *testing.T) {
	s := NewStore()
	s.Set(2, 1, 100)
	s.Set(2, 2, 200)

	tests := []struct {
		name     string
		channels []int
		want     int
	}{
		{name: "two_channels", channels: []int{1, 2}, want: 150},
		{name: "with_zero_channel", channels: []int{1, 2, 3}, want: 100},
		{name: "empty", channels: nil, want: 0},
		{name: "invalid_only", channels: []int{0, 600}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Average(2, tt.channels); got != tt.want {
				t.Errorf("Average(%v) = %d, want %d", tt.channels, got, tt.want)
			}
		})
	}
}

func TestMatchPrefersOutstandingReads(t *testing.T) {
	s := NewStore()
	page := Window{Universe: 1, Start: 25, Count: 24}
	single := Window{Universe: 1, Start: 7, Count: 1}

	s.SetWindow(page)
	s.Expect(page)
	s.Expect(single)

	got, ok := s.Match(1)
	if !ok || got != single {
		t.Errorf("Match(1) = %+v, %v, want %+v", got, ok, single)
	}

	// The page read was older than the single read and is now discarded.
	got, ok = s.Match(24)
	if !ok || got != page {
		t.Errorf("Match(24) = %+v, %v, want fallback to window %+v", got, ok, page)
	}
}

func TestMatchWithoutWindow(t *testing.T) {
	s := NewStore()
	if _, ok := s.Match(24); ok {
		t.Error("Match should fail when nothing is expected and no window is set")
	}

	s.Expect(Window{Universe: 3, Start: 1, Count: 12})
	s.ResetOutstanding()
	if _, ok := s.Match(12); ok {
		t.Error("Match should fail after ResetOutstanding")
	}
}

func TestVersionIncrements(t *testing.T) {
	s := NewStore()
	v0 := s.Version()
	s.Set(1, 1, 1)
	if s.Version() == v0 {
		t.Error("Version did not change after Set")
	}
}
