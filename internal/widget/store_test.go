package widget

import (
	"reflect"
	"testing"
	"time"

	"github.com/dokzlo13/qlcremote/internal/protocol"
)

func entries(pairs ...any) []protocol.WidgetEntry {
	var out []protocol.WidgetEntry
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, protocol.WidgetEntry{ID: pairs[i].(int), Name: pairs[i+1].(string)})
	}
	return out
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		typ  string
		want Kind
	}{
		{"Button", KindButton},
		{"Slider", KindSlider},
		{"Frame", KindFrame},
		{"Cue list", KindOther},
		{"button", KindOther},
		{"", KindOther},
	}
	for _, tt := range tests {
		if got := KindOf(tt.typ); got != tt.want {
			t.Errorf("KindOf(%q) = %v, want %v", tt.typ, got, tt.want)
		}
	}
}

func TestTwoPhaseDiscovery(t *testing.T) {
	s := NewStore(0)

	ids := s.BeginDiscovery(entries(4, "Go", 2, "Master", 7, "Frame"))
	if want := []int{4, 2, 7}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("BeginDiscovery ids = %v, want %v", ids, want)
	}
	if s.Consistent() {
		t.Error("store should not be consistent while types are pending")
	}
	if got := s.Phase(2); got != Pending {
		t.Errorf("Phase(2) = %v, want pending", got)
	}

	s.Resolve(2, "Slider")
	s.Resolve(4, "Button")
	s.Resolve(7, "Cue list")

	if !s.Consistent() {
		t.Errorf("store should be consistent, pending = %v", s.Pending())
	}

	got := s.List()
	want := []Widget{
		{ID: 2, Name: "Master", Kind: KindSlider},
		{ID: 4, Name: "Go", Kind: KindButton},
		{ID: 7, Name: "Frame", Kind: KindOther, Type: "Cue list"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %+v, want %+v", got, want)
	}
}

func TestResolveIgnoresUnknownIds(t *testing.T) {
	s := NewStore(0)
	s.BeginDiscovery(entries(1, "A"))

	if _, ok := s.Resolve(9, "Button"); ok {
		t.Error("Resolve of an id never listed should be ignored")
	}
	s.Resolve(1, "Button")
	if _, ok := s.Resolve(1, "Slider"); ok {
		t.Error("second Resolve of the same id should be ignored")
	}
	if w, _ := s.Get(1); w.Kind != KindButton {
		t.Errorf("widget kind = %v, want button", w.Kind)
	}
}

func TestRediscoveryReplacesContents(t *testing.T) {
	s := NewStore(0)

	for cycle := 0; cycle < 2; cycle++ {
		s.BeginDiscovery(entries(1, "A", 2, "B", 1, "A again"))
		s.Resolve(1, "Button")
		s.Resolve(2, "Slider")
	}

	got := s.List()
	if len(got) != 2 {
		t.Fatalf("List() has %d widgets, want 2: %+v", len(got), got)
	}
	seen := map[int]bool{}
	for _, w := range got {
		if seen[w.ID] {
			t.Errorf("duplicate widget id %d", w.ID)
		}
		seen[w.ID] = true
	}
	if got[0].Name != "A again" {
		t.Errorf("duplicate list entry name = %q, want the later caption", got[0].Name)
	}
}

func TestBroadcastUpdates(t *testing.T) {
	s := NewStore(0)
	s.BeginDiscovery(entries(1, "Go", 2, "Dimmer", 3, "Box"))
	s.Resolve(1, "Button")
	s.Resolve(2, "Slider")
	s.Resolve(3, "Frame")

	tests := []struct {
		name  string
		apply func() bool
		want  bool
	}{
		{name: "button_running", apply: func() bool { return s.SetFunctionState(1, true) }, want: true},
		{name: "function_on_slider", apply: func() bool { return s.SetFunctionState(2, true) }, want: false},
		{name: "function_unknown_id", apply: func() bool { return s.SetFunctionState(99, true) }, want: false},
		{name: "slider_value", apply: func() bool { return s.SetSliderValue(2, 180) }, want: true},
		{name: "slider_on_frame", apply: func() bool { return s.SetSliderValue(3, 10) }, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.apply(); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if w, _ := s.Get(1); !w.On {
		t.Error("button 1 should be on")
	}
	if w, _ := s.Get(2); w.Value != 180 {
		t.Errorf("slider 2 value = %d, want 180", w.Value)
	}
}

func TestExpireMovesPendingToTimedOut(t *testing.T) {
	now := time.Unix(1000, 0)
	s := NewStore(5 * time.Second)
	s.SetClock(func() time.Time { return now })

	s.BeginDiscovery(entries(1, "A", 2, "B", 3, "C"))
	s.Resolve(2, "Button")

	now = now.Add(4 * time.Second)
	if got := s.Expire(); len(got) != 0 {
		t.Errorf("Expire before timeout = %v, want none", got)
	}

	now = now.Add(2 * time.Second)
	if got, want := s.Expire(), []int{1, 3}; !reflect.DeepEqual(got, want) {
		t.Errorf("Expire() = %v, want %v", got, want)
	}
	if !s.Consistent() {
		t.Error("store should be consistent once pending ids expired")
	}
	if got := s.Phase(3); got != TimedOut {
		t.Errorf("Phase(3) = %v, want timed_out", got)
	}

	// Timed out is terminal for the cycle.
	if _, ok := s.Resolve(3, "Slider"); ok {
		t.Error("late type response should not resurrect a timed out widget")
	}
	if got, want := s.TimedOut(), []int{1, 3}; !reflect.DeepEqual(got, want) {
		t.Errorf("TimedOut() = %v, want %v", got, want)
	}

	s.BeginDiscovery(nil)
	if len(s.TimedOut()) != 0 {
		t.Error("new discovery cycle should clear timed out ids")
	}
}

func TestZeroTimeoutNeverExpires(t *testing.T) {
	now := time.Unix(0, 0)
	s := NewStore(0)
	s.SetClock(func() time.Time { return now })
	s.BeginDiscovery(entries(1, "A"))

	now = now.Add(time.Hour)
	if got := s.Expire(); got != nil {
		t.Errorf("Expire() = %v, want nil", got)
	}
	if s.Phase(1) != Pending {
		t.Error("id should stay pending without a timeout")
	}
}
