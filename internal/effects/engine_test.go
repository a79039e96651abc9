package effects

import (
	"context"
	"sync"
	"testing"
	"time"
)

type write struct {
	ch, v int
}

type recorder struct {
	mu     sync.Mutex
	writes []write
	notify chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 1024)}
}

func (r *recorder) Write(_ context.Context, ch, v int) {
	r.mu.Lock()
	r.writes = append(r.writes, write{ch, v})
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.writes = nil
	r.mu.Unlock()
}

func (r *recorder) snapshot() []write {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]write(nil), r.writes...)
}

func (r *recorder) waitFor(t *testing.T, n int) []write {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if w := r.snapshot(); len(w) >= n {
			return w
		}
		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("got %d writes, want at least %d", len(r.snapshot()), n)
		}
	}
}

// noSleep lets generators run without real delays but still honours ctx.
func noSleep(ctx context.Context, _ time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Millisecond):
		return nil
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "strobe", want: Strobe},
		{in: "PULSE", want: Pulse},
		{in: "Chase", want: Chase},
		{in: "wave", want: Wave},
		{in: "none", want: None},
		{in: "disco", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStrobeAlternates(t *testing.T) {
	rec := newRecorder()
	e := New(rec, noSleep)
	defer e.Close()

	e.Start(context.Background(), Strobe, []int{1, 2})
	writes := rec.waitFor(t, 6)
	e.Stop()

	for i, w := range writes[:6] {
		frame := i / 2
		want := 255
		if frame%2 == 1 {
			want = 0
		}
		if w.v != want {
			t.Errorf("write %d = %+v, want value %d", i, w, want)
		}
	}
}

func TestPulseRampsInSteps(t *testing.T) {
	rec := newRecorder()
	e := New(rec, noSleep)
	defer e.Close()

	e.Start(context.Background(), Pulse, []int{10})
	writes := rec.waitFor(t, 60)
	e.Stop()

	for i := 0; i < 52; i++ {
		if want := i * PulseStep; writes[i].v != want {
			t.Fatalf("step %d = %d, want %d", i, writes[i].v, want)
		}
	}
	// Direction reverses at the top
	if writes[52].v != 255-PulseStep {
		t.Errorf("after peak got %d, want %d", writes[52].v, 255-PulseStep)
	}
}

func TestChaseLightsOneChannel(t *testing.T) {
	rec := newRecorder()
	e := New(rec, noSleep)
	defer e.Close()

	group := []int{4, 5, 6}
	e.Start(context.Background(), Chase, group)
	writes := rec.waitFor(t, 9)
	e.Stop()

	for frame := 0; frame < 3; frame++ {
		lit := 0
		for i := 0; i < 3; i++ {
			w := writes[frame*3+i]
			if w.ch != group[i] {
				t.Errorf("frame %d write %d channel = %d, want %d", frame, i, w.ch, group[i])
			}
			if w.v == 255 {
				lit++
				if i != frame {
					t.Errorf("frame %d lit index %d, want %d", frame, i, frame)
				}
			}
		}
		if lit != 1 {
			t.Errorf("frame %d has %d lit channels, want 1", frame, lit)
		}
	}
}

func TestWaveValue(t *testing.T) {
	if got := WaveValue(0, 0); got != 127 {
		t.Errorf("WaveValue(0, 0) = %d, want 127", got)
	}
	for i := 0; i < 16; i++ {
		for step := 0; step < 40; step++ {
			v := WaveValue(float64(step)*WaveStep, i)
			if v < 0 || v > 255 {
				t.Fatalf("WaveValue out of range: %d", v)
			}
		}
	}
}

func TestSwitchingStopsPreviousEffect(t *testing.T) {
	rec := newRecorder()
	e := New(rec, noSleep)
	defer e.Close()

	group := []int{1, 2, 3, 4}
	e.Start(context.Background(), Pulse, group)
	rec.waitFor(t, 20)

	e.Start(context.Background(), Chase, group)
	rec.reset()

	if got := e.Mode(); got != Chase {
		t.Fatalf("Mode() = %v, want chase", got)
	}

	// Pulse has exited before Start returned, so every write from here on
	// is a chase frame: full or off, one channel lit per frame.
	writes := rec.waitFor(t, 20)
	for i, w := range writes {
		if w.v != 0 && w.v != 255 {
			t.Fatalf("write %d = %+v is not a chase value", i, w)
		}
	}
	// The reset may land mid-frame; align on the first channel.
	for len(writes) > 0 && writes[0].ch != group[0] {
		writes = writes[1:]
	}
	for frame := 0; frame < len(writes)/4; frame++ {
		lit := 0
		for _, w := range writes[frame*4 : frame*4+4] {
			if w.v == 255 {
				lit++
			}
		}
		if lit != 1 {
			t.Errorf("frame %d has %d lit channels, want 1", frame, lit)
		}
	}
}

func TestStopIsPrompt(t *testing.T) {
	rec := newRecorder()
	e := New(rec, nil)

	e.Start(context.Background(), Chase, []int{1})
	rec.waitFor(t, 1)

	start := time.Now()
	e.Stop()
	if elapsed := time.Since(start); elapsed > ChaseInterval {
		t.Errorf("Stop took %v, want under one chase tick", elapsed)
	}
	if e.Mode() != None {
		t.Errorf("Mode() = %v after Stop, want none", e.Mode())
	}

	n := len(rec.snapshot())
	time.Sleep(2 * ChaseInterval)
	if len(rec.snapshot()) != n {
		t.Error("writes continued after Stop")
	}
}

func TestSweepPacesEachWrite(t *testing.T) {
	rec := newRecorder()
	var pauses []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return ctx.Err()
	}
	e := New(rec, sleep)

	n := e.Sweep(context.Background(), []int{3, 1, 0, 2, 700}, 300, 15*time.Millisecond)
	if n != 3 {
		t.Fatalf("Sweep wrote %d channels, want 3", n)
	}
	want := []write{{3, 255}, {1, 255}, {2, 255}}
	for i, w := range rec.snapshot() {
		if w != want[i] {
			t.Errorf("write %d = %+v, want %+v", i, w, want[i])
		}
	}
	if len(pauses) != 3 {
		t.Errorf("got %d pauses, want 3", len(pauses))
	}
}

func TestFlashReleaseCancelsPress(t *testing.T) {
	rec := newRecorder()
	e := New(rec, nil)
	defer e.Close()

	group := make([]int, 100)
	for i := range group {
		group[i] = i + 1
	}

	pressed := make(chan int)
	go func() {
		pressed <- e.Flash(context.Background(), group, true, 50*time.Millisecond)
	}()
	rec.waitFor(t, 1)

	e.Flash(context.Background(), []int{1}, false, 0)
	if n := <-pressed; n >= len(group) {
		t.Errorf("press sweep wrote %d channels, want it cut short", n)
	}
	writes := rec.snapshot()
	if last := writes[len(writes)-1]; last != (write{1, 0}) {
		t.Errorf("last write = %+v, want channel 1 off", last)
	}
}
