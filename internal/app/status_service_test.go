package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dokzlo13/qlcremote/internal/config"
	"github.com/dokzlo13/qlcremote/internal/effects"
	"github.com/dokzlo13/qlcremote/internal/session"
	"github.com/dokzlo13/qlcremote/internal/transport"
	"github.com/dokzlo13/qlcremote/internal/widget"
)

type fakeSource struct {
	ready bool
	snap  session.Snapshot
}

func (f *fakeSource) Ready() bool                { return f.ready }
func (f *fakeSource) Snapshot() session.Snapshot { return f.snap }

func TestStatusEndpoints(t *testing.T) {
	source := &fakeSource{
		snap: session.Snapshot{
			SessionID:       "abc",
			Connection:      transport.Failed,
			Reconnect:       session.Pending,
			Values:          []int{0, 128, 255},
			Widgets:         []widget.Widget{{ID: 1, Name: "Go", Kind: widget.KindButton}},
			TimedOutWidgets: []int{3},
			Effect:          effects.Chase,
		},
	}
	handler := NewStatusService(&config.Config{}, source).Handler()

	tests := []struct {
		name       string
		path       string
		ready      bool
		wantStatus int
		wantField  string
		wantValue  any
	}{
		{"health", "/health", false, http.StatusOK, "status", "healthy"},
		{"ready", "/ready", true, http.StatusOK, "status", "ready"},
		{"not_ready", "/ready", false, http.StatusServiceUnavailable, "connection", "failed"},
		{"state_connection", "/state", false, http.StatusOK, "connection", "failed"},
		{"state_reconnect", "/state", false, http.StatusOK, "reconnect", "pending"},
		{"state_effect", "/state", false, http.StatusOK, "effect", "chase"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source.ready = tt.ready
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if got := body[tt.wantField]; got != tt.wantValue {
				t.Errorf("%s = %v, want %v", tt.wantField, got, tt.wantValue)
			}
		})
	}
}

func TestStateSnapshotShape(t *testing.T) {
	source := &fakeSource{snap: session.Snapshot{
		Widgets:         []widget.Widget{{ID: 4, Name: "Dimmer", Kind: widget.KindSlider, Value: 10}},
		TimedOutWidgets: []int{7, 9},
	}}
	handler := NewStatusService(&config.Config{}, source).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state", nil))

	var snap struct {
		Widgets []struct {
			ID    int    `json:"id"`
			Kind  string `json:"kind"`
			Value int    `json:"value"`
		} `json:"widgets"`
		TimedOut []int `json:"timed_out_widgets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(snap.Widgets) != 1 || snap.Widgets[0].Kind != "slider" || snap.Widgets[0].Value != 10 {
		t.Errorf("widgets = %+v", snap.Widgets)
	}
	if len(snap.TimedOut) != 2 {
		t.Errorf("timed_out_widgets = %v, want [7 9]", snap.TimedOut)
	}
}

func TestPostIsRejected(t *testing.T) {
	handler := NewStatusService(&config.Config{}, &fakeSource{}).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
