package session

import (
	"github.com/dokzlo13/qlcremote/internal/dmx"
	"github.com/dokzlo13/qlcremote/internal/effects"
	"github.com/dokzlo13/qlcremote/internal/poller"
	"github.com/dokzlo13/qlcremote/internal/settings"
	"github.com/dokzlo13/qlcremote/internal/transport"
	"github.com/dokzlo13/qlcremote/internal/widget"
)

// Snapshot is a point-in-time view of the session for observers.
type Snapshot struct {
	SessionID       string               `json:"session_id"`
	Connection      transport.State      `json:"connection"`
	Reconnect       ReconnectStatus      `json:"reconnect"`
	AutoRetry       bool                 `json:"auto_retry"`
	ControlMode     settings.ControlMode `json:"control_mode"`
	Settings        settings.Settings    `json:"settings"`
	View            poller.Key           `json:"view"`
	Window          dmx.Window           `json:"window"`
	Values          []int                `json:"values"`
	Widgets         []widget.Widget      `json:"widgets"`
	PendingWidgets  []int                `json:"pending_widgets"`
	TimedOutWidgets []int                `json:"timed_out_widgets"`
	Effect          effects.Mode         `json:"effect"`
	Group           []int                `json:"group"`
}

// Snapshot collects the observable state.
func (s *Session) Snapshot() Snapshot {
	cur := s.settings.Current()
	view, _ := s.View()
	w := s.channels.Window()

	return Snapshot{
		SessionID:       s.id,
		Connection:      s.transport.State(),
		Reconnect:       s.retry.current(),
		AutoRetry:       s.retry.auto(),
		ControlMode:     cur.ControlMode,
		Settings:        cur,
		View:            view,
		Window:          w,
		Values:          s.channels.Values(w.Universe, w.Start, w.Count),
		Widgets:         s.widgets.List(),
		PendingWidgets:  s.widgets.Pending(),
		TimedOutWidgets: s.widgets.TimedOut(),
		Effect:          s.effects.Mode(),
		Group:           s.Group(),
	}
}
