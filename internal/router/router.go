// Package router reconciles inbound protocol lines into the local stores.
package router

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/qlcremote/internal/dmx"
	"github.com/dokzlo13/qlcremote/internal/eventbus"
	"github.com/dokzlo13/qlcremote/internal/protocol"
	"github.com/dokzlo13/qlcremote/internal/widget"
)

// UpdateKind says which store an Update touched.
type UpdateKind int

const (
	ChannelsUpdated UpdateKind = iota
	WidgetsListed
	WidgetResolved
	WidgetChanged
)

func (k UpdateKind) String() string {
	switch k {
	case ChannelsUpdated:
		return "channels"
	case WidgetsListed:
		return "widgets_listed"
	case WidgetResolved:
		return "widget_resolved"
	default:
		return "widget_changed"
	}
}

// Update describes one applied inbound message.
type Update struct {
	Kind UpdateKind
	// Window is set for ChannelsUpdated.
	Window dmx.Window
	// Values holds the channel values written, indexed from Window.Start.
	Values []int
	// WidgetID is set for widget updates.
	WidgetID int
}

// Sender transmits one outgoing line.
type Sender func(ctx context.Context, line protocol.Line)

// Router dispatches classified lines to the channel and widget stores.
type Router struct {
	channels *dmx.Store
	widgets  *widget.Store
	send     Sender
	updates  *eventbus.Bus[Update]
}

// New creates a router. send is used to issue type queries after a widget
// list arrives.
func New(channels *dmx.Store, widgets *widget.Store, send Sender) *Router {
	return &Router{
		channels: channels,
		widgets:  widgets,
		send:     send,
		updates:  eventbus.New[Update]("router"),
	}
}

// Updates returns the bus on which applied messages are announced.
func (r *Router) Updates() *eventbus.Bus[Update] {
	return r.updates
}

// Handle applies one line. It returns false when the line was dropped.
func (r *Router) Handle(ctx context.Context, line string) bool {
	msg, ok := protocol.Parse(line)
	if !ok {
		log.Trace().Str("line", line).Msg("Dropping unrecognised line")
		return false
	}

	switch m := msg.(type) {
	case protocol.WidgetList:
		ids := r.widgets.BeginDiscovery(m.Entries)
		r.updates.Publish(ctx, Update{Kind: WidgetsListed})
		for _, id := range ids {
			r.send(ctx, protocol.RequestWidgetType(id))
		}
		return true

	case protocol.WidgetType:
		if _, ok := r.widgets.Resolve(m.ID, m.Type); !ok {
			return false
		}
		r.updates.Publish(ctx, Update{Kind: WidgetResolved, WidgetID: m.ID})
		return true

	case protocol.ChannelValues:
		w, ok := r.channels.Match(m.Slots)
		if !ok {
			log.Debug().Int("slots", m.Slots).Msg("Dropping channel values with no matching read")
			return false
		}
		r.channels.ApplyReadings(w.Universe, w.Start, m.Readings)
		w.Count = min(m.Slots, protocol.MaxChannel-w.Start+1)
		r.updates.Publish(ctx, Update{
			Kind:   ChannelsUpdated,
			Window: w,
			Values: r.channels.Values(w.Universe, w.Start, w.Count),
		})
		return true

	case protocol.FunctionState:
		if !r.widgets.SetFunctionState(m.ID, m.Running) {
			log.Trace().Int("function_id", m.ID).Msg("Function state matches no button")
			return false
		}
		r.updates.Publish(ctx, Update{Kind: WidgetChanged, WidgetID: m.ID})
		return true

	case protocol.SliderState:
		if !r.widgets.SetSliderValue(m.ID, m.Value) {
			return false
		}
		r.updates.Publish(ctx, Update{Kind: WidgetChanged, WidgetID: m.ID})
		return true
	}

	return false
}

// Run consumes lines from sub until ctx ends or the subscription closes.
// A panic while handling one line is logged and the loop continues.
func (r *Router) Run(ctx context.Context, sub *eventbus.Subscription[string]) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case line := <-sub.C():
			r.handleSafe(ctx, line)
		}
	}
}

func (r *Router) handleSafe(ctx context.Context, line string) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Str("line", line).
				Msg("Router handler panicked")
		}
	}()
	r.Handle(ctx, line)
}

// Close ends every update subscription.
func (r *Router) Close() {
	r.updates.Close()
}
