// Package widget mirrors the host's virtual console widgets.
//
// Discovery runs in two phases. A widget list response creates a pending
// entry per id; each type response promotes one pending entry into a typed
// Widget. Entries whose type never arrives expire into TimedOut.
package widget

import (
	"fmt"
	"strings"
)

// Kind is the widget variant.
type Kind int

const (
	KindOther Kind = iota
	KindButton
	KindSlider
	KindFrame
)

// Host type strings that map to a dedicated Kind.
const (
	TypeButton = "Button"
	TypeSlider = "Slider"
	TypeFrame  = "Frame"
)

// KindOf maps a host type string to a Kind by exact match.
func KindOf(typ string) Kind {
	switch typ {
	case TypeButton:
		return KindButton
	case TypeSlider:
		return KindSlider
	case TypeFrame:
		return KindFrame
	default:
		return KindOther
	}
}

func (k Kind) String() string {
	switch k {
	case KindButton:
		return "button"
	case KindSlider:
		return "slider"
	case KindFrame:
		return "frame"
	default:
		return "other"
	}
}

// MarshalText renders the kind in JSON snapshots.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Widget is one resolved virtual console widget. Only the fields of its
// Kind are meaningful: On for buttons, Value for sliders, Type for others.
type Widget struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Kind  Kind   `json:"kind"`
	On    bool   `json:"on,omitempty"`
	Value int    `json:"value,omitempty"`
	Type  string `json:"type,omitempty"`
}

func (w Widget) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s [%s]", w.ID, w.Name, w.Kind)
	switch w.Kind {
	case KindButton:
		if w.On {
			b.WriteString(" on")
		} else {
			b.WriteString(" off")
		}
	case KindSlider:
		fmt.Fprintf(&b, " %d", w.Value)
	case KindOther:
		if w.Type != "" {
			fmt.Fprintf(&b, " (%s)", w.Type)
		}
	}
	return b.String()
}

// Phase is where an id stands in the discovery state machine.
type Phase int

const (
	NotRequested Phase = iota
	Pending
	Resolved
	TimedOut
)

func (p Phase) String() string {
	switch p {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case TimedOut:
		return "timed_out"
	default:
		return "not_requested"
	}
}
