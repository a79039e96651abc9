// Package protocol encodes outgoing QLC+ web API lines and classifies incoming ones.
//
// The wire format is a newline-free, pipe-delimited ASCII line per WebSocket
// text frame. Encoders are pure: they clamp numeric input instead of failing,
// and report ok=false only when a required field can never be valid.
package protocol

import (
	"strconv"
	"strings"
)

const (
	// Delimiter separates fields of a protocol line.
	Delimiter = "|"

	// APINamespace prefixes request/response lines of the QLC+ web API.
	APINamespace = "QLC+API"

	// FunctionPrefix prefixes function state broadcasts.
	FunctionPrefix = "FUNCTION"

	// EndpointPath is the fixed WebSocket path served by QLC+.
	EndpointPath = "/qlcplusWS"
)

// API method names.
const (
	MethodChannelsValues = "getChannelsValues"
	MethodResetChannel   = "sdResetChannel"
	MethodResetUniverse  = "sdResetUniverse"
	MethodWidgetsList    = "getWidgetsList"
	MethodWidgetType     = "getWidgetType"
)

// DMX limits.
const (
	ChannelsPerUniverse = 512
	MinChannel          = 1
	MaxChannel          = ChannelsPerUniverse
	MaxValue            = 255
)

// Line is a single outgoing protocol line.
type Line string

func (l Line) String() string { return string(l) }

func join(fields ...string) Line {
	return Line(strings.Join(fields, Delimiter))
}

func itoa(v int) string { return strconv.Itoa(v) }

// ClampValue clamps v into the DMX byte range [0,255].
func ClampValue(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxValue {
		return MaxValue
	}
	return v
}

// ClampLevel converts a normalized level in [0,1] to a DMX byte value.
func ClampLevel(level float64) int {
	if level <= 0 {
		return 0
	}
	if level >= 1 {
		return MaxValue
	}
	return int(level * MaxValue)
}

// ValidChannel reports whether ch addresses a channel inside a universe.
func ValidChannel(ch int) bool {
	return ch >= MinChannel && ch <= MaxChannel
}

// Number parses a decimal integer field. It is the single place where
// user-entered or wire text becomes a number.
func Number(s string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return v, true
}

// SetChannel encodes "CH|<channel>|<value>". The value is clamped; a channel
// outside [1,512] yields ok=false and no line.
func SetChannel(channel, value int) (Line, bool) {
	if !ValidChannel(channel) {
		return "", false
	}
	return join("CH", itoa(channel), itoa(ClampValue(value))), true
}

// ResetChannel encodes a simple-desk reset of one channel.
func ResetChannel(channel int) (Line, bool) {
	if !ValidChannel(channel) {
		return "", false
	}
	return join(APINamespace, MethodResetChannel, itoa(channel)), true
}

// ResetUniverse encodes a simple-desk reset of a whole universe.
func ResetUniverse(universe int) (Line, bool) {
	if universe < 1 {
		return "", false
	}
	return join(APINamespace, MethodResetUniverse, itoa(universe)), true
}

// ReadChannels encodes a read of count channels starting at start.
func ReadChannels(universe, start, count int) Line {
	return join(APINamespace, MethodChannelsValues, itoa(universe), itoa(start), itoa(count))
}

// ReadChannel encodes a single channel read.
func ReadChannel(universe, channel int) (Line, bool) {
	if !ValidChannel(channel) || universe < 1 {
		return "", false
	}
	return ReadChannels(universe, channel, 1), true
}

// PageWindow returns the first channel and channel count of a page.
// The window is clamped at the universe boundary.
func PageWindow(pageIndex, pageSize int) (start, count int) {
	if pageIndex < 0 {
		pageIndex = 0
	}
	start = clamp(pageIndex*pageSize+1, MinChannel, MaxChannel)
	count = clamp(pageSize, 1, MaxChannel-start+1)
	return start, count
}

// TotalPages returns how many pages of pageSize cover one universe.
func TotalPages(pageSize int) int {
	if pageSize < 1 {
		pageSize = 1
	}
	return (ChannelsPerUniverse + pageSize - 1) / pageSize
}

// RequestPage encodes the page-read request for a polling window.
func RequestPage(universe, pageIndex, pageSize int) Line {
	start, count := PageWindow(pageIndex, pageSize)
	return ReadChannels(universe, start, count)
}

// CueNext advances the cue list bound to a widget.
func CueNext(widgetID int) Line {
	return join(itoa(widgetID), "control", "next")
}

// RequestWidgetList starts virtual console discovery.
func RequestWidgetList() Line {
	return join(APINamespace, MethodWidgetsList)
}

// RequestWidgetType queries the type of one discovered widget.
func RequestWidgetType(id int) Line {
	return join(APINamespace, MethodWidgetType, itoa(id))
}

// ButtonPress encodes a virtual console button press.
func ButtonPress(id int) Line {
	return join(itoa(id), "1")
}

// ButtonRelease encodes a virtual console button release.
func ButtonRelease(id int) Line {
	return join(itoa(id), "0")
}

// SliderSet encodes a virtual console slider value.
func SliderSet(id, value int) Line {
	return join(itoa(id), itoa(ClampValue(value)))
}

// ApplyToRange encodes one SetChannel per channel of [first,last] that lies
// inside the universe, in ascending order.
func ApplyToRange(first, last, value int) []Line {
	first = max(first, MinChannel)
	last = min(last, MaxChannel)
	if first > last {
		return nil
	}
	lines := make([]Line, 0, last-first+1)
	for ch := first; ch <= last; ch++ {
		line, _ := SetChannel(ch, value)
		lines = append(lines, line)
	}
	return lines
}

// ResetRange walks the whole universe and encodes a reset for every channel
// inside [start,end], inclusive.
func ResetRange(start, end int) []Line {
	var lines []Line
	for ch := MinChannel; ch <= MaxChannel; ch++ {
		if ch < start || ch > end {
			continue
		}
		line, _ := ResetChannel(ch)
		lines = append(lines, line)
	}
	return lines
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
