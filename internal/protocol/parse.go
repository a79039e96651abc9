package protocol

import (
	"strings"
)

// Message is a classified inbound line. The concrete types are
// WidgetList, WidgetType, ChannelValues, FunctionState and SliderState.
type Message interface {
	isMessage()
}

// WidgetEntry is one id/name pair of a widget list response.
type WidgetEntry struct {
	ID   int
	Name string
}

// WidgetList is phase (a) of discovery: every widget id with its caption.
type WidgetList struct {
	Entries []WidgetEntry
}

// WidgetType is phase (b) of discovery: the type of one widget.
type WidgetType struct {
	ID   int
	Type string
}

// Reading is one value of a page-read response. Offset is the position of
// the value within the response, starting at 0.
type Reading struct {
	Offset int
	Value  int
}

// ChannelValues is a page-read response. Slots counts every value position
// in the line, including ones that failed to parse.
type ChannelValues struct {
	Slots    int
	Readings []Reading
}

// FunctionState is a function running-state broadcast.
type FunctionState struct {
	ID      int
	Status  string
	Running bool
}

// SliderState is a bare "<id>|<value>" broadcast.
type SliderState struct {
	ID    int
	Value int
}

func (WidgetList) isMessage()    {}
func (WidgetType) isMessage()    {}
func (ChannelValues) isMessage() {}
func (FunctionState) isMessage() {}
func (SliderState) isMessage()   {}

// Offsets inside API lines.
const (
	widgetListOffset    = 2
	channelValuesOffset = 3
	channelValuesStride = 3
)

// StatusRunning is the function status that maps to a lit button.
const StatusRunning = "Running"

// Parse classifies an inbound line. Lines of unknown or truncated shape
// return ok=false and must be dropped by the caller.
func Parse(line string) (Message, bool) {
	parts := strings.Split(line, Delimiter)
	if len(parts) == 0 {
		return nil, false
	}

	switch parts[0] {
	case APINamespace:
		return parseAPI(parts)
	case FunctionPrefix:
		return parseFunction(parts)
	}

	if len(parts) == 2 {
		id, ok := Number(parts[0])
		if !ok {
			return nil, false
		}
		value, ok := Number(parts[1])
		if !ok {
			return nil, false
		}
		return SliderState{ID: id, Value: value}, true
	}

	return nil, false
}

func parseAPI(parts []string) (Message, bool) {
	if len(parts) < 2 {
		return nil, false
	}

	switch parts[1] {
	case MethodWidgetsList:
		return parseWidgetList(parts), true

	case MethodWidgetType:
		if len(parts) < 4 {
			return nil, false
		}
		id, ok := Number(parts[2])
		if !ok {
			return nil, false
		}
		return WidgetType{ID: id, Type: strings.TrimSpace(parts[3])}, true

	case MethodChannelsValues:
		return parseChannelValues(parts), true
	}

	return nil, false
}

func parseWidgetList(parts []string) WidgetList {
	var list WidgetList
	for i := widgetListOffset; i+1 < len(parts); i += 2 {
		id, ok := Number(parts[i])
		name := strings.TrimSpace(parts[i+1])
		if !ok || name == "" {
			continue
		}
		list.Entries = append(list.Entries, WidgetEntry{ID: id, Name: name})
	}
	return list
}

func parseChannelValues(parts []string) ChannelValues {
	var cv ChannelValues
	for i := channelValuesOffset; i < len(parts); i += channelValuesStride {
		offset := (i - channelValuesOffset) / channelValuesStride
		cv.Slots = offset + 1
		value, ok := Number(parts[i])
		if !ok || value < 0 || value > MaxValue {
			continue
		}
		cv.Readings = append(cv.Readings, Reading{Offset: offset, Value: value})
	}
	return cv
}

func parseFunction(parts []string) (Message, bool) {
	if len(parts) < 2 {
		return nil, false
	}
	id, ok := Number(parts[1])
	if !ok {
		return nil, false
	}
	status := ""
	if len(parts) > 2 {
		status = strings.TrimSpace(parts[2])
	}
	return FunctionState{ID: id, Status: status, Running: status == StatusRunning}, true
}

// ChannelValuesResponse builds the host's answer to a page read: one
// "<channel>|<value>|<type>" triple per channel, starting at start.
func ChannelValuesResponse(start int, values []int) string {
	var b strings.Builder
	b.WriteString(APINamespace)
	b.WriteString(Delimiter)
	b.WriteString(MethodChannelsValues)
	for i, v := range values {
		b.WriteString(Delimiter)
		b.WriteString(itoa(start + i))
		b.WriteString(Delimiter)
		b.WriteString(itoa(v))
		b.WriteString(Delimiter)
		b.WriteString("0")
	}
	return b.String()
}
