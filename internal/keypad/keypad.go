// Package keypad parses the desk-style command line used to drive channels
// by hand, e.g. "1 AT 255", "1 THRU 24 AT 128", "12 + 10" or "UNI 2 CLR".
package keypad

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/shlex"

	"github.com/dokzlo13/qlcremote/internal/protocol"
)

var (
	// ErrEmptyCommand is returned for blank input.
	ErrEmptyCommand = errors.New("please enter a command")
	// ErrInvalidCommand is returned for input matching no command form.
	ErrInvalidCommand = errors.New("invalid command")
)

// Keywords.
const (
	KeyAt    = "AT"
	KeyThru  = "THRU"
	KeyClear = "CLR"
	KeyUni   = "UNI"
	KeyFull  = "FULL"
	KeyZero  = "ZERO"
	KeyPlus  = "+"
	KeyMinus = "-"
)

// Op is the parsed command form.
type Op int

const (
	OpSet           Op = iota // ch AT v
	OpAdjust                  // ch + d, ch - d
	OpClear                   // ch CLR
	OpUniverseClear           // UNI u CLR
	OpUniverseSet             // UNI u AT v
	OpRangeSet                // a THRU b AT v
	OpRangeClear              // a THRU b CLR
)

func (o Op) String() string {
	switch o {
	case OpSet:
		return "set"
	case OpAdjust:
		return "adjust"
	case OpClear:
		return "clear"
	case OpUniverseClear:
		return "universe_clear"
	case OpUniverseSet:
		return "universe_set"
	case OpRangeSet:
		return "range_set"
	case OpRangeClear:
		return "range_clear"
	default:
		return "unknown"
	}
}

// Command is one parsed keypad line. Only the fields of its Op are set.
type Command struct {
	Op       Op
	Channel  int // first channel
	Last     int // last channel of a THRU range
	Universe int
	Value    int // clamped to [0,255]
	Delta    int // signed amount for OpAdjust
}

// Parse reads one keypad line. Keywords are case-insensitive; FULL and
// ZERO stand for 255 and 0 wherever a number is expected.
func Parse(text string) (Command, error) {
	if strings.TrimSpace(text) == "" {
		return Command{}, ErrEmptyCommand
	}
	tokens, err := shlex.Split(text)
	if err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	for i, tok := range tokens {
		tokens[i] = strings.ToUpper(tok)
	}

	cmd, ok := parseTokens(tokens)
	if !ok {
		return Command{}, fmt.Errorf("%w: %q", ErrInvalidCommand, text)
	}
	return cmd, nil
}

func parseTokens(t []string) (Command, bool) {
	if len(t) == 0 {
		return Command{}, false
	}

	if t[0] == KeyUni {
		if len(t) < 3 {
			return Command{}, false
		}
		u, ok := number(t[1])
		if !ok || u < 1 {
			return Command{}, false
		}
		switch {
		case t[2] == KeyClear && len(t) == 3:
			return Command{Op: OpUniverseClear, Universe: u}, true
		case t[2] == KeyAt && len(t) == 4:
			v, ok := number(t[3])
			if !ok {
				return Command{}, false
			}
			return Command{Op: OpUniverseSet, Universe: u, Value: protocol.ClampValue(v)}, true
		}
		return Command{}, false
	}

	ch, ok := channel(t[0])
	if !ok || len(t) < 2 {
		return Command{}, false
	}

	switch t[1] {
	case KeyClear:
		if len(t) != 2 {
			return Command{}, false
		}
		return Command{Op: OpClear, Channel: ch}, true

	case KeyAt:
		if len(t) != 3 {
			return Command{}, false
		}
		v, ok := number(t[2])
		if !ok {
			return Command{}, false
		}
		return Command{Op: OpSet, Channel: ch, Value: protocol.ClampValue(v)}, true

	case KeyPlus, KeyMinus:
		if len(t) != 3 {
			return Command{}, false
		}
		d, ok := number(t[2])
		if !ok || d < 0 {
			return Command{}, false
		}
		if t[1] == KeyMinus {
			d = -d
		}
		return Command{Op: OpAdjust, Channel: ch, Delta: d}, true

	case KeyThru:
		if len(t) < 4 {
			return Command{}, false
		}
		last, ok := channel(t[2])
		if !ok {
			return Command{}, false
		}
		switch {
		case t[3] == KeyClear && len(t) == 4:
			return Command{Op: OpRangeClear, Channel: ch, Last: last}, true
		case t[3] == KeyAt && len(t) == 5:
			v, ok := number(t[4])
			if !ok {
				return Command{}, false
			}
			return Command{Op: OpRangeSet, Channel: ch, Last: last, Value: protocol.ClampValue(v)}, true
		}
	}

	return Command{}, false
}

func number(tok string) (int, bool) {
	switch tok {
	case KeyFull:
		return protocol.MaxValue, true
	case KeyZero:
		return 0, true
	}
	return protocol.Number(tok)
}

func channel(tok string) (int, bool) {
	ch, ok := protocol.Number(tok)
	if !ok || !protocol.ValidChannel(ch) {
		return 0, false
	}
	return ch, true
}
