package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Level is the severity of a user-visible notice.
type Level int

const (
	Info Level = iota
	Err
)

func (l Level) String() string {
	if l == Err {
		return "error"
	}
	return "info"
}

// MarshalText renders the level in JSON.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Notice is a message meant for the person operating the desk.
type Notice struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Messages shown to the operator.
const (
	msgEmptyCommand   = "Please enter a command."
	msgInvalidCommand = "Invalid command."
	msgOutOfRange     = "The result of this operation is outside the allowed range 0 to 255. It has been clamped."
)

func (s *Session) notify(ctx context.Context, level Level, msg string) {
	ev := log.Info()
	if level == Err {
		ev = log.Warn()
	}
	ev.Str("session", s.id).Msg(msg)

	s.notices.Publish(ctx, Notice{Level: level, Message: msg, Time: time.Now()})
}
