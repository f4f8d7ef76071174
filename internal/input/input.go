// Package input delivers synthetic key events to the host.
package input

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/penlink/internal/gesture"
)

// Phase is the key transition an event reports.
type Phase int

const (
	Down Phase = iota
	Up
)

func (p Phase) String() string {
	switch p {
	case Down:
		return "down"
	case Up:
		return "up"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// KeyEvent is one synthetic key transition. DownTime is when the key went down;
// EventTime is when this transition happened.
type KeyEvent struct {
	DownTime  time.Time
	EventTime time.Time
	Phase     Phase
	Code      gesture.KeyCode
}

// Press returns the down/up pair for a key held from down to up.
func Press(code gesture.KeyCode, down, up time.Time) [2]KeyEvent {
	return [2]KeyEvent{
		{DownTime: down, EventTime: down, Phase: Down, Code: code},
		{DownTime: down, EventTime: up, Phase: Up, Code: code},
	}
}

// Sink injects key events. Delivery is best effort; callers log failures and move on.
type Sink interface {
	Inject(ev KeyEvent) error
	Close() error
}

// LogSink only logs the events it receives.
type LogSink struct {
	logger *logrus.Logger
}

func NewLogSink(logger *logrus.Logger) *LogSink {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Inject(ev KeyEvent) error {
	s.logger.WithFields(logrus.Fields{
		"key":        ev.Code.String(),
		"code":       uint16(ev.Code),
		"phase":      ev.Phase.String(),
		"down_time":  ev.DownTime.Format(time.RFC3339Nano),
		"event_time": ev.EventTime.Format(time.RFC3339Nano),
	}).Info("Key event")
	return nil
}

func (s *LogSink) Close() error {
	return nil
}
