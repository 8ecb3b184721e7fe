// internal/adapters/out/notify/notifier.go
package notify

import (
	"time"

	"github.com/sirupsen/logrus"

	cartdom "medicart/internal/domain/cart"
)

const (
	LevelSuccess = "success"
	LevelError   = "error"
)

// Notice is one user-visible toast.
type Notice struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// ----------------------------
// LogNotifier
// ----------------------------

// LogNotifier writes notices to the structured log. Used where no UI is
// attached (console, tests by default).
type LogNotifier struct {
	Log *logrus.Entry
}

func NewLogNotifier(log *logrus.Entry) *LogNotifier {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &LogNotifier{Log: log.WithField("component", "notify")}
}

var _ cartdom.Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) Success(msg string) {
	if n == nil || n.Log == nil {
		return
	}
	n.Log.WithField("level", LevelSuccess).Info(msg)
}

func (n *LogNotifier) Error(msg string) {
	if n == nil || n.Log == nil {
		return
	}
	n.Log.WithField("level", LevelError).Warn(msg)
}

// ----------------------------
// ChannelNotifier
// ----------------------------

// ChannelNotifier buffers notices on a channel for the UI layer to consume.
// Fire-and-forget: when the consumer falls behind and the buffer is full the
// notice is dropped rather than blocking a cart operation.
type ChannelNotifier struct {
	ch chan Notice
}

func NewChannelNotifier(buffer int) *ChannelNotifier {
	if buffer <= 0 {
		buffer = 16
	}
	return &ChannelNotifier{ch: make(chan Notice, buffer)}
}

var _ cartdom.Notifier = (*ChannelNotifier)(nil)

// Notices is the consumer side of the toast stream.
func (n *ChannelNotifier) Notices() <-chan Notice {
	return n.ch
}

func (n *ChannelNotifier) Success(msg string) { n.push(LevelSuccess, msg) }
func (n *ChannelNotifier) Error(msg string)   { n.push(LevelError, msg) }

func (n *ChannelNotifier) push(level, msg string) {
	if n == nil || n.ch == nil {
		return
	}
	select {
	case n.ch <- Notice{Level: level, Message: msg, At: time.Now()}:
	default:
		// consumer is behind — drop, never block the engine
	}
}

// ----------------------------
// MultiNotifier
// ----------------------------

// MultiNotifier fans a notice out to several sinks (e.g. channel + log).
type MultiNotifier []cartdom.Notifier

var _ cartdom.Notifier = (MultiNotifier)(nil)

func (m MultiNotifier) Success(msg string) {
	for _, n := range m {
		if n != nil {
			n.Success(msg)
		}
	}
}

func (m MultiNotifier) Error(msg string) {
	for _, n := range m {
		if n != nil {
			n.Error(msg)
		}
	}
}
