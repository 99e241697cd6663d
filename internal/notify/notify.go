// Package notify delivers transient user notifications (toasts).
package notify

import (
	"sync"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

type Notification struct {
	Level   Level
	Message string
}

type Notifier interface {
	Notify(n Notification)
}

func Success(n Notifier, msg string) {
	if n != nil && msg != "" {
		n.Notify(Notification{Level: LevelSuccess, Message: msg})
	}
}

func Error(n Notifier, msg string) {
	if n != nil && msg != "" {
		n.Notify(Notification{Level: LevelError, Message: msg})
	}
}

// LogNotifier writes notifications to a logger, for headless clients.
type LogNotifier struct {
	Log zerolog.Logger
}

func (l LogNotifier) Notify(n Notification) {
	ev := l.Log.Info()
	if n.Level == LevelError {
		ev = l.Log.Warn()
	}
	ev.Str("level", string(n.Level)).Msg(n.Message)
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Last returns the most recent notification.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return Notification{}, false
	}
	return r.items[len(r.items)-1], true
}
