// Package notify carries user-visible alerts from operations to whatever
// surface is showing them (log, tray, WebSocket clients).
package notify

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Level classifies an alert.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Alert is a user-visible notification.
type Alert struct {
	Level   Level     `json:"level"`
	Title   string    `json:"title"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// Info builds an info-level alert.
func Info(title, message string) Alert {
	return Alert{Level: LevelInfo, Title: title, Message: message, Time: time.Now()}
}

// Error builds an error-level alert.
func Error(title, message string) Alert {
	return Alert{Level: LevelError, Title: title, Message: message, Time: time.Now()}
}

// Alerter shows alerts to the user.
type Alerter interface {
	Alert(a Alert)
}

// AlerterFunc adapts a function to Alerter.
type AlerterFunc func(a Alert)

func (f AlerterFunc) Alert(a Alert) {
	f(a)
}

// LogAlerter writes alerts to a logrus entry.
type LogAlerter struct {
	Logger *logrus.Entry
}

func (l *LogAlerter) Alert(a Alert) {
	entry := l.Logger.WithField("title", a.Title)
	if a.Level == LevelError {
		entry.Warnf("Alert: %s", a.Message)
		return
	}
	entry.Infof("Alert: %s", a.Message)
}

// Multi fans an alert out to every alerter.
type Multi []Alerter

func (m Multi) Alert(a Alert) {
	for _, alerter := range m {
		if alerter != nil {
			alerter.Alert(a)
		}
	}
}

// Recorder keeps every alert it receives. It is safe for concurrent use and
// is handy for tests and "last alert" displays.
type Recorder struct {
	mu     sync.Mutex
	alerts []Alert
}

func (r *Recorder) Alert(a Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

// Alerts returns a copy of the recorded alerts.
func (r *Recorder) Alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Alert, len(r.alerts))
	copy(out, r.alerts)
	return out
}

// Last returns the most recent alert.
func (r *Recorder) Last() (Alert, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.alerts) == 0 {
		return Alert{}, false
	}
	return r.alerts[len(r.alerts)-1], true
}
