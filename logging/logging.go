// Package logging holds the agent-wide logrus logger.
//
// Components log through an entry tagged with their name, which the text
// formatter renders as a "[component]" prefix:
//
//	log := logging.For("phonenfc")
//	log.Infof("Device registered: %s", id)
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the shared logger. Init configures it; before Init it logs at
// info level to stderr.
var Logger = logrus.New()

// componentHook prefixes messages with the entry's component field.
type componentHook struct{}

func (h *componentHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *componentHook) Fire(entry *logrus.Entry) error {
	if c, ok := entry.Data["component"].(string); ok && c != "" {
		entry.Message = "[" + c + "] " + entry.Message
		delete(entry.Data, "component")
	}
	return nil
}

func init() {
	Logger.AddHook(&componentHook{})
}

// Init sets the output, level and formatter. An unknown level falls back to
// info with a warning.
func Init(level string, out io.Writer) {
	if out == nil {
		out = os.Stderr
	}
	Logger.SetOutput(out)

	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		Logger.Warnf("Invalid log level '%s', defaulting to INFO", level)
		lvl = logrus.InfoLevel
	}
	Logger.SetLevel(lvl)

	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// For returns an entry for the named component.
func For(component string) *logrus.Entry {
	return Logger.WithField("component", component)
}
