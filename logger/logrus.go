package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/honeycombio/traceguard/config"
)

// LogrusLogger is a Logger implementation that sends all logs to stdout using
// the Logrus package to get nice formatting
type LogrusLogger struct {
	Config config.Config `inject:""`

	// Output overrides the destination of the logs; stdout when nil.
	Output io.Writer

	logger *logrus.Logger
	level  config.Level
}

var _ = Logger((*LogrusLogger)(nil))

type LogrusEntry struct {
	entry *logrus.Entry
	level logrus.Level
}

func (l *LogrusLogger) Start() error {
	l.logger = logrus.New()
	l.logger.SetOutput(os.Stdout)
	if l.Output != nil {
		l.logger.SetOutput(l.Output)
	}

	if l.level == config.UnknownLevel {
		l.level = l.Config.GetLoggerLevel()
	}
	l.logger.SetLevel(toLogrusLevel(l.level))

	cfg := l.Config.GetLoggerConfig()
	if cfg.Format == "json" {
		l.logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func (l *LogrusLogger) entryAt(lvl config.Level) Entry {
	if l.logger == nil || !l.level.Enabled(lvl) {
		return nullEntry
	}
	return &LogrusEntry{
		entry: logrus.NewEntry(l.logger),
		level: toLogrusLevel(lvl),
	}
}

func (l *LogrusLogger) Debug() Entry { return l.entryAt(config.DebugLevel) }
func (l *LogrusLogger) Info() Entry  { return l.entryAt(config.InfoLevel) }
func (l *LogrusLogger) Warn() Entry  { return l.entryAt(config.WarnLevel) }
func (l *LogrusLogger) Error() Entry { return l.entryAt(config.ErrorLevel) }

func (l *LogrusLogger) SetLevel(level string) error {
	lvl := config.ParseLevel(level)
	if lvl == config.UnknownLevel {
		_, err := logrus.ParseLevel(level)
		return err
	}
	// record the choice and set it if we're already initialized
	l.level = lvl
	if l.logger != nil {
		l.logger.SetLevel(toLogrusLevel(lvl))
	}
	return nil
}

func (l *LogrusEntry) WithField(key string, value any) Entry {
	return &LogrusEntry{
		entry: l.entry.WithField(key, value),
		level: l.level,
	}
}

func (l *LogrusEntry) WithString(key string, value string) Entry {
	return l.WithField(key, value)
}

func (l *LogrusEntry) WithFields(fields map[string]any) Entry {
	return &LogrusEntry{
		entry: l.entry.WithFields(fields),
		level: l.level,
	}
}

func (l *LogrusEntry) Logf(f string, args ...any) {
	l.entry.Logf(l.level, f, args...)
}

func toLogrusLevel(lvl config.Level) logrus.Level {
	switch lvl {
	case config.DebugLevel:
		return logrus.DebugLevel
	case config.WarnLevel:
		return logrus.WarnLevel
	case config.ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
