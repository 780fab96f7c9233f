package config

import (
	"fmt"
	"strings"
)

// Level is the lowest severity a logger writes.
type Level int

const (
	UnknownLevel Level = iota
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = map[Level]string{
	DebugLevel: "debug",
	InfoLevel:  "info",
	WarnLevel:  "warn",
	ErrorLevel: "error",
}

// ParseLevel returns UnknownLevel for anything that is not a level name.
func ParseLevel(s string) Level {
	s = strings.ToLower(strings.TrimSpace(s))
	for l, name := range levelNames {
		if name == s {
			return l
		}
	}
	return UnknownLevel
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "unknown"
}

// Enabled reports whether a message at level msg passes a logger set to l.
func (l Level) Enabled(msg Level) bool {
	return l == UnknownLevel || msg >= l
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	if *l = ParseLevel(string(text)); *l == UnknownLevel {
		return fmt.Errorf("unknown logging level %q", string(text))
	}
	return nil
}
