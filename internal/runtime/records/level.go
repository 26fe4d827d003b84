package records

import (
	"fmt"
	"strings"
)

// Level is the severity discriminator carried by every record.
type Level string

const (
	LevelInfo      Level = "Info"
	LevelWarning   Level = "Warning"
	LevelException Level = "Exception"
	LevelFailed    Level = "Failed"
)

// Levels lists every level in ascending severity.
var Levels = []Level{LevelInfo, LevelWarning, LevelException, LevelFailed}

func (l Level) String() string { return string(l) }

// Valid reports whether l is one of the four known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelInfo, LevelWarning, LevelException, LevelFailed:
		return true
	}
	return false
}

// ParseLevel maps s onto a Level, ignoring case and surrounding space.
func ParseLevel(s string) (Level, error) {
	trimmed := strings.TrimSpace(s)
	for _, lvl := range Levels {
		if strings.EqualFold(trimmed, string(lvl)) {
			return lvl, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLevel, s)
}

// ParseLevels parses a list of level names, failing on the first unknown one.
func ParseLevels(names []string) ([]Level, error) {
	out := make([]Level, 0, len(names))
	for _, name := range names {
		lvl, err := ParseLevel(name)
		if err != nil {
			return nil, err
		}
		out = append(out, lvl)
	}
	return out, nil
}
