package logging

import "strings"

// Config is the subset of zone configuration the logger needs. It is filled
// in by config.Config's layered loader (defaults → YAML → env → flags) and
// passed to NewLogger once at startup — there is no flag/env parsing here.
type Config struct {
	Level        string   `yaml:"level"`
	TraceModules []string `yaml:"trace_modules"`
	LogDir       string   `yaml:"log_dir"`
}

// ParseLevel converts a level name (case-insensitive) to a LogLevel,
// defaulting to INFO for unknown input.
func ParseLevel(name string) LogLevel {
	if level, ok := levelFromString[strings.ToUpper(name)]; ok {
		return level
	}
	return INFO
}
