package logger

import (
	"github.com/fatih/color" // Import the fatih/color package for colored console output
)

// Colorized printf-style functions for the different log levels.
// Each behaves like fmt.Printf; callers prefix messages with [INFO], [WARN], ...

// Info logs informational messages in green.
var Info = color.New(color.FgGreen).PrintfFunc()

// Warn logs warnings in bright magenta.
var Warn = color.New(color.FgHiMagenta).PrintfFunc()

// Error logs errors in red.
var Error = color.New(color.FgRed).PrintfFunc()

// Debug logs debug messages in cyan once enabled through Init.
// It starts out as a no-op so packages can log before (or without) the CLI calling Init,
// which is what happens under `go test`.
var Debug = func(format string, a ...any) {}

// Init enables or disables debug logging.
// When enabled, Debug prints cyan messages; otherwise it stays a no-op.
func Init(enableDebug bool) {
	if enableDebug {
		Debug = color.New(color.FgCyan).PrintfFunc()
	} else {
		Debug = func(format string, a ...any) {}
	}
}
