// pkg/logging/console.go - colored console output for command-line tools.

package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

var (
	colorSuccess = color.New(color.FgGreen)
	colorError   = color.New(color.FgRed)
	colorWarning = color.New(color.FgYellow)
	colorDebug   = color.New(color.FgBlue)
)

// Logger prints timestamped, colored lines for interactive use.
type Logger struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
}

// New creates a console Logger. Debug lines are only printed when verbose is set.
func New(verbose bool) *Logger {
	return &Logger{out: color.Output, verbose: verbose}
}

// SetOutput changes the output destination.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

func (l *Logger) colorPrintf(c *color.Color, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := time.Now().Format("2006-01-02 15:04:05")
	msg := fmt.Sprintf(format, v...)
	if c == nil {
		fmt.Fprintf(l.out, "[%s] %s\n", ts, msg)
		return
	}
	c.Fprintf(l.out, "[%s] %s\n", ts, msg)
}

// Printf prints a regular message.
func (l *Logger) Printf(format string, v ...interface{}) {
	l.colorPrintf(nil, format, v...)
}

// Info prints an informational message (instance method counterpart to the package-level Info).
func (l *Logger) Info(format string, v ...interface{}) {
	l.Printf(format, v...)
}

// Success prints a success message in green.
func (l *Logger) Success(format string, v ...interface{}) {
	l.colorPrintf(colorSuccess, format, v...)
}

// Error prints an error message in red.
func (l *Logger) Error(format string, v ...interface{}) {
	l.colorPrintf(colorError, format, v...)
}

// Warning prints a warning message in yellow.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.colorPrintf(colorWarning, format, v...)
}

// Debug prints a debug message in blue.
func (l *Logger) Debug(format string, v ...interface{}) {
	if !l.verbose {
		return
	}
	l.colorPrintf(colorDebug, format, v...)
}

// Fatal prints an error message in red and exits.
func (l *Logger) Fatal(format string, v ...interface{}) {
	l.Error(format, v...)
	CloseLogger()
	os.Exit(1)
}
