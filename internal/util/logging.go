// Package util provides shared helper utilities.
package util

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
)

const (
	colorReset  = "\x1b[0m"
	colorRed    = "\x1b[31m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
	colorBlue   = "\x1b[34m"
	colorGray   = "\x1b[90m"
)

var verbose atomic.Bool

// SetVerbose toggles Debugf output.
func SetVerbose(on bool) {
	verbose.Store(on)
}

// Debugf logs a debug message when verbose logging is on.
func Debugf(format string, args ...any) {
	if !verbose.Load() {
		return
	}
	log.Printf("%s %s", colorize(colorGray, "DEBUG"), fmt.Sprintf(format, args...))
}

// Infof logs an info message.
func Infof(format string, args ...any) {
	log.Printf("%s %s", colorize(colorGreen, "INFO"), fmt.Sprintf(format, args...))
}

// Warnf logs a warning message.
func Warnf(format string, args ...any) {
	log.Printf("%s %s", colorize(colorYellow, "WARN"), fmt.Sprintf(format, args...))
}

// Errorf logs an error message.
func Errorf(format string, args ...any) {
	log.Printf("%s %s", colorize(colorRed, "ERROR"), fmt.Sprintf(format, args...))
}

// Highlightf logs a highlighted message.
func Highlightf(format string, args ...any) {
	log.Printf("%s %s", colorize(colorBlue, "NOTE"), fmt.Sprintf(format, args...))
}

// TeeLogFile mirrors log output into path in addition to stdout.
// The returned closer must be closed on shutdown.
func TeeLogFile(path string) (io.Closer, error) {
	if path == "" {
		return nil, nil
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	log.SetOutput(io.MultiWriter(os.Stdout, f))
	return f, nil
}

func colorize(color, msg string) string {
	return color + msg + colorReset
}
