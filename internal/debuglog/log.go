// Package debuglog holds the logger used for SDK diagnostics.
package debuglog

import (
	"io"
	"log"
	"os"
	"sync"
)

const Prefix = "[Raven] "

var (
	logger = log.New(io.Discard, Prefix, log.LstdFlags)
	mu     sync.RWMutex
)

// SetLogger replaces the current debug logger with a new one.
// Passing nil silences diagnostics.
func SetLogger(l *log.Logger) {
	if l == nil {
		l = log.New(io.Discard, Prefix, log.LstdFlags)
	}
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// SetOutput redirects the current logger. A nil writer means os.Stderr.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	GetLogger().SetOutput(w)
}

// GetLogger returns the current logger instance.
func GetLogger() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Printf(format string, args ...interface{}) {
	GetLogger().Printf(format, args...)
}

func Println(args ...interface{}) {
	GetLogger().Println(args...)
}
