// Package logger provides a process-wide file logger. Heuristic warnings
// from the recorder and synthesizer (classification ambiguities, dropped
// samples, degraded extraction) land here so they never pollute stdout.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

var (
	globalLogger *log.Logger
	logFile      *os.File
	echo         bool
	mu           sync.Mutex
)

// Init initializes the global logger with the specified log file path.
// When verbose is true, warnings and errors are echoed to stderr.
func Init(logPath string, verbose bool) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	logFile = f
	globalLogger = log.New(f, "", log.Ltime|log.Lmicroseconds)
	echo = verbose

	return nil
}

// Close closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
		globalLogger = nil
	}
}

// Info logs an info message.
func Info(format string, v ...interface{}) {
	write("[INFO] ", false, format, v...)
}

// Debug logs a debug message.
func Debug(format string, v ...interface{}) {
	write("[DEBUG] ", false, format, v...)
}

// Warn logs a warning message.
func Warn(format string, v ...interface{}) {
	write("[WARN] ", true, format, v...)
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	write("[ERROR] ", true, format, v...)
}

func write(prefix string, important bool, format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if globalLogger != nil {
		globalLogger.Printf(prefix+format, v...)
	}
	if echo && important {
		fmt.Fprintf(os.Stderr, prefix+format+"\n", v...)
	}
}

// GetWriter returns the underlying writer for subprocess output capture.
func GetWriter() io.Writer {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		return logFile
	}
	return io.Discard
}
