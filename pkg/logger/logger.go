package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

var levelColors = map[Level]*color.Color{
	DEBUG: color.New(color.FgHiBlack),
	INFO:  color.New(color.FgCyan),
	WARN:  color.New(color.FgYellow),
	ERROR: color.New(color.FgRed),
}

// Logger is a minimal leveled printf-style logger.
type Logger struct {
	mu     sync.Mutex
	level  Level
	prefix string
	out    io.Writer
}

func New(level Level, prefix string) *Logger {
	return &Logger{level: level, prefix: prefix, out: os.Stderr}
}

// Discard returns a logger that drops everything; handy as a nil-safe
// default in library code and tests.
func Discard() *Logger {
	return &Logger{level: ERROR + 1, out: io.Discard}
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) Debug(format string, args ...any) { l.log(DEBUG, format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.log(INFO, format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.log(WARN, format, args...) }
func (l *Logger) Error(format string, args ...any) { l.log(ERROR, format, args...) }

func (l *Logger) log(level Level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}

	ts := time.Now().Format("15:04:05")
	tag := levelColors[level].Sprintf("%-5s", levelNames[level])
	msg := fmt.Sprintf(format, args...)

	if l.prefix != "" {
		fmt.Fprintf(l.out, "%s %s [%s] %s\n", ts, tag, l.prefix, msg)
		return
	}
	fmt.Fprintf(l.out, "%s %s %s\n", ts, tag, msg)
}
