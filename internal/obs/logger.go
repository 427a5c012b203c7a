// Package obs provides the structured logging, error wrapping, and
// graceful-shutdown primitives shared across the runtime. It is the
// ambient stack every other package logs and fails through.
package obs

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a log entry.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
	Fatal
)

var levelNames = map[Level]string{
	Debug: "DEBUG",
	Info:  "INFO",
	Warn:  "WARN",
	Error: "ERROR",
	Fatal: "FATAL",
}

var levelColors = map[Level]string{
	Debug: "\033[36m",
	Info:  "\033[32m",
	Warn:  "\033[33m",
	Error: "\033[31m",
	Fatal: "\033[35m",
}

const colorReset = "\033[0m"

// Logger is a minimal structured logger: level, component, key=value fields.
type Logger struct {
	mu        sync.Mutex
	level     Level
	component string
	output    io.Writer
	colorize  bool
}

// Config configures a Logger.
type Config struct {
	Level     Level
	Component string
	Output    io.Writer
	Colorize  bool
}

// New creates a Logger from Config, defaulting Output to os.Stderr.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	return &Logger{
		level:     cfg.Level,
		component: cfg.Component,
		output:    cfg.Output,
		colorize:  cfg.Colorize,
	}
}

// Default returns a Logger with sensible defaults for the given component.
func Default(component string) *Logger {
	return New(Config{Level: Info, Component: component, Output: os.Stderr, Colorize: true})
}

// With returns a copy of the logger scoped to a different component name,
// e.g. Default("tiermem").With("scheduler").
func (l *Logger) With(component string) *Logger {
	return &Logger{level: l.level, component: component, output: l.output, colorize: l.colorize}
}

// Field is a structured key/value pair attached to a log line.
type Field struct {
	Key   string
	Value interface{}
}

func String(k, v string) Field          { return Field{k, v} }
func Int(k string, v int) Field         { return Field{k, v} }
func Int64(k string, v int64) Field     { return Field{k, v} }
func Uint32(k string, v uint32) Field   { return Field{k, v} }
func Uint64(k string, v uint64) Field   { return Field{k, v} }
func Float32(k string, v float32) Field { return Field{k, v} }
func Bool(k string, v bool) Field       { return Field{k, v} }
func Err(err error) Field               { return Field{"error", err} }
func Duration(k string, v time.Duration) Field { return Field{k, v} }

func (f Field) format() string {
	switch v := f.Value.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case error:
		return fmt.Sprintf("%q", v.Error())
	case time.Duration:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(Debug, msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(Info, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(Warn, msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(Error, msg, fields...) }

// Fatal logs at Fatal and exits the process, matching the source's
// "the core aborts the process on anything that compromises its
// invariants" propagation policy.
func (l *Logger) Fatal(msg string, fields ...Field) {
	l.log(Fatal, msg, fields...)
	os.Exit(1)
}

func (l *Logger) log(level Level, msg string, fields ...Field) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	var b strings.Builder
	if l.colorize {
		b.WriteString(levelColors[level])
	}
	b.WriteString("[")
	b.WriteString(time.Now().Format("15:04:05.000"))
	b.WriteString("] [")
	b.WriteString(fmt.Sprintf("%-5s", levelNames[level]))
	b.WriteString("]")
	if l.component != "" {
		b.WriteString(" [")
		b.WriteString(l.component)
		b.WriteString("]")
	}
	b.WriteString(" ")
	b.WriteString(msg)
	for _, f := range fields {
		b.WriteString(" ")
		b.WriteString(f.Key)
		b.WriteString("=")
		b.WriteString(f.format())
	}
	if l.colorize {
		b.WriteString(colorReset)
	}
	b.WriteString("\n")

	l.output.Write([]byte(b.String()))
}
