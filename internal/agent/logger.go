package agent

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Logger handles formatted output for the agent
type Logger struct {
	verbose     bool
	useColor    bool
	jsonRPCMode bool
	writer      io.Writer
	mu          sync.Mutex

	info    *color.Color
	success *color.Color
	warning *color.Color
	err     *color.Color
	debug   *color.Color
	request *color.Color
	reply   *color.Color
}

// NewLogger creates a new logger writing to stdout
func NewLogger(verbose, useColor, jsonRPCMode bool) *Logger {
	return NewLoggerWithWriter(verbose, useColor, jsonRPCMode, os.Stdout)
}

// NewLoggerWithWriter creates a new logger with a custom writer
func NewLoggerWithWriter(verbose, useColor, jsonRPCMode bool, w io.Writer) *Logger {
	l := &Logger{
		verbose:     verbose,
		useColor:    useColor,
		jsonRPCMode: jsonRPCMode,
		writer:      w,
		info:        color.New(color.FgCyan),
		success:     color.New(color.FgGreen),
		warning:     color.New(color.FgYellow),
		err:         color.New(color.FgRed, color.Bold),
		debug:       color.New(color.FgHiBlack),
		request:     color.New(color.FgBlue),
		reply:       color.New(color.FgMagenta),
	}
	l.applyColor()
	return l
}

func (l *Logger) applyColor() {
	for _, c := range []*color.Color{l.info, l.success, l.warning, l.err, l.debug, l.request, l.reply} {
		if l.useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

// SetVerbose toggles verbose output
func (l *Logger) SetVerbose(verbose bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verbose = verbose
}

// SetWriter replaces the output writer and returns the previous one
func (l *Logger) SetWriter(w io.Writer) io.Writer {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.writer
	l.writer = w
	return prev
}

func (l *Logger) print(c *color.Color, prefix, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	ts := time.Now().Format("15:04:05")
	fmt.Fprintf(l.writer, "[%s] %s\n", ts, c.Sprint(prefix+msg))
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.print(l.info, "", format, args...)
}

// Success logs a success message
func (l *Logger) Success(format string, args ...interface{}) {
	l.print(l.success, "", format, args...)
}

// Warning logs a warning
func (l *Logger) Warning(format string, args ...interface{}) {
	l.print(l.warning, "", format, args...)
}

// Error logs an error
func (l *Logger) Error(format string, args ...interface{}) {
	l.print(l.err, "", format, args...)
}

// Debug logs only in verbose mode
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.isVerbose() {
		return
	}
	l.print(l.debug, "", format, args...)
}

// InfoVerbose logs an informational message only in verbose mode. Safe on a nil logger.
func (l *Logger) InfoVerbose(format string, args ...interface{}) {
	if l == nil || !l.isVerbose() {
		return
	}
	l.print(l.info, "", format, args...)
}

// WarningVerbose logs a warning only in verbose mode. Safe on a nil logger.
func (l *Logger) WarningVerbose(format string, args ...interface{}) {
	if l == nil || !l.isVerbose() {
		return
	}
	l.print(l.warning, "", format, args...)
}

// Request logs an outgoing message. The payload is only printed in JSON-RPC mode.
func (l *Logger) Request(method string, params interface{}) {
	if l.jsonRPCMode {
		l.print(l.request, "→ ", "%s\n%s", method, PrettyJSON(params))
		return
	}
	l.print(l.request, "→ ", "%s", method)
}

// Response logs an incoming reply. The payload is only printed in JSON-RPC mode.
func (l *Logger) Response(method string, result interface{}) {
	if l.jsonRPCMode {
		l.print(l.reply, "← ", "%s\n%s", method, PrettyJSON(result))
		return
	}
	l.print(l.reply, "← ", "%s", method)
}

func (l *Logger) isVerbose() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.verbose
}

// orDiscard returns l, or a logger that drops everything when l is nil
func orDiscard(l *Logger) *Logger {
	if l != nil {
		return l
	}
	return NewLoggerWithWriter(false, false, false, io.Discard)
}
