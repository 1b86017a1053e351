// Package diagnostics provides the leveled, append-only log every stage of a
// render writes into. A Collector never fails and never reorders entries.
package diagnostics

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Level is the severity of a Diagnostic.
type Level string

const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelLog   Level = "log"
	LevelDebug Level = "debug"
)

// Diagnostic types recorded by the pipeline.
const (
	TypeBuild    = "build"
	TypeHydrate  = "hydrate"
	TypeHook     = "hook"
	TypeRuntime  = "runtime"
	TypeCSS      = "css"
	TypeSandbox  = "sandbox"
	TypeSettings = "settings"
)

// Line is one line of source surrounding a diagnostic's location.
type Line struct {
	LineIndex      int    `json:"lineIndex"`
	LineNumber     int    `json:"lineNumber"`
	Text           string `json:"text,omitempty"`
	ErrorCharStart int    `json:"errorCharStart"`
	ErrorLength    int    `json:"errorLength,omitempty"`
}

// Diagnostic is a structured record of a notable event or failure.
type Diagnostic struct {
	Level        Level  `json:"level"`
	Type         string `json:"type"`
	Header       string `json:"header,omitempty"`
	Language     string `json:"language,omitempty"`
	MessageText  string `json:"messageText"`
	DebugText    string `json:"debugText,omitempty"`
	Code         string `json:"code,omitempty"`
	AbsFilePath  string `json:"absFilePath,omitempty"`
	RelFilePath  string `json:"relFilePath,omitempty"`
	LineNumber   int    `json:"lineNumber,omitempty"`
	ColumnNumber int    `json:"columnNumber,omitempty"`
	Lines        []Line `json:"lines,omitempty"`
}

// String renders the diagnostic as a single line.
func (d Diagnostic) String() string {
	s := fmt.Sprintf("[%s] %s", d.Level, d.MessageText)
	if d.Header != "" {
		s = fmt.Sprintf("[%s] %s: %s", d.Level, d.Header, d.MessageText)
	}
	if d.RelFilePath != "" {
		s += fmt.Sprintf(" (%s:%d:%d)", d.RelFilePath, d.LineNumber, d.ColumnNumber)
	}
	return s
}

// Collector is a thread-safe, append-only list of diagnostics. When a mirror
// logger is attached, every appended diagnostic is also written to it.
type Collector struct {
	mu      sync.Mutex
	entries []Diagnostic
	mirror  *zap.Logger
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Mirror attaches a logger that receives a copy of every subsequent diagnostic.
// Passing nil detaches it.
func (c *Collector) Mirror(logger *zap.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mirror = logger
}

// Add appends d.
func (c *Collector) Add(d Diagnostic) {
	if d.Level == "" {
		d.Level = LevelError
	}
	c.mu.Lock()
	c.entries = append(c.entries, d)
	mirror := c.mirror
	c.mu.Unlock()

	if mirror != nil {
		logDiagnostic(mirror, d)
	}
}

// Errorf appends an error-level diagnostic.
func (c *Collector) Errorf(typ, header, format string, args ...interface{}) {
	c.Add(Diagnostic{Level: LevelError, Type: typ, Header: header, MessageText: fmt.Sprintf(format, args...)})
}

// Warnf appends a warn-level diagnostic.
func (c *Collector) Warnf(typ, header, format string, args ...interface{}) {
	c.Add(Diagnostic{Level: LevelWarn, Type: typ, Header: header, MessageText: fmt.Sprintf(format, args...)})
}

// Infof appends an info-level diagnostic.
func (c *Collector) Infof(typ, header, format string, args ...interface{}) {
	c.Add(Diagnostic{Level: LevelInfo, Type: typ, Header: header, MessageText: fmt.Sprintf(format, args...)})
}

// Entries returns a copy of the diagnostics in append order.
func (c *Collector) Entries() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len reports the number of diagnostics collected so far.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// HasErrors reports whether any error-level diagnostic was collected.
func (c *Collector) HasErrors() bool {
	return HasErrors(c.Entries())
}

// HasErrors reports whether ds contains an error-level diagnostic.
func HasErrors(ds []Diagnostic) bool {
	for _, d := range ds {
		if d.Level == LevelError {
			return true
		}
	}
	return false
}

func logDiagnostic(logger *zap.Logger, d Diagnostic) {
	fields := []zap.Field{zap.String("type", d.Type)}
	if d.Header != "" {
		fields = append(fields, zap.String("header", d.Header))
	}
	if d.Code != "" {
		fields = append(fields, zap.String("code", d.Code))
	}
	if d.RelFilePath != "" {
		fields = append(fields, zap.String("file", d.RelFilePath), zap.Int("line", d.LineNumber))
	}

	switch d.Level {
	case LevelError:
		logger.Error(d.MessageText, fields...)
	case LevelWarn:
		logger.Warn(d.MessageText, fields...)
	case LevelDebug:
		logger.Debug(d.MessageText, fields...)
	default:
		logger.Info(d.MessageText, fields...)
	}
}
