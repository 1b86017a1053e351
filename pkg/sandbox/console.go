package sandbox

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/prerender/pkg/diagnostics"
	"go.uber.org/zap"
)

// Console is the window's console. Warnings and errors become runtime
// diagnostics when the window has a collector. Everything else reaches the
// process logger only when runtime logging is enabled.
type Console struct {
	logger  *zap.Logger
	enabled bool
	diags   *diagnostics.Collector
}

func newConsole(logger *zap.Logger, enabled bool, diags *diagnostics.Collector) *Console {
	return &Console{logger: logger.Named("console"), enabled: enabled, diags: diags}
}

func (c *Console) Log(args ...interface{})   { c.write(diagnostics.LevelLog, args) }
func (c *Console) Info(args ...interface{})  { c.write(diagnostics.LevelInfo, args) }
func (c *Console) Debug(args ...interface{}) { c.write(diagnostics.LevelDebug, args) }
func (c *Console) Warn(args ...interface{})  { c.write(diagnostics.LevelWarn, args) }
func (c *Console) Error(args ...interface{}) { c.write(diagnostics.LevelError, args) }

func (c *Console) write(level diagnostics.Level, args []interface{}) {
	msg := joinArgs(args)

	// The collector mirrors its own entries to the process log when runtime
	// logging is on, so recorded levels are not logged a second time here.
	if c.diags != nil && (level == diagnostics.LevelWarn || level == diagnostics.LevelError) {
		c.diags.Add(diagnostics.Diagnostic{
			Level:       level,
			Type:        diagnostics.TypeRuntime,
			Header:      "Runtime " + string(level),
			MessageText: msg,
		})
		return
	}

	if !c.enabled {
		return
	}
	switch level {
	case diagnostics.LevelError:
		c.logger.Error(msg)
	case diagnostics.LevelWarn:
		c.logger.Warn(msg)
	case diagnostics.LevelDebug:
		c.logger.Debug(msg)
	default:
		c.logger.Info(msg)
	}
}

func joinArgs(args []interface{}) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	return strings.Join(parts, " ")
}
