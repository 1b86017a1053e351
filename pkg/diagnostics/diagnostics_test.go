package diagnostics

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCollectorPreservesAppendOrder(t *testing.T) {
	c := NewCollector()
	c.Errorf(TypeHydrate, "my-cmp", "render failed: %s", "boom")
	c.Warnf(TypeHydrate, "", "limit reached")
	c.Infof(TypeCSS, "", "kept %d rules", 3)

	entries := c.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, LevelError, entries[0].Level)
	assert.Equal(t, "render failed: boom", entries[0].MessageText)
	assert.Equal(t, "my-cmp", entries[0].Header)
	assert.Equal(t, LevelWarn, entries[1].Level)
	assert.Equal(t, LevelInfo, entries[2].Level)
	assert.True(t, c.HasErrors())
}

func TestCollectorDefaultsLevelToError(t *testing.T) {
	c := NewCollector()
	c.Add(Diagnostic{Type: TypeBuild, MessageText: "unparsable"})
	assert.Equal(t, LevelError, c.Entries()[0].Level)
}

func TestEntriesReturnsCopy(t *testing.T) {
	c := NewCollector()
	c.Warnf(TypeCSS, "", "first")
	entries := c.Entries()
	entries[0].MessageText = "mutated"
	assert.Equal(t, "first", c.Entries()[0].MessageText)
}

func TestCollectorConcurrentAdds(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				c.Infof(TypeRuntime, "", "goroutine %d message %d", id, i)
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, 400, c.Len())
	assert.False(t, c.HasErrors())
}

func TestCollectorMirrorsToLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	c := NewCollector()
	c.Mirror(zap.New(core))

	c.Errorf(TypeHydrate, "bad-cmp", "exploded")
	c.Add(Diagnostic{Level: LevelDebug, Type: TypeRuntime, MessageText: "tick"})
	c.Mirror(nil)
	c.Warnf(TypeCSS, "", "not mirrored")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "exploded", entries[0].Message)
	assert.Equal(t, "bad-cmp", entries[0].ContextMap()["header"])
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	assert.Equal(t, 3, c.Len())
}

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{Level: LevelError, Header: "my-cmp", MessageText: "failed", RelFilePath: "index.html", LineNumber: 3, ColumnNumber: 7}
	assert.Equal(t, "[error] my-cmp: failed (index.html:3:7)", d.String())
	assert.Equal(t, "[warn] plain", fmt.Sprint(Diagnostic{Level: LevelWarn, MessageText: "plain"}))
}
