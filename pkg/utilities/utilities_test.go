package utilities

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestIDGenerator_Unique(t *testing.T) {
	g := NewIDGenerator(1)
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := g.NewID()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestIDGenerator_FallsBackToKSUID(t *testing.T) {
	g := NewIDGenerator(-5)
	id := g.NewID()
	assert.Len(t, id, 27)
}

func TestLevelFromString(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, levelFromString("debug"))
	assert.Equal(t, zapcore.WarnLevel, levelFromString("warning"))
	assert.Equal(t, zapcore.ErrorLevel, levelFromString("error"))
	assert.Equal(t, zapcore.InfoLevel, levelFromString("nonsense"))
}

func TestConfig_EffectiveLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, Config{Dev: true}.effectiveLevel())
	assert.Equal(t, zapcore.InfoLevel, Config{}.effectiveLevel())
	assert.Equal(t, zapcore.ErrorLevel, Config{Dev: true, Level: "error"}.effectiveLevel())
}

func TestInit_WithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.log")
	lg, err := Init(Config{Level: "info", File: path})
	require.NoError(t, err)
	lg.Info("hello")
	_ = lg.Sync()
}
