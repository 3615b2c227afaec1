package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"vcompressor/app/config"
)

func TestNewFileOutput(t *testing.T) {
	dir := t.TempDir()
	log := New(config.LogConfig{
		Level:   "info",
		Format:  "json",
		Output:  "file",
		Dir:     dir,
		MaxSize: 1,
	})

	log.Info("压缩完成")
	log.Named("queue").Infof("任务 %d 完成", 1)
	require.NoError(t, log.Close())

	data, err := os.ReadFile(dailyFileName(dir, time.Now()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "压缩完成")
	assert.Contains(t, string(data), `"logger":"queue"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestDailyFileName(t *testing.T) {
	day := time.Date(2024, 5, 1, 13, 0, 0, 0, time.Local)
	assert.Equal(t, filepath.Join("logs", "2024-05-01.log"), dailyFileName("logs", day))
}

func TestNewNop(t *testing.T) {
	log := NewNop()
	log.Errorf("不会输出 %s", "x")
	assert.NoError(t, log.Close())
}
