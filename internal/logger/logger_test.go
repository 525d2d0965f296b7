package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomFormatter_Format(t *testing.T) {
	entry := &logrus.Entry{
		Logger:  logrus.New(),
		Time:    time.Date(2026, 3, 1, 8, 30, 0, 0, time.Local),
		Level:   logrus.WarnLevel,
		Message: "下载超时",
		Data:    logrus.Fields{"item": "4", "attempt": 1},
	}

	out, err := (&CustomFormatter{}).Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "[2026-03-01 08:30:00] [WARN] [] 下载超时 attempt=1 item=4\n", string(out))
}

func TestCustomFormatter_TruncatesLevel(t *testing.T) {
	entry := &logrus.Entry{Logger: logrus.New(), Level: logrus.ErrorLevel, Message: "x"}

	out, err := (&CustomFormatter{}).Format(entry)
	require.NoError(t, err)
	assert.Contains(t, string(out), "[ERRO]")
}

func TestInitLogger_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.log")

	require.NoError(t, InitLogger("debug", path))
	var stdout bytes.Buffer
	Log.SetOutput(&stdout)
	assert.Equal(t, logrus.DebugLevel, Log.GetLevel())

	_, err := os.Stat(filepath.Dir(path))
	assert.NoError(t, err)
}

func TestInitLogger_FallsBackToInfo(t *testing.T) {
	require.NoError(t, InitLogger("verbose", ""))
	assert.Equal(t, logrus.InfoLevel, Log.GetLevel())
}
