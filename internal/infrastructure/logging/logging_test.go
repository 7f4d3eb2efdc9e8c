package logging

import (
	"bytes"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_TextToStdoutAndFile(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(previous)
		log.SetOutput(os.Stderr)
	})

	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "web.log")
	logger, closer, err := Init(Config{Service: "web", Level: "debug", File: path, Stdout: &console})
	require.NoError(t, err)
	require.NotNil(t, closer)

	logger.Debug("rendered dashboard", "handle", "alice.eth")
	log.Print("from std log")
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "rendered dashboard")
	assert.Contains(t, console.String(), "service=web")
	assert.Contains(t, console.String(), "from std log")

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(onDisk), "handle=alice.eth")
}

func TestInit_JSONFormatAndLevel(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(previous)
		log.SetOutput(os.Stderr)
	})

	var console bytes.Buffer
	logger, closer, err := Init(Config{Level: "warn", Format: "JSON", Stdout: &console})
	require.NoError(t, err)
	assert.Nil(t, closer)

	logger.Info("dropped")
	logger.Warn("kept", "status", 502)

	lines := strings.Split(strings.TrimSpace(console.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, float64(502), entry["status"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel(" DEBUG "))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestRotatingWriter_RotatesAndKeepsBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	writer, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })
	writer.maxSize = 10

	for _, line := range []string{"first-01\n", "second02\n", "third-03\n", "fourth04\n"} {
		_, err := writer.Write([]byte(line))
		require.NoError(t, err)
	}

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fourth04\n", string(current))

	newest, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, "third-03\n", string(newest))

	oldest, err := os.ReadFile(path + ".2")
	require.NoError(t, err)
	assert.Equal(t, "second02\n", string(oldest))

	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err))
}

func TestRotatingWriter_NoBackupsTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	writer, err := NewRotatingWriter(path, 1, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })

	_, err = writer.Write([]byte("before\n"))
	require.NoError(t, err)
	require.NoError(t, writer.Rotate())
	_, err = writer.Write([]byte("after\n"))
	require.NoError(t, err)

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "after\n", string(current))
	_, err = os.Stat(path + ".1")
	assert.True(t, os.IsNotExist(err))
}

func TestRotatingWriter_AppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	writer, err := NewRotatingWriter(path, 1, 1)
	require.NoError(t, err)
	_, err = writer.Write([]byte("new\n"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old\nnew\n", string(current))

	_, err = NewRotatingWriter("", 1, 1)
	assert.Error(t, err)
}
