package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mit.edu/dsg/rowdb/common"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want Config
	}{
		{"empty document", "", Default()},
		{"overlay", "data_dir: /tmp/db\nlog_level: debug\n", Config{DataDir: "/tmp/db", LogLevel: "debug", LogFormat: "text"}},
		{"json logs", "log_format: json", Config{LogLevel: "info", LogFormat: "json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg)
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, doc := range []string{
		"datadir: /tmp",
		"log_level: loud",
		"log_format: xml",
		"data_dir: [",
	} {
		_, err := Parse([]byte(doc))
		assert.True(t, common.IsErrorCode(err, common.ParseError), doc)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rowdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Config{LogLevel: "warn", LogFormat: "json"}.NewLogger(&buf)
	require.NoError(t, err)
	logger.Info("dropped")
	logger.Warn("kept", "table", "users")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "kept", record["msg"])
	assert.Equal(t, "users", record["table"])
}
