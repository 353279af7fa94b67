package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLogWriterConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	w := logWriter(Config{}, &buf)
	zerolog.New(w).Info().Msg("hello")
	if !strings.Contains(buf.String(), `"message":"hello"`) {
		t.Fatalf("expected JSON output, got %q", buf.String())
	}
}

func TestLogWriterTeesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tradewatch.log")
	var buf bytes.Buffer
	w := logWriter(Config{File: FileConfig{Path: path, MaxSizeMB: 1}}, &buf)
	zerolog.New(w).Warn().Str("component", "test").Msg("to both")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取日志文件失败: %v", err)
	}
	if !strings.Contains(string(data), "to both") || !strings.Contains(buf.String(), "to both") {
		t.Fatalf("message should reach console and file, file=%q console=%q", data, buf.String())
	}
}
