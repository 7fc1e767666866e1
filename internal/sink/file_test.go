package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow-dev/logflow/internal/model"
	"github.com/logflow-dev/logflow/internal/testutil"
)

// memWriteCloser is an in-memory WriteCloser for factory injection.
type memWriteCloser struct {
	bytes.Buffer
	closed bool
}

func (m *memWriteCloser) Close() error {
	m.closed = true
	return nil
}

func newTestFileSink(t *testing.T, cfg FileConfig) (*File, *memWriteCloser) {
	t.Helper()

	w := &memWriteCloser{}
	s := NewFileWithOptions("archive", cfg, testutil.NewTestLogger(),
		WithWriterFactory(func(FileConfig) (io.WriteCloser, error) {
			return w, nil
		}))

	require.NoError(t, s.Open(context.Background()))
	return s, w
}

func TestFile_Open_FactoryError(t *testing.T) {
	s := NewFileWithOptions("archive", FileConfig{Path: "/tmp/out.log"}, testutil.NewTestLogger(),
		WithWriterFactory(func(FileConfig) (io.WriteCloser, error) {
			return nil, errors.New("factory error")
		}))

	err := s.Open(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "factory error")
}

func TestFile_JSONFormat(t *testing.T) {
	s, w := newTestFileSink(t, FileConfig{Path: "/tmp/out.log", Format: "json"})

	ev := model.NewLogEvent("test", "payload")
	ev.Fields["k"] = "v"

	err := s.Write(context.Background(), model.Batch{ev})
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(w.Bytes()), &doc))
	assert.Equal(t, "payload", doc["raw_data"])
	assert.Equal(t, "v", doc["fields"].(map[string]any)["k"])
}

func TestFile_TextTemplate(t *testing.T) {
	cfg := FileConfig{
		Path:         "/tmp/out.log",
		Format:       "text",
		Template:     "{source} {message}",
		MessageField: "message",
	}
	s, w := newTestFileSink(t, cfg)

	ev := model.NewLogEvent("app", "fallback raw")
	ev.Fields["message"] = "structured message"

	err := s.Write(context.Background(), model.Batch{ev})
	require.NoError(t, err)

	assert.Equal(t, "app structured message", strings.TrimSpace(w.String()))
}

func TestFile_TextTemplateFallsBackToRaw(t *testing.T) {
	cfg := FileConfig{
		Path:         "/tmp/out.log",
		Format:       "text",
		Template:     "{message}",
		MessageField: "message",
	}
	s, w := newTestFileSink(t, cfg)

	ev := model.NewLogEvent("app", "just raw")
	err := s.Write(context.Background(), model.Batch{ev})
	require.NoError(t, err)

	assert.Equal(t, "just raw", strings.TrimSpace(w.String()))
}

func TestFile_CloseClosesWriter(t *testing.T) {
	s, w := newTestFileSink(t, FileConfig{Path: "/tmp/out.log", Format: "json"})

	require.NoError(t, s.Close(context.Background()))
	assert.True(t, w.closed, "expected underlying writer closed")
}

func TestFile_ConfigValidation(t *testing.T) {
	log := testutil.NewTestLogger()

	_, err := NewFile("f", map[string]any{}, log)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")

	_, err = NewFile("f", map[string]any{"path": "/tmp/x", "format": "csv"}, log)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
