package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow-dev/logflow/internal/model"
	"github.com/logflow-dev/logflow/internal/testutil"
)

func TestStdout_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdoutWithWriter("out", StdoutConfig{Format: "json"}, &buf, testutil.NewTestLogger())

	ev := model.NewLogEvent("test", "hello")
	ev.Fields["level"] = "INFO"

	err := s.Write(context.Background(), model.Batch{ev})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &doc))
	assert.Equal(t, "hello", doc["raw_data"])
	assert.Equal(t, "test", doc["source"])
	assert.Equal(t, "INFO", doc["fields"].(map[string]any)["level"])
}

func TestStdout_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdoutWithWriter("out", StdoutConfig{Format: "text"}, &buf, testutil.NewTestLogger())

	ev := model.NewLogEvent("syslog", "raw line")
	err := s.Write(context.Background(), model.Batch{ev})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "[syslog]")
	assert.Contains(t, buf.String(), "raw line")
}

func TestStdout_BatchOrder(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdoutWithWriter("out", StdoutConfig{Format: "text"}, &buf, testutil.NewTestLogger())

	batch := model.Batch{
		model.NewLogEvent("t", "first"),
		model.NewLogEvent("t", "second"),
	}
	err := s.Write(context.Background(), batch)
	require.NoError(t, err)

	out := buf.String()
	assert.Less(t, strings.Index(out, "first"), strings.Index(out, "second"),
		"batch order not preserved")
}

func TestStdout_ConfigValidation(t *testing.T) {
	log := testutil.NewTestLogger()

	_, err := NewStdout("out", map[string]any{"format": "xml"}, log)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")

	_, err = NewStdout("out", map[string]any{"fromat": "json"}, log)
	assert.Error(t, err)
}
