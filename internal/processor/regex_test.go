package processor

import (
	"context"
	"testing"

	"github.com/logflow-dev/logflow/internal/model"
	"github.com/logflow-dev/logflow/internal/testutil"
)

func TestRegex_NamedCaptures(t *testing.T) {
	cfg := map[string]any{
		"pattern": `(?P<method>[A-Z]+) (?P<path>\S+) (?P<status>\d+)`,
	}
	proc, err := NewRegex("regex", cfg, testutil.NewTestLogger())
	if err != nil {
		t.Fatalf("NewRegex failed: %v", err)
	}

	ev := model.NewLogEvent("test", "GET /healthz 200")
	out, err := proc.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if out[0].Fields["method"] != "GET" || out[0].Fields["path"] != "/healthz" || out[0].Fields["status"] != "200" {
		t.Errorf("unexpected captures: %v", out[0].Fields)
	}
}

func TestRegex_FirstPatternWins(t *testing.T) {
	cfg := map[string]any{
		"patterns": []string{
			`level=(?P<level>\w+)`,
			`(?P<all>.*)`,
		},
	}
	proc, err := NewRegex("regex", cfg, testutil.NewTestLogger())
	if err != nil {
		t.Fatalf("NewRegex failed: %v", err)
	}

	ev := model.NewLogEvent("test", "level=warn rest")
	out, err := proc.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if out[0].Fields["level"] != "warn" {
		t.Errorf("level = %v", out[0].Fields["level"])
	}
	if _, ok := out[0].Fields["all"]; ok {
		t.Error("first successful pattern must win")
	}
}

func TestRegex_TargetFieldNamespace(t *testing.T) {
	cfg := map[string]any{
		"pattern":      `(?P<code>\d+)`,
		"target_field": "http",
	}
	proc, err := NewRegex("regex", cfg, testutil.NewTestLogger())
	if err != nil {
		t.Fatalf("NewRegex failed: %v", err)
	}

	ev := model.NewLogEvent("test", "status 503")
	out, err := proc.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	nested, ok := out[0].GetField("http")
	if !ok || nested.(map[string]any)["code"] != "503" {
		t.Errorf("http = %v", nested)
	}
}

func TestRegex_NoMatchPassesThrough(t *testing.T) {
	proc, err := NewRegex("regex", map[string]any{"pattern": `(?P<n>\d+)`}, testutil.NewTestLogger())
	if err != nil {
		t.Fatalf("NewRegex failed: %v", err)
	}

	ev := model.NewLogEvent("test", "letters only")
	out, err := proc.Process(context.Background(), ev)
	if err != nil || len(out) != 1 {
		t.Fatalf("expected pass-through, got out=%v err=%v", out, err)
	}
	if len(out[0].Fields) != 0 {
		t.Errorf("expected no fields, got %v", out[0].Fields)
	}
}

func TestRegex_ConfigErrors(t *testing.T) {
	log := testutil.NewTestLogger()

	if _, err := NewRegex("regex", map[string]any{}, log); err == nil {
		t.Error("expected error with no pattern")
	}
	if _, err := NewRegex("regex", map[string]any{"pattern": "(unclosed"}, log); err == nil {
		t.Error("expected error on invalid pattern")
	}
}
