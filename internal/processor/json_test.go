package processor

import (
	"context"
	"testing"

	"github.com/logflow-dev/logflow/internal/model"
	"github.com/logflow-dev/logflow/internal/testutil"
)

func TestJSON_MergeTopLevel(t *testing.T) {
	proc, err := NewJSON("json", map[string]any{}, testutil.NewTestLogger())
	if err != nil {
		t.Fatalf("NewJSON failed: %v", err)
	}

	ev := model.NewLogEvent("test", `{"level":"INFO","status":200}`)
	ev.Fields["level"] = "stale"

	out, err := proc.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 event, got %d", len(out))
	}

	// Parsed values win over existing keys on a top-level merge.
	if out[0].Fields["level"] != "INFO" {
		t.Errorf("expected level=INFO, got %v", out[0].Fields["level"])
	}
	if out[0].Fields["status"] != float64(200) {
		t.Errorf("expected status=200, got %v", out[0].Fields["status"])
	}
	if out[0].RawData != `{"level":"INFO","status":200}` {
		t.Error("raw data must not be mutated")
	}
}

func TestJSON_TargetField(t *testing.T) {
	proc, err := NewJSON("json", map[string]any{"target_field": "parsed"}, testutil.NewTestLogger())
	if err != nil {
		t.Fatalf("NewJSON failed: %v", err)
	}

	ev := model.NewLogEvent("test", `{"k":"v"}`)
	out, err := proc.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	parsed, ok := out[0].GetField("parsed")
	if !ok {
		t.Fatal("expected parsed field")
	}
	if parsed.(map[string]any)["k"] != "v" {
		t.Errorf("unexpected parsed value: %v", parsed)
	}
}

func TestJSON_FieldSource(t *testing.T) {
	cfg := map[string]any{
		"field":             "payload",
		"target_field":      "decoded",
		"preserve_original": false,
	}
	proc, err := NewJSON("json", cfg, testutil.NewTestLogger())
	if err != nil {
		t.Fatalf("NewJSON failed: %v", err)
	}

	ev := model.NewLogEvent("test", "")
	ev.Fields["payload"] = `{"ok":true}`

	out, err := proc.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if _, ok := out[0].GetField("payload"); ok {
		t.Error("expected source field removed with preserve_original=false")
	}
	decoded, _ := out[0].GetField("decoded")
	if decoded.(map[string]any)["ok"] != true {
		t.Errorf("unexpected decoded value: %v", decoded)
	}
}

func TestJSON_ParseFailure(t *testing.T) {
	proc, err := NewJSON("json", map[string]any{}, testutil.NewTestLogger())
	if err != nil {
		t.Fatalf("NewJSON failed: %v", err)
	}

	ev := model.NewLogEvent("test", "not json")
	if _, err := proc.Process(context.Background(), ev); err == nil {
		t.Fatal("expected error on invalid JSON")
	}
}

func TestJSON_ParseFailureIgnored(t *testing.T) {
	proc, err := NewJSON("json", map[string]any{"ignore_errors": true}, testutil.NewTestLogger())
	if err != nil {
		t.Fatalf("NewJSON failed: %v", err)
	}

	ev := model.NewLogEvent("test", "not json")
	out, err := proc.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("expected pass-through, got error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 event, got %d", len(out))
	}
	if out[0].Metadata["json_error"] == "" {
		t.Error("expected json_error metadata")
	}
	if len(out[0].Fields) != 0 {
		t.Errorf("expected no fields, got %v", out[0].Fields)
	}
}

func TestJSON_EmptySourcePassesThrough(t *testing.T) {
	proc, err := NewJSON("json", map[string]any{}, testutil.NewTestLogger())
	if err != nil {
		t.Fatalf("NewJSON failed: %v", err)
	}

	ev := model.NewLogEvent("test", "")
	out, err := proc.Process(context.Background(), ev)
	if err != nil || len(out) != 1 {
		t.Fatalf("expected pass-through, got out=%v err=%v", out, err)
	}
}

func TestJSON_UnknownConfigKeyRejected(t *testing.T) {
	if _, err := NewJSON("json", map[string]any{"feild": "oops"}, testutil.NewTestLogger()); err == nil {
		t.Fatal("expected unknown config key to be rejected")
	}
}

// A json parse followed by a mutate removing the target field restores the
// event to its pre-parse shape.
func TestJSON_MutateRoundTrip(t *testing.T) {
	log := testutil.NewTestLogger()

	jsonProc, err := NewJSON("json", map[string]any{"target_field": "parsed"}, log)
	if err != nil {
		t.Fatalf("NewJSON failed: %v", err)
	}
	mutateProc, err := NewMutate("mutate", map[string]any{"remove_fields": []string{"parsed"}}, log)
	if err != nil {
		t.Fatalf("NewMutate failed: %v", err)
	}

	ev := model.NewLogEvent("test", `{"k":"v"}`)
	out, err := jsonProc.Process(context.Background(), ev)
	if err != nil {
		t.Fatal(err)
	}
	out, err = mutateProc.Process(context.Background(), out[0])
	if err != nil {
		t.Fatal(err)
	}

	if len(out[0].Fields) != 0 {
		t.Errorf("expected pristine fields, got %v", out[0].Fields)
	}
	if out[0].RawData != `{"k":"v"}` {
		t.Error("raw data changed across the round trip")
	}
}
