package processor

import (
	"context"
	"testing"

	"github.com/logflow-dev/logflow/internal/model"
	"github.com/logflow-dev/logflow/internal/testutil"
)

func TestEnrich_Lookup(t *testing.T) {
	cfg := map[string]any{
		"enrich_type":  "lookup",
		"source_field": "event_id",
		"target_field": "event_description",
		"lookup_table": map[string]any{
			"4624": "Successful logon",
			"4625": "Failed logon attempt",
		},
		"default_value": "Unknown",
	}
	proc, err := NewEnrich("enrich", cfg, testutil.NewTestLogger())
	if err != nil {
		t.Fatalf("NewEnrich failed: %v", err)
	}
	if err := proc.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	ev := model.NewLogEvent("test", "")
	ev.Fields["event_id"] = "4625"

	out, err := proc.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out[0].Fields["event_description"] != "Failed logon attempt" {
		t.Errorf("event_description = %v", out[0].Fields["event_description"])
	}
}

func TestEnrich_LookupDefault(t *testing.T) {
	cfg := map[string]any{
		"enrich_type":   "lookup",
		"source_field":  "event_id",
		"target_field":  "event_description",
		"lookup_table":  map[string]any{"4624": "Successful logon"},
		"default_value": "Unknown",
	}
	proc, err := NewEnrich("enrich", cfg, testutil.NewTestLogger())
	if err != nil {
		t.Fatalf("NewEnrich failed: %v", err)
	}

	ev := model.NewLogEvent("test", "")
	ev.Fields["event_id"] = "9999"

	out, err := proc.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out[0].Fields["event_description"] != "Unknown" {
		t.Errorf("event_description = %v", out[0].Fields["event_description"])
	}
}

func TestEnrich_LookupNumericSource(t *testing.T) {
	cfg := map[string]any{
		"enrich_type":  "lookup",
		"source_field": "code",
		"target_field": "label",
		"lookup_table": map[string]any{"404": "not found"},
	}
	proc, err := NewEnrich("enrich", cfg, testutil.NewTestLogger())
	if err != nil {
		t.Fatalf("NewEnrich failed: %v", err)
	}

	ev := model.NewLogEvent("test", "")
	ev.Fields["code"] = 404

	out, err := proc.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out[0].Fields["label"] != "not found" {
		t.Errorf("label = %v", out[0].Fields["label"])
	}
}

func TestEnrich_PreserveExisting(t *testing.T) {
	cfg := map[string]any{
		"enrich_type":  "lookup",
		"source_field": "k",
		"target_field": "out",
		"lookup_table": map[string]any{"a": "new"},
	}
	proc, err := NewEnrich("enrich", cfg, testutil.NewTestLogger())
	if err != nil {
		t.Fatalf("NewEnrich failed: %v", err)
	}

	ev := model.NewLogEvent("test", "")
	ev.Fields["k"] = "a"
	ev.Fields["out"] = "existing"

	out, err := proc.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out[0].Fields["out"] != "existing" {
		t.Errorf("out = %v, preserve_existing must win", out[0].Fields["out"])
	}
}

func TestEnrich_MissingSourcePassesThrough(t *testing.T) {
	cfg := map[string]any{
		"enrich_type":  "lookup",
		"source_field": "absent",
		"target_field": "out",
		"lookup_table": map[string]any{"a": "b"},
	}
	proc, err := NewEnrich("enrich", cfg, testutil.NewTestLogger())
	if err != nil {
		t.Fatalf("NewEnrich failed: %v", err)
	}

	ev := model.NewLogEvent("test", "")
	out, err := proc.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if _, ok := out[0].GetField("out"); ok {
		t.Error("missing source must not enrich")
	}
}

func TestEnrich_UserAgent(t *testing.T) {
	cfg := map[string]any{
		"enrich_type":  "useragent",
		"source_field": "ua",
		"target_field": "client",
	}
	proc, err := NewEnrich("enrich", cfg, testutil.NewTestLogger())
	if err != nil {
		t.Fatalf("NewEnrich failed: %v", err)
	}
	if err := proc.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	ev := model.NewLogEvent("test", "")
	ev.Fields["ua"] = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

	out, err := proc.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	client, ok := out[0].GetField("client")
	if !ok {
		t.Fatal("expected client field")
	}
	info := client.(map[string]any)
	if info["browser"] != "Chrome" {
		t.Errorf("browser = %v", info["browser"])
	}
	if info["os"] == "" {
		t.Error("expected an os value")
	}
}

func TestEnrich_ConfigErrors(t *testing.T) {
	log := testutil.NewTestLogger()

	cases := []map[string]any{
		{"enrich_type": "magic", "source_field": "a", "target_field": "b"},
		{"enrich_type": "lookup", "target_field": "b", "lookup_table": map[string]any{"k": "v"}},
		{"enrich_type": "lookup", "source_field": "a", "lookup_table": map[string]any{"k": "v"}},
		{"enrich_type": "lookup", "source_field": "a", "target_field": "b"},
		{"enrich_type": "geoip", "source_field": "a", "target_field": "b"},
	}

	for i, cfg := range cases {
		if _, err := NewEnrich("enrich", cfg, log); err == nil {
			t.Errorf("case %d: expected config error for %v", i, cfg)
		}
	}
}
