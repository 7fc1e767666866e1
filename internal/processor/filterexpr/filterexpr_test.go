package filterexpr

import (
	"testing"
)

type fakeEvent map[string]any

func (f fakeEvent) GetField(path string) (any, bool) {
	v, ok := f[path]
	return v, ok
}

func TestEval(t *testing.T) {
	ev := fakeEvent{
		"level":       "INFO",
		"status":      404,
		"latency":     1.5,
		"enabled":     true,
		"message":     "connection reset",
		"host.name":   "web-1",
		"empty":       "",
	}

	tests := []struct {
		expr string
		want bool
	}{
		// Literals.
		{"true", true},
		{"false", false},

		// Equality and symbols.
		{"level == 'INFO'", true},
		{"level == INFO", true},
		{"level == DEBUG", false},
		{"level != DEBUG", true},
		{`message == "connection reset"`, true},

		// Numeric comparison with int/float coercion.
		{"status == 404", true},
		{"status >= 400", true},
		{"status < 500", true},
		{"status < 400", false},
		{"latency > 1", true},
		{"latency <= 1.5", true},
		{"status == 404.0", true},

		// Containment.
		{"status in [200, 404, 500]", true},
		{"status in [200, 500]", false},
		{"level in ['INFO', 'WARNING']", true},
		{"level in [DEBUG, ERROR]", false},

		// Logical composition and precedence: not > and > or.
		{"level == INFO and status == 404", true},
		{"level == DEBUG or status == 404", true},
		{"level == DEBUG and status == 404 or enabled == true", true},
		{"not level == DEBUG", true},
		{"not (level == INFO and status == 404)", false},
		{"not level == INFO or status == 404", true},

		// Dotted identifiers.
		{"host.name == 'web-1'", true},

		// Missing fields compare unequal to any literal and are in no list.
		{"absent == 'x'", false},
		{"absent != 'x'", true},
		{"absent < 10", false},
		{"absent in ['x', 'y']", false},

		// Bare identifiers read as truthiness.
		{"enabled", true},
		{"empty", false},
		{"absent", false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			expr, err := Parse(tt.expr)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.expr, err)
			}
			if got := Eval(expr, ev); got != tt.want {
				t.Errorf("Eval(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	invalid := []string{
		"",
		"level ==",
		"level == 'unterminated",
		"(level == INFO",
		"status in 404",
		"level === INFO",
		"level == INFO and",
		"status in [200, 404",
	}

	for _, expr := range invalid {
		t.Run(expr, func(t *testing.T) {
			if _, err := Parse(expr); err == nil {
				t.Errorf("Parse(%q) should have failed", expr)
			}
		})
	}
}

func TestEval_StringOrdering(t *testing.T) {
	ev := fakeEvent{"name": "bravo"}

	expr, err := Parse("name > 'alpha'")
	if err != nil {
		t.Fatal(err)
	}
	if !Eval(expr, ev) {
		t.Error("expected 'bravo' > 'alpha'")
	}

	// Mixed string/number comparisons never order.
	expr, err = Parse("name > 10")
	if err != nil {
		t.Fatal(err)
	}
	if Eval(expr, ev) {
		t.Error("string vs number ordering should be false")
	}
}
