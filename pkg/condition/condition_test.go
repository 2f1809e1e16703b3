package condition

import (
	"errors"
	"testing"
)

func TestEvaluate_Literals(t *testing.T) {
	tests := []struct {
		expr string
		want bool
	}{
		{"true", true},
		{"false", false},
		{"", true},
		{"   ", true},
		{"!false", true},
		{"!true", false},
		{"1", true},
		{"0", false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr, nil)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluate_NumericStringTruthiness(t *testing.T) {
	// A variable holding a numeric string follows numeric truthiness, so
	// `x` and `x == 0` can never both hold for the same binding.
	tests := []struct {
		expr  string
		binds map[string]any
		want  bool
	}{
		{"x", map[string]any{"x": "0"}, false},
		{"x == 0", map[string]any{"x": "0"}, true},
		{"x", map[string]any{"x": "5"}, true},
		{"x == 0", map[string]any{"x": "5"}, false},
		{"x", map[string]any{"x": "0.0"}, false},
		{"x", map[string]any{"x": "retail"}, true},
	}
	for _, tt := range tests {
		got, err := Evaluate(tt.expr, tt.binds)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("Evaluate(%q, %v) = %v, want %v", tt.expr, tt.binds, got, tt.want)
		}
	}
}

func TestEvaluate_Comparisons(t *testing.T) {
	binds := map[string]any{
		"employees":    float64(12),
		"segment":      "retail",
		"has_premises": true,
		"start_date":   "2026-09-15",
	}
	tests := []struct {
		expr string
		want bool
	}{
		{"employees == 12", true},
		{"employees != 12", false},
		{"employees > 10", true},
		{"employees >= 12", true},
		{"employees < 12", false},
		{"employees <= 11", false},
		{`segment == "retail"`, true},
		{`segment == 'retail'`, true},
		{`segment != "food"`, true},
		{"has_premises == true", true},
		{"has_premises != false", true},
		{`start_date >= "2026-09-01"`, true},
		{`start_date < "2026-09-01"`, false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr, binds)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluate_Connectives(t *testing.T) {
	binds := map[string]any{"a": true, "b": false, "n": float64(3)}
	tests := []struct {
		expr string
		want bool
	}{
		{"a && b", false},
		{"a || b", true},
		{"!b && a", true},
		{"(a || b) && n > 2", true},
		{"a && (b || n < 2)", false},
		{"!(a && b)", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr, binds)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

// A variable absent from the snapshot behaves as falsy everywhere it can
// appear — evaluation must never fail on incomplete data.
func TestEvaluate_MissingVariable(t *testing.T) {
	tests := []struct {
		expr string
		want bool
	}{
		{"missing", false},
		{"!missing", true},
		{"missing == false", true},
		{"missing == true", false},
		{"missing || true", true},
		{"missing && true", false},
		{"missing > 0", false},
		{`missing == "x"`, false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr, map[string]any{})
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluate_NumericStringCoercion(t *testing.T) {
	binds := map[string]any{"count": "7"}
	got, err := Evaluate("count > 5", binds)
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Error("numeric string should compare numerically")
	}
}

func TestEvaluate_ReferentialTransparency(t *testing.T) {
	binds := map[string]any{"x": float64(1), "y": "a"}
	c, err := Compile(`x == 1 && y != "b"`)
	if err != nil {
		t.Fatal(err)
	}
	first := c.Eval(binds)
	for i := 0; i < 10; i++ {
		if c.Eval(binds) != first {
			t.Fatal("repeated evaluation diverged")
		}
	}
}

func TestCompile_SyntaxErrors(t *testing.T) {
	exprs := []string{
		"a &&",
		"a == ",
		"(a || b",
		"a = b",
		"a & b",
		"== 3",
		`"unterminated`,
		"a b",
		"a || || b",
	}
	for _, expr := range exprs {
		t.Run(expr, func(t *testing.T) {
			_, err := Compile(expr)
			if err == nil {
				t.Fatalf("Compile(%q) accepted malformed expression", expr)
			}
		})
	}
}

func TestSyntaxError_Labeled(t *testing.T) {
	_, err := Compile("a &&")
	if err == nil {
		t.Fatal("expected error")
	}
	var synErr *SyntaxError
	if !errors.As(err, &synErr) {
		t.Fatalf("error type %T, want *SyntaxError", err)
	}
	labeled := synErr.Labeled("process welcome")
	if labeled.Label != "process welcome" {
		t.Errorf("label = %q", labeled.Label)
	}
	if labeled.Expr != "a &&" {
		t.Errorf("expr = %q", labeled.Expr)
	}
}

func TestCache_CompileOnce(t *testing.T) {
	cache := NewCache()
	for i := 0; i < 3; i++ {
		got, err := cache.Eval("x > 1", map[string]any{"x": float64(2)})
		if err != nil {
			t.Fatal(err)
		}
		if !got {
			t.Error("want true")
		}
	}
	if cache.Len() != 1 {
		t.Errorf("cache holds %d entries, want 1", cache.Len())
	}

	c1, _ := cache.Get("x > 1")
	c2, _ := cache.Get("x > 1")
	if c1 != c2 {
		t.Error("cache returned distinct compiled values for same source")
	}
}
