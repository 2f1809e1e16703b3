package tools

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"
)

// Tool kinds. Expr is the preferred dynamic form: a single expression over
// the call environment, no I/O surface at all. Code is the legacy form, a
// Go body run in a restricted interpreter.
const (
	KindExpr = "expr"
	KindCode = "code"
)

// Definition is a dynamic tool described as data. It is validated and
// compiled once at registration; run is called per invocation.
type Definition struct {
	Name        string `yaml:"name" json:"name"`
	Kind        string `yaml:"kind" json:"kind"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Timeout     string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Source      string `yaml:"source" json:"source"`

	program *vm.Program   // compiled expr form
	budget  time.Duration // parsed Timeout
}

// Budget is the per-call wall-clock limit, zero when the definition does
// not set one.
func (d *Definition) Budget() time.Duration { return d.budget }

// LoadDefinitionFile reads a .tool.yaml definition with strict decoding:
// unknown fields are rejected, not ignored.
func LoadDefinitionFile(path string) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("parse tool definition %s: %w", path, err)
	}
	return &def, nil
}

// compile validates the definition and prepares it for execution. Broken
// definitions are rejected at registration, never discovered mid-call.
func (d *Definition) compile() error {
	if d.Name == "" {
		return fmt.Errorf("tool definition missing name")
	}
	if strings.TrimSpace(d.Source) == "" {
		return fmt.Errorf("tool %q: empty source", d.Name)
	}
	if d.Timeout != "" {
		budget, err := time.ParseDuration(d.Timeout)
		if err != nil || budget <= 0 {
			return fmt.Errorf("tool %q: bad timeout %q", d.Name, d.Timeout)
		}
		d.budget = budget
	}
	switch d.Kind {
	case KindExpr:
		prog, err := expr.Compile(d.Source, expr.AllowUndefinedVariables())
		if err != nil {
			return fmt.Errorf("tool %q: compile: %w", d.Name, err)
		}
		d.program = prog
		return nil
	case KindCode:
		if err := checkImports(d.Source); err != nil {
			return fmt.Errorf("tool %q: %w", d.Name, err)
		}
		return nil
	default:
		return fmt.Errorf("tool %q: unknown kind %q (want %s or %s)", d.Name, d.Kind, KindExpr, KindCode)
	}
}

// run executes the body synchronously. The manager owns timeout and panic
// handling around it.
func (d *Definition) run(call Call) *Result {
	env := map[string]any{
		"payload": call.Payload,
		"vars":    call.Vars,
		"case_id": call.CaseID,
	}
	switch d.Kind {
	case KindExpr:
		out, err := expr.Run(d.program, env)
		if err != nil {
			return failure("tool_error", "tool %q: %v", d.Name, err)
		}
		return toResult(out)
	case KindCode:
		return runSandboxed(d.Name, d.Source, call)
	default:
		return failure("tool_error", "tool %q: unknown kind %q", d.Name, d.Kind)
	}
}
