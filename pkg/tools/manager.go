package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout is the wall-clock budget for a dynamic tool call when the
// definition does not name its own. Built-ins run under the caller's
// context only.
const DefaultTimeout = 10 * time.Second

// Manager registers tools and dispatches calls. Built-ins are trusted Go
// functions; dynamic tools are data (expr programs or interpreted Go
// bodies) and run under a hard timeout with panic containment.
type Manager struct {
	mu       sync.Mutex
	builtins map[string]Func
	dynamic  map[string]*Definition
	timeout  time.Duration
	log      *zap.Logger
}

func NewManager(log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		builtins: make(map[string]Func),
		dynamic:  make(map[string]*Definition),
		timeout:  DefaultTimeout,
		log:      log,
	}
}

// SetTimeout overrides the default dynamic-tool budget.
func (m *Manager) SetTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.timeout = d
	}
}

// RegisterBuiltin registers a trusted in-process tool.
func (m *Manager) RegisterBuiltin(name string, fn Func) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.builtins[name] = fn
}

// Register adds a validated dynamic definition. A dynamic tool may not
// shadow a built-in.
func (m *Manager) Register(def *Definition) error {
	if err := def.compile(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.builtins[def.Name]; ok {
		return fmt.Errorf("tool %q is built in and cannot be redefined", def.Name)
	}
	m.dynamic[def.Name] = def
	return nil
}

// LoadFile loads and registers one .tool.yaml definition.
func (m *Manager) LoadFile(path string) error {
	def, err := LoadDefinitionFile(path)
	if err != nil {
		return err
	}
	return m.Register(def)
}

// Names lists every registered tool.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.builtins)+len(m.dynamic))
	for name := range m.builtins {
		out = append(out, name)
	}
	for name := range m.dynamic {
		out = append(out, name)
	}
	return out
}

// Execute dispatches a call and always returns a Result. Tool errors,
// panics, and timeouts come back as failed Results; a tool call never
// fails at the Go level.
func (m *Manager) Execute(ctx context.Context, name string, call Call) *Result {
	m.mu.Lock()
	builtin, isBuiltin := m.builtins[name]
	def, isDynamic := m.dynamic[name]
	budget := m.timeout
	m.mu.Unlock()

	start := time.Now()
	var res *Result
	switch {
	case isBuiltin:
		res = m.runBuiltin(ctx, name, builtin, call)
	case isDynamic:
		if def.Budget() > 0 {
			budget = def.Budget()
		}
		res = m.runDynamic(ctx, def, call, budget)
	default:
		res = failure("unknown_tool", "no tool registered as %q", name)
	}

	m.log.Debug("tool executed",
		zap.String("tool", name),
		zap.Bool("success", res.Success),
		zap.String("error_code", res.ErrorCode),
		zap.Duration("duration", time.Since(start)))
	return res
}

func (m *Manager) runBuiltin(ctx context.Context, name string, fn Func, call Call) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("builtin tool panicked", zap.String("tool", name), zap.Any("panic", r))
			res = failure("panic", "tool %q panicked: %v", name, r)
		}
	}()
	out, err := fn(ctx, call)
	if err != nil {
		return failure("tool_error", "%v", err)
	}
	if out == nil {
		return failure("tool_error", "tool %q returned nothing", name)
	}
	return out
}

// runDynamic runs an untrusted body in its own goroutine and abandons it
// at the deadline. The result channel is buffered so a body that finishes
// after the timeout parks its answer and exits; late results are never
// delivered.
func (m *Manager) runDynamic(ctx context.Context, def *Definition, call Call, budget time.Duration) *Result {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	resCh := make(chan *Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resCh <- failure("panic", "tool %q panicked: %v", def.Name, r)
			}
		}()
		resCh <- def.run(call)
	}()

	select {
	case res := <-resCh:
		return res
	case <-ctx.Done():
		m.log.Warn("dynamic tool timed out",
			zap.String("tool", def.Name),
			zap.Duration("budget", budget))
		return failure("timeout", "tool %q exceeded %s budget", def.Name, budget)
	}
}
