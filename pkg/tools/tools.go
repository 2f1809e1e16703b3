// Package tools manages tool lifecycle: registering built-ins, loading
// dynamic definitions, and dispatching calls under a wall-clock budget.
// Every tool, trusted or dynamic, answers with the same Result contract so
// the conversation engine never has to care how a tool is implemented.
package tools

import (
	"context"
	"fmt"
)

// Result is the uniform outcome of a tool call. A failed tool is data,
// not a crashed conversation: the engine reads Success and moves on.
type Result struct {
	Success     bool           `json:"success"`
	Data        any            `json:"data,omitempty"`
	Error       string         `json:"error,omitempty"`
	ErrorCode   string         `json:"error_code,omitempty"`
	SaveResults map[string]any `json:"save_results,omitempty"`
}

// Call carries one invocation: the literal payload from the flow
// definition plus a read-only view of the conversation variables.
type Call struct {
	CaseID  string
	Payload map[string]any
	Vars    map[string]any
}

// Func is a registered tool implementation.
type Func func(ctx context.Context, call Call) (*Result, error)

func failure(code, format string, args ...any) *Result {
	return &Result{
		Success:   false,
		Error:     fmt.Sprintf(format, args...),
		ErrorCode: code,
	}
}

// toResult maps a dynamic tool's return value onto the Result contract.
// A map that speaks the contract (has a "success" key) is taken at its
// word; anything else is wrapped as successful data.
func toResult(out any) *Result {
	m, ok := out.(map[string]any)
	if !ok {
		return &Result{Success: true, Data: out}
	}
	rawSuccess, ok := m["success"]
	if !ok {
		return &Result{Success: true, Data: m}
	}
	res := &Result{}
	res.Success, _ = rawSuccess.(bool)
	res.Data = m["data"]
	if s, ok := m["error"].(string); ok {
		res.Error = s
	}
	if s, ok := m["error_code"].(string); ok {
		res.ErrorCode = s
	}
	if sr, ok := m["save_results"].(map[string]any); ok {
		res.SaveResults = sr
	}
	return res
}
