package tools

import (
	"fmt"
	"go/parser"
	"go/token"
	"strconv"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// allowedImports is the sandbox surface for code-form tools. Pure
// computation only: no os, os/exec, net, syscall, unsafe, reflect.
var allowedImports = map[string]bool{
	"strings":         true,
	"strconv":         true,
	"fmt":             true,
	"errors":          true,
	"math":            true,
	"regexp":          true,
	"encoding/json":   true,
	"encoding/base64": true,
	"time":            true,
	"sort":            true,
	"bytes":           true,
	"unicode":         true,
	"unicode/utf8":    true,
}

// sandboxSymbols is stdlib.Symbols filtered to the allowlist. The
// interpreter only ever sees these, so an import that somehow slipped past
// checkImports still has nothing to bind against.
var sandboxSymbols = func() interp.Exports {
	out := make(interp.Exports, len(allowedImports))
	for path := range allowedImports {
		name := path
		if i := strings.LastIndex(path, "/"); i >= 0 {
			name = path[i+1:]
		}
		key := path + "/" + name
		if syms, ok := stdlib.Symbols[key]; ok {
			out[key] = syms
		}
	}
	return out
}()

// checkImports rejects code whose import set leaves the allowlist. The
// source is parsed properly, so every import form — grouped, one-line,
// raw-string path, aliased — is seen. Run at registration so a forbidden
// import is a load error, not a runtime one.
func checkImports(code string) error {
	f, err := parser.ParseFile(token.NewFileSet(), "tool.go", wrapCode(code), parser.ImportsOnly)
	if err != nil {
		return fmt.Errorf("parse tool code: %w", err)
	}
	for _, imp := range f.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			return fmt.Errorf("bad import path %s", imp.Path.Value)
		}
		if !allowedImports[path] {
			return fmt.Errorf("import %q not allowed in tool code", path)
		}
	}
	return nil
}

// runSandboxed interprets a code-form tool body. The body must define
//
//	func Run(payload map[string]any, vars map[string]any) (map[string]any, error)
//
// A fresh interpreter is built per call so tool invocations share no
// state. The caller enforces the wall-clock budget.
func runSandboxed(name, code string, call Call) *Result {
	i := interp.New(interp.Options{})
	if err := i.Use(sandboxSymbols); err != nil {
		return failure("tool_error", "tool %q: load stdlib: %v", name, err)
	}

	if _, err := i.Eval(wrapCode(code)); err != nil {
		return failure("tool_error", "tool %q: eval: %v", name, err)
	}

	v, err := i.Eval("main.Run")
	if err != nil {
		return failure("tool_error", "tool %q: Run not defined: %v", name, err)
	}
	run, ok := v.Interface().(func(map[string]any, map[string]any) (map[string]any, error))
	if !ok {
		return failure("tool_error",
			"tool %q: Run must be func(payload, vars map[string]any) (map[string]any, error)", name)
	}

	out, err := run(call.Payload, call.Vars)
	if err != nil {
		return failure("tool_error", "tool %q: %v", name, err)
	}
	return toResult(out)
}

func wrapCode(code string) string {
	if strings.Contains(code, "package ") {
		return code
	}
	return "package main\n\n" + code
}
