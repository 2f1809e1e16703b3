package intake

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// FieldError is one schema violation, addressed by instance location.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationResult reports every violation found in one pass, not just the
// first. An intake with three bad fields surfaces all three.
type ValidationResult struct {
	OK       bool         `json:"ok"`
	SchemaID string       `json:"schema_id"`
	Errors   []FieldError `json:"errors,omitempty"`
	// Normalized is the document as validated: the JSON-typed form with
	// plain Go numbers flattened to float64. Set only on success.
	Normalized map[string]any `json:"normalized,omitempty"`
}

// Validator resolves schema ids against a filesystem registry and keeps
// compiled schemas cached for the life of the process. The registry root
// mirrors the id structure: <root>/<insurer>/<catalog>/<version>.json.
type Validator struct {
	root string

	mu       sync.RWMutex
	compiled map[string]*jsonschema.Schema
}

// NewValidator builds a validator over the given registry root. Schemas
// are loaded lazily, one disk read and compile per id.
func NewValidator(root string) *Validator {
	return &Validator{
		root:     root,
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// Validate derives the document's schema id, resolves and compiles the
// schema (cached), and checks the document. A document that cannot name
// its schema fails before any registry access.
func (v *Validator) Validate(doc map[string]any) (*ValidationResult, error) {
	id, err := MetaOf(doc).SchemaID()
	if err != nil {
		return nil, err
	}
	schema, err := v.schemaFor(id)
	if err != nil {
		return nil, fmt.Errorf("resolve schema %s: %w", id, err)
	}

	// Roundtrip through JSON so instance values carry the types the
	// validator expects (ints become float64 and so on).
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}

	res := &ValidationResult{OK: true, SchemaID: id}
	if err := schema.Validate(instance); err != nil {
		res.OK = false
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			res.Errors = flatten(ve)
		} else {
			res.Errors = []FieldError{{Path: "/", Message: err.Error()}}
		}
		return res, nil
	}
	res.Normalized, _ = instance.(map[string]any)
	return res, nil
}

func (v *Validator) schemaFor(id string) (*jsonschema.Schema, error) {
	v.mu.RLock()
	s, ok := v.compiled[id]
	v.mu.RUnlock()
	if ok {
		return s, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if s, ok := v.compiled[id]; ok {
		return s, nil
	}

	path := filepath.Join(v.root, filepath.FromSlash(id)+".json")
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := jsonschema.UnmarshalJSON(f)
	if err != nil {
		return nil, fmt.Errorf("parse schema file %s: %w", path, err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(id+".json", raw); err != nil {
		return nil, err
	}
	s, err = compiler.Compile(id + ".json")
	if err != nil {
		return nil, err
	}
	v.compiled[id] = s
	return s, nil
}

// flatten walks the validator's error tree and keeps only leaf causes,
// so each reported error points at one concrete field.
func flatten(ve *jsonschema.ValidationError) []FieldError {
	if len(ve.Causes) == 0 {
		return []FieldError{{
			Path:    "/" + strings.Join(ve.InstanceLocation, "/"),
			Message: fmt.Sprintf("%v", ve.ErrorKind),
		}}
	}
	var out []FieldError
	for _, c := range ve.Causes {
		out = append(out, flatten(c)...)
	}
	return out
}
