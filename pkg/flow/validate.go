package flow

import (
	"encoding/json"
	"fmt"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/clalbit/maslul/pkg/answers"
	"github.com/clalbit/maslul/pkg/condition"
)

// ValidationError represents a single validation error with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // JSON-path-like location (e.g. "processes[2].ask_if")
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// ValidateManifestFile runs the full 3-phase validation pipeline on a
// manifest file: structural (strict JSON decode), semantic (JSON Schema),
// domain (Go rules, including ahead-of-time condition parsing). This is
// how malformed ask_if expressions are caught before runtime traffic.
func ValidateManifestFile(path string) (*Manifest, []*ValidationError) {
	m, err := LoadManifestFile(path)
	if err != nil {
		return nil, []*ValidationError{structural(err)}
	}
	return m, ValidateManifest(m)
}

// ValidateManifest runs the semantic and domain phases on a parsed manifest.
func ValidateManifest(m *Manifest) []*ValidationError {
	var all []*ValidationError
	schemaJSON, err := GenerateManifestJSONSchema()
	if err != nil {
		all = append(all, &ValidationError{Phase: "semantic", Message: err.Error(), Severity: "error"})
	} else {
		all = append(all, validateSemantic(m, schemaJSON, "manifest-v1.json")...)
	}
	all = append(all, validateManifestDomain(m)...)
	return all
}

// ValidateQuestionnaireFile runs the full 3-phase pipeline on a
// questionnaire file.
func ValidateQuestionnaireFile(path string) (*Questionnaire, []*ValidationError) {
	q, err := LoadQuestionnaireFile(path)
	if err != nil {
		return nil, []*ValidationError{structural(err)}
	}
	return q, ValidateQuestionnaire(q)
}

// ValidateQuestionnaire runs the semantic and domain phases on a parsed
// questionnaire.
func ValidateQuestionnaire(q *Questionnaire) []*ValidationError {
	var all []*ValidationError
	schemaJSON, err := GenerateQuestionnaireJSONSchema()
	if err != nil {
		all = append(all, &ValidationError{Phase: "semantic", Message: err.Error(), Severity: "error"})
	} else {
		all = append(all, validateSemantic(q, schemaJSON, "questionnaire-v1.json")...)
	}
	all = append(all, validateQuestionnaireDomain(q)...)
	return all
}

func structural(err error) *ValidationError {
	return &ValidationError{Phase: "structural", Message: err.Error(), Severity: "error"}
}

// validateSemantic validates a document value against a generated JSON
// Schema, flattening every leaf cause into an individual error.
func validateSemantic(doc any, schemaJSON []byte, name string) []*ValidationError {
	data, err := json.Marshal(doc)
	if err != nil {
		return []*ValidationError{{Phase: "semantic", Message: fmt.Sprintf("marshal for schema validation: %v", err), Severity: "error"}}
	}

	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return []*ValidationError{{Phase: "semantic", Message: fmt.Sprintf("unmarshal schema: %v", err), Severity: "error"}}
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource(name, schemaDoc); err != nil {
		return []*ValidationError{{Phase: "semantic", Message: fmt.Sprintf("add schema resource: %v", err), Severity: "error"}}
	}
	sch, err := c.Compile(name)
	if err != nil {
		return []*ValidationError{{Phase: "semantic", Message: fmt.Sprintf("compile schema: %v", err), Severity: "error"}}
	}

	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return []*ValidationError{{Phase: "semantic", Message: fmt.Sprintf("unmarshal document: %v", err), Severity: "error"}}
	}

	if err := sch.Validate(value); err != nil {
		var errs []*ValidationError
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flattenValidationErrors(ve) {
				errs = append(errs, &ValidationError{
					Phase:    "semantic",
					Path:     strings.Join(cause.InstanceLocation, "/"),
					Message:  fmt.Sprintf("%v", cause.ErrorKind),
					Severity: "error",
				})
			}
		} else {
			errs = append(errs, &ValidationError{Phase: "semantic", Message: err.Error(), Severity: "error"})
		}
		return errs
	}
	return nil
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// validateManifestDomain applies the routing rules that JSON Schema cannot
// express: unique keys, an unconditional first (welcome) process, exactly
// one terminal fallback, and parseable conditions.
func validateManifestDomain(m *Manifest) []*ValidationError {
	var errs []*ValidationError

	if len(m.Processes) == 0 {
		errs = append(errs, &ValidationError{Phase: "domain", Path: "processes", Message: "manifest has no processes", Severity: "error"})
		return errs
	}

	seen := make(map[string]bool)
	terminals := 0
	for i, p := range m.Processes {
		loc := fmt.Sprintf("processes[%d]", i)
		if seen[p.ProcessKey] {
			errs = append(errs, &ValidationError{Phase: "domain", Path: loc + ".process_key", Message: fmt.Sprintf("duplicate process_key %q", p.ProcessKey), Severity: "error"})
		}
		seen[p.ProcessKey] = true
		if p.Terminal {
			terminals++
			if p.AskIf != "" {
				errs = append(errs, &ValidationError{Phase: "domain", Path: loc + ".ask_if", Message: "terminal process must be unconditional", Severity: "error"})
			}
		}
		if p.AskIf != "" {
			if _, err := condition.Compile(p.AskIf); err != nil {
				errs = append(errs, conditionError(loc+".ask_if", "process "+p.ProcessKey, err))
			}
		}
	}

	if m.Processes[0].AskIf != "" {
		errs = append(errs, &ValidationError{Phase: "domain", Path: "processes[0].ask_if", Message: "first (welcome) process must be unconditional", Severity: "error"})
	}
	if terminals != 1 {
		errs = append(errs, &ValidationError{Phase: "domain", Path: "processes", Message: fmt.Sprintf("manifest must declare exactly one terminal process, found %d", terminals), Severity: "error"})
	}

	if rc := m.Contract(); rc != nil {
		for i, rule := range rc.DerivedRules {
			loc := fmt.Sprintf("runtime.engine_contract.derived_rules[%d]", i)
			if rule.Set == "" {
				errs = append(errs, &ValidationError{Phase: "domain", Path: loc + ".set", Message: "derived rule has no target variable", Severity: "error"})
			}
			if _, err := condition.Compile(rule.When); err != nil {
				errs = append(errs, conditionError(loc+".when", "rule "+rule.Name, err))
			}
		}
	}
	return errs
}

// validateQuestionnaireDomain checks question identity, declared types and
// target paths.
func validateQuestionnaireDomain(q *Questionnaire) []*ValidationError {
	var errs []*ValidationError
	seen := make(map[string]bool)
	for i, question := range q.Questions {
		loc := fmt.Sprintf("questions[%d]", i)
		if seen[question.QID] {
			errs = append(errs, &ValidationError{Phase: "domain", Path: loc + ".q_id", Message: fmt.Sprintf("duplicate q_id %q", question.QID), Severity: "error"})
		}
		seen[question.QID] = true
		if _, err := answers.ParseType(question.DataType); err != nil {
			errs = append(errs, &ValidationError{Phase: "domain", Path: loc + ".data_type", Message: err.Error(), Severity: "error"})
		}
		if strings.TrimSpace(question.JSONPath) == "" {
			errs = append(errs, &ValidationError{Phase: "domain", Path: loc + ".json_path", Message: "question has no target path", Severity: "error"})
		}
		if answers.Type(question.DataType) == answers.TypeEnum && len(question.OptionsHe) == 0 {
			errs = append(errs, &ValidationError{Phase: "domain", Path: loc + ".options_he", Message: "enum question has no recognized options", Severity: "error"})
		}
		if question.AskIf != "" {
			if _, err := condition.Compile(question.AskIf); err != nil {
				errs = append(errs, conditionError(loc+".ask_if", "question "+question.QID, err))
			}
		}
	}
	return errs
}

func conditionError(path, label string, err error) *ValidationError {
	msg := err.Error()
	if synErr, ok := err.(*condition.SyntaxError); ok {
		msg = synErr.Labeled(label).Error()
	}
	return &ValidationError{Phase: "domain", Path: path, Message: msg, Severity: "error"}
}
