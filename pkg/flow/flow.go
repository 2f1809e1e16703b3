// Package flow defines the Go struct types for the flow manifest and
// questionnaire JSON documents and provides strict JSON parsing. The
// documents are authored by the content system; this engine only consumes
// them, so unknown fields are rejected to catch drift early.
package flow

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Manifest is the top-level document listing questionnaire processes in
// priority order. The declared ordering is authoritative: the router never
// permutes it at runtime.
type Manifest struct {
	Name      string    `json:"name" jsonschema:"required"`
	Processes []Process `json:"processes" jsonschema:"required"`
	Runtime   *Runtime  `json:"runtime,omitempty"`
}

// Runtime wraps the engine_contract block under the manifest's runtime
// section.
type Runtime struct {
	EngineContract *RuntimeContract `json:"engine_contract,omitempty"`
}

// Contract returns the manifest's engine contract, or nil when the
// manifest declares none.
func (m *Manifest) Contract() *RuntimeContract {
	if m.Runtime == nil {
		return nil
	}
	return m.Runtime.EngineContract
}

// Process is a named unit of the questionnaire: an ordered position, an
// applicability predicate, and the tools fired when the process's stage is
// entered.
type Process struct {
	ProcessKey string           `json:"process_key" jsonschema:"required"`
	FlowSlug   string           `json:"flow_slug" jsonschema:"required"`
	AskIf      string           `json:"ask_if,omitempty"`
	Terminal   bool             `json:"terminal,omitempty"`
	Tools      []ToolInvocation `json:"tools,omitempty"`
}

// ToolInvocation attaches a named tool call to a process transition.
type ToolInvocation struct {
	Name    string         `json:"name" jsonschema:"required"`
	Payload map[string]any `json:"payload,omitempty"`
}

// RuntimeContract is the manifest's engine_contract block: global variable
// defaults plus the derived rules re-evaluated on every answer commit.
type RuntimeContract struct {
	Defaults     map[string]any `json:"defaults,omitempty"`
	DerivedRules []DerivedRule  `json:"derived_rules,omitempty"`
}

// DerivedRule assigns a secondary variable whenever its guard holds. With
// Value set, the assignment is that literal; without it, the assignment is
// the boolean result of the guard itself. Rules are applied in declaration
// order in a single pass — a rule must not depend on its own output.
type DerivedRule struct {
	Name  string `json:"name" jsonschema:"required"`
	When  string `json:"when" jsonschema:"required"`
	Set   string `json:"set" jsonschema:"required"`
	Value any    `json:"value,omitempty"`
}

// Questionnaire is the per-flow document listing questions by stage.
type Questionnaire struct {
	FlowSlug  string     `json:"flow_slug" jsonschema:"required"`
	Questions []Question `json:"questions" jsonschema:"required"`
}

// Question identifies a single prompt and where its answer lands.
type Question struct {
	QID        string   `json:"q_id" jsonschema:"required"`
	Stage      string   `json:"stage,omitempty"`
	Audience   string   `json:"audience,omitempty"`
	TextHe     string   `json:"text_he,omitempty"`
	FieldKeyEn string   `json:"field_key_en" jsonschema:"required"`
	DataType   string   `json:"data_type" jsonschema:"required,enum=boolean,enum=number,enum=string,enum=date,enum=enum"`
	OptionsHe  []string `json:"options_he,omitempty"`
	JSONPath   string   `json:"json_path" jsonschema:"required"`
	AskIf      string   `json:"ask_if,omitempty"`
}

// LoadManifestFile reads and parses a manifest JSON file with strict
// unknown-field rejection.
func LoadManifestFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return LoadManifest(f)
}

// LoadManifest parses a manifest from an io.Reader.
func LoadManifest(r io.Reader) (*Manifest, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// LoadQuestionnaireFile reads and parses a questionnaire JSON file.
func LoadQuestionnaireFile(path string) (*Questionnaire, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open questionnaire: %w", err)
	}
	defer f.Close()
	return LoadQuestionnaire(f)
}

// LoadQuestionnaire parses a questionnaire from an io.Reader.
func LoadQuestionnaire(r io.Reader) (*Questionnaire, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var q Questionnaire
	if err := dec.Decode(&q); err != nil {
		return nil, fmt.Errorf("decode questionnaire: %w", err)
	}
	return &q, nil
}

// QuestionByID returns the question with the given q_id, or nil.
func (q *Questionnaire) QuestionByID(id string) *Question {
	for i := range q.Questions {
		if q.Questions[i].QID == id {
			return &q.Questions[i]
		}
	}
	return nil
}
