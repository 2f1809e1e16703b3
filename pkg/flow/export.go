package flow

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateManifestJSONSchema produces a JSON Schema Draft 2020-12 document
// from the Go Manifest struct using invopop/jsonschema.
func GenerateManifestJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&Manifest{})
	s.ID = "https://github.com/clalbit/maslul/schemas/manifest-v1.json"
	s.Title = "Intake Flow Manifest v1"
	s.Description = "Schema for intake flow manifest JSON documents (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest schema: %w", err)
	}
	return data, nil
}

// GenerateQuestionnaireJSONSchema produces a JSON Schema Draft 2020-12
// document from the Go Questionnaire struct.
func GenerateQuestionnaireJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&Questionnaire{})
	s.ID = "https://github.com/clalbit/maslul/schemas/questionnaire-v1.json"
	s.Title = "Intake Questionnaire v1"
	s.Description = "Schema for intake questionnaire JSON documents (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal questionnaire schema: %w", err)
	}
	return data, nil
}
