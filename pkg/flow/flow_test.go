package flow

import (
	"strings"
	"testing"
)

const manifestJSON = `{
  "name": "business-intake",
  "processes": [
    {"process_key": "welcome", "flow_slug": "welcome-flow"},
    {"process_key": "intent", "flow_slug": "intent-flow", "ask_if": "welcome_done"},
    {"process_key": "premises_characteristics", "flow_slug": "premises-flow", "ask_if": "ch2_building_selected == true"},
    {"process_key": "history_disclosures", "flow_slug": "history-flow", "terminal": true}
  ],
  "runtime": {
    "engine_contract": {
      "defaults": {"has_physical_premises": false},
      "derived_rules": [
        {"name": "small_business", "when": "employees <= 5", "set": "is_small_business"}
      ]
    }
  }
}`

const questionnaireJSON = `{
  "flow_slug": "premises-flow",
  "questions": [
    {
      "q_id": "q_premises",
      "stage": "premises",
      "field_key_en": "has_physical_premises",
      "data_type": "boolean",
      "json_path": "premises.exists"
    },
    {
      "q_id": "q_city",
      "stage": "premises",
      "field_key_en": "premises_city",
      "data_type": "string",
      "json_path": "premises.address.city",
      "ask_if": "has_physical_premises"
    }
  ]
}`

func TestLoadManifest(t *testing.T) {
	m, err := LoadManifest(strings.NewReader(manifestJSON))
	if err != nil {
		t.Fatal(err)
	}
	if m.Name != "business-intake" {
		t.Errorf("name = %q", m.Name)
	}
	if len(m.Processes) != 4 {
		t.Fatalf("processes = %d", len(m.Processes))
	}
	if !m.Processes[3].Terminal {
		t.Error("last process should be terminal")
	}
	if len(m.Contract().DerivedRules) != 1 {
		t.Error("derived rules not decoded")
	}
}

func TestLoadManifest_UnknownField(t *testing.T) {
	bad := `{"name": "x", "processes": [], "surprise": 1}`
	if _, err := LoadManifest(strings.NewReader(bad)); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestValidateManifest_Clean(t *testing.T) {
	m, err := LoadManifest(strings.NewReader(manifestJSON))
	if err != nil {
		t.Fatal(err)
	}
	if errs := ValidateManifest(m); len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs[0])
	}
}

func TestValidateManifest_DomainRules(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Manifest)
		wantSub string
	}{
		{
			name:    "conditional welcome",
			mutate:  func(m *Manifest) { m.Processes[0].AskIf = "x" },
			wantSub: "unconditional",
		},
		{
			name:    "duplicate process key",
			mutate:  func(m *Manifest) { m.Processes[1].ProcessKey = "welcome" },
			wantSub: "duplicate",
		},
		{
			name:    "no terminal",
			mutate:  func(m *Manifest) { m.Processes[3].Terminal = false },
			wantSub: "terminal",
		},
		{
			name:    "malformed ask_if",
			mutate:  func(m *Manifest) { m.Processes[2].AskIf = "a &&" },
			wantSub: "process premises_characteristics",
		},
		{
			name: "malformed rule guard",
			mutate: func(m *Manifest) {
				m.Contract().DerivedRules[0].When = "(employees"
			},
			wantSub: "rule small_business",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := LoadManifest(strings.NewReader(manifestJSON))
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(m)
			errs := ValidateManifest(m)
			if len(errs) == 0 {
				t.Fatal("expected validation errors")
			}
			found := false
			for _, e := range errs {
				if strings.Contains(e.Message, tt.wantSub) {
					found = true
				}
			}
			if !found {
				t.Errorf("no error mentions %q; got %v", tt.wantSub, errs[0])
			}
		})
	}
}

func TestValidateQuestionnaire(t *testing.T) {
	q, err := LoadQuestionnaire(strings.NewReader(questionnaireJSON))
	if err != nil {
		t.Fatal(err)
	}
	if errs := ValidateQuestionnaire(q); len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs[0])
	}

	q.Questions[0].DataType = "integer"
	q.Questions[1].QID = "q_premises"
	errs := ValidateQuestionnaire(q)
	if len(errs) < 2 {
		t.Fatalf("got %d errors, want at least 2", len(errs))
	}
}

func TestValidateQuestionnaire_EnumNeedsOptions(t *testing.T) {
	q, _ := LoadQuestionnaire(strings.NewReader(questionnaireJSON))
	q.Questions[1].DataType = "enum"
	errs := ValidateQuestionnaire(q)
	if len(errs) == 0 {
		t.Fatal("enum without options accepted")
	}
}

func TestQuestionByID(t *testing.T) {
	q, _ := LoadQuestionnaire(strings.NewReader(questionnaireJSON))
	if q.QuestionByID("q_city") == nil {
		t.Error("q_city not found")
	}
	if q.QuestionByID("nope") != nil {
		t.Error("phantom question found")
	}
}
