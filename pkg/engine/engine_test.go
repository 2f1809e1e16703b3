package engine

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/clalbit/maslul/pkg/answers"
	"github.com/clalbit/maslul/pkg/condition"
	"github.com/clalbit/maslul/pkg/flow"
)

func testManifest() *flow.Manifest {
	return &flow.Manifest{
		Name: "business-intake",
		Processes: []flow.Process{
			{ProcessKey: "welcome", FlowSlug: "welcome-flow"},
			{ProcessKey: "history_disclosures", FlowSlug: "history-flow", Terminal: true},
		},
		Runtime: &flow.Runtime{EngineContract: &flow.RuntimeContract{
			Defaults: map[string]any{
				"has_physical_premises": false,
			},
			DerivedRules: []flow.DerivedRule{
				{Name: "small_business", When: "employees <= 5", Set: "is_small_business"},
				{Name: "needs_premises_flow", When: "has_physical_premises && employees > 0", Set: "ch2_building_selected", Value: true},
			},
		}},
	}
}

func testEngine() *Engine {
	p := answers.NewParser()
	p.Now = func() time.Time { return time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC) }
	return New(condition.NewCache(), p, time.UTC)
}

func TestBuildInitialState(t *testing.T) {
	e := testEngine()
	st := e.BuildInitialState(testManifest(), map[string]any{"employees": float64(3)})

	if st.Vars["has_physical_premises"] != false {
		t.Error("default not applied")
	}
	if st.Vars["employees"] != float64(3) {
		t.Error("seed not applied")
	}
	// Derived pass runs on the merged snapshot.
	if st.Vars["is_small_business"] != true {
		t.Error("derived rule not applied to seeded snapshot")
	}
}

func TestBuildInitialState_SeedWinsOverDefault(t *testing.T) {
	e := testEngine()
	st := e.BuildInitialState(testManifest(), map[string]any{"has_physical_premises": true})
	if st.Vars["has_physical_premises"] != true {
		t.Error("seed should override default")
	}
}

func TestParseAndApplyAnswer(t *testing.T) {
	e := testEngine()
	m := testManifest()
	st := e.BuildInitialState(m, nil)

	q := &flow.Question{
		QID: "q_employees", Stage: "intent",
		FieldKeyEn: "employees", DataType: "number",
		JSONPath: "business.employees",
	}
	if err := e.ParseAndApplyAnswer(m, st, q, "12 full-time"); err != nil {
		t.Fatal(err)
	}
	if st.Vars["employees"] != float64(12) {
		t.Errorf("employees = %v", st.Vars["employees"])
	}
	if st.Vars["is_small_business"] != false {
		t.Error("boolean-form rule should record guard result")
	}
	if !st.Answered["q_employees"] {
		t.Error("question not marked answered")
	}
	if st.StageProgress["intent"] != 1 {
		t.Errorf("stage progress = %d", st.StageProgress["intent"])
	}
}

func TestParseAndApplyAnswer_FailureLeavesVarsUntouched(t *testing.T) {
	e := testEngine()
	m := testManifest()
	st := e.BuildInitialState(m, nil)
	before := st.Snapshot()

	q := &flow.Question{
		QID: "q_start", Stage: "intent",
		FieldKeyEn: "start_date", DataType: "date",
		JSONPath: "policy.start_date",
	}
	err := e.ParseAndApplyAnswer(m, st, q, "whenever you like")
	var perr *answers.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v", err)
	}
	if !reflect.DeepEqual(before, st.Vars) {
		t.Error("vars mutated on parse failure")
	}
	if st.Answered["q_start"] {
		t.Error("failed answer marked as answered")
	}
}

func TestParseAndApplyAnswer_Idempotent(t *testing.T) {
	e := testEngine()
	m := testManifest()
	st := e.BuildInitialState(m, nil)

	q := &flow.Question{
		QID: "q_premises", Stage: "premises",
		FieldKeyEn: "has_physical_premises", DataType: "boolean",
		JSONPath: "premises.exists",
	}
	if err := e.ParseAndApplyAnswer(m, st, q, "כן"); err != nil {
		t.Fatal(err)
	}
	once := st.Snapshot()
	onceProgress := st.StageProgress["premises"]

	if err := e.ParseAndApplyAnswer(m, st, q, "כן"); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(once, st.Vars) {
		t.Errorf("second apply changed vars: %v vs %v", once, st.Vars)
	}
	if st.StageProgress["premises"] != onceProgress {
		t.Error("re-answering inflated stage progress")
	}
}

func TestParseAndApplyAnswer_DerivedChain(t *testing.T) {
	e := testEngine()
	m := testManifest()
	st := e.BuildInitialState(m, nil)

	premises := &flow.Question{
		QID: "q_premises", Stage: "premises",
		FieldKeyEn: "has_physical_premises", DataType: "boolean",
		JSONPath: "premises.exists",
	}
	employees := &flow.Question{
		QID: "q_employees", Stage: "intent",
		FieldKeyEn: "employees", DataType: "number",
		JSONPath: "business.employees",
	}

	if err := e.ParseAndApplyAnswer(m, st, premises, "yes"); err != nil {
		t.Fatal(err)
	}
	if _, set := st.Vars["ch2_building_selected"]; set {
		t.Error("literal-form rule fired before its guard held")
	}

	if err := e.ParseAndApplyAnswer(m, st, employees, "4"); err != nil {
		t.Fatal(err)
	}
	if st.Vars["ch2_building_selected"] != true {
		t.Error("literal-form rule did not fire")
	}
	if st.Vars["is_small_business"] != true {
		t.Error("guard-result rule wrong")
	}
}

func TestParseAndApplyAnswer_UnknownDataType(t *testing.T) {
	e := testEngine()
	m := testManifest()
	st := e.BuildInitialState(m, nil)
	q := &flow.Question{QID: "q_bad", FieldKeyEn: "x", DataType: "decimal", JSONPath: "x"}
	err := e.ParseAndApplyAnswer(m, st, q, "1")
	if err == nil {
		t.Fatal("unknown data_type accepted")
	}
	var perr *answers.ParseError
	if errors.As(err, &perr) {
		t.Error("configuration error reported as user-input error")
	}
}

func TestIsRelevantAndNextQuestion(t *testing.T) {
	e := testEngine()
	m := testManifest()
	st := e.BuildInitialState(m, nil)

	qn := &flow.Questionnaire{
		FlowSlug: "premises-flow",
		Questions: []flow.Question{
			{QID: "q_premises", Stage: "premises", FieldKeyEn: "has_physical_premises", DataType: "boolean", JSONPath: "premises.exists"},
			{QID: "q_city", Stage: "premises", FieldKeyEn: "premises_city", DataType: "string", JSONPath: "premises.address.city", AskIf: "has_physical_premises"},
		},
	}

	next, err := e.NextQuestion(qn, st)
	if err != nil || next == nil || next.QID != "q_premises" {
		t.Fatalf("next = %v, err = %v", next, err)
	}

	if err := e.ParseAndApplyAnswer(m, st, next, "no"); err != nil {
		t.Fatal(err)
	}
	// q_city is gated on premises and must be skipped.
	next, err = e.NextQuestion(qn, st)
	if err != nil {
		t.Fatal(err)
	}
	if next != nil {
		t.Errorf("next = %v, want exhausted", next.QID)
	}

	if err := e.ParseAndApplyAnswer(m, st, &qn.Questions[0], "yes"); err != nil {
		t.Fatal(err)
	}
	next, _ = e.NextQuestion(qn, st)
	if next == nil || next.QID != "q_city" {
		t.Errorf("next = %v, want q_city", next)
	}
}
