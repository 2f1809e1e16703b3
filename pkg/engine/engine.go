// Package engine owns the accumulated variable snapshot of a conversation
// and the progress through a questionnaire. It is the only writer of vars:
// answers enter through ParseAndApplyAnswer, which commits the typed value
// and re-runs the manifest's derived rules in a single declaration-order
// pass. The engine is synchronous and holds no locks; the orchestration
// layer serializes calls per conversation.
package engine

import (
	"fmt"
	"time"

	"github.com/clalbit/maslul/pkg/answers"
	"github.com/clalbit/maslul/pkg/condition"
	"github.com/clalbit/maslul/pkg/flow"
)

// State is the mutable per-conversation snapshot: committed variables,
// which questions have been answered, and per-stage progress counts.
type State struct {
	Vars          map[string]any
	Answered      map[string]bool
	StageProgress map[string]int
}

// Snapshot returns a shallow copy of Vars for evaluation contexts that
// must not observe later mutations.
func (s *State) Snapshot() map[string]any {
	out := make(map[string]any, len(s.Vars))
	for k, v := range s.Vars {
		out[k] = v
	}
	return out
}

// Engine evaluates questions against a manifest's runtime contract. One
// Engine serves many conversations; all per-conversation data lives in
// State.
type Engine struct {
	conditions *condition.Cache
	parser     *answers.Parser
	loc        *time.Location
}

// New creates an engine. cache and parser are injected so tests (and
// separate processes) control their lifecycle; loc anchors date answers.
func New(cache *condition.Cache, parser *answers.Parser, loc *time.Location) *Engine {
	if cache == nil {
		cache = condition.NewCache()
	}
	if parser == nil {
		parser = answers.NewParser()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{conditions: cache, parser: parser, loc: loc}
}

// BuildInitialState merges the manifest's declared defaults with variables
// persisted from an earlier session (seed wins), then runs one derived-rule
// pass so the starting snapshot is already consistent.
func (e *Engine) BuildInitialState(m *flow.Manifest, seed map[string]any) *State {
	st := &State{
		Vars:          make(map[string]any),
		Answered:      make(map[string]bool),
		StageProgress: make(map[string]int),
	}
	if rc := m.Contract(); rc != nil {
		for k, v := range rc.Defaults {
			st.Vars[k] = v
		}
	}
	for k, v := range seed {
		st.Vars[k] = v
	}
	e.applyDerivedRules(m, st)
	return st
}

// ParseAndApplyAnswer parses rawText using the question's declared type and
// recognized options, commits the typed value under the question's field
// key, and re-evaluates derived rules. On any parse failure vars is left
// untouched and the returned error carries the re-prompt reason.
//
// Calling this twice with the same question and text is equivalent to
// calling it once: the committed value is a pure function of the input and
// derived rules are pure functions of the snapshot.
func (e *Engine) ParseAndApplyAnswer(m *flow.Manifest, st *State, q *flow.Question, rawText string) error {
	typ, err := answers.ParseType(q.DataType)
	if err != nil {
		return fmt.Errorf("question %s: %w", q.QID, err)
	}

	val, err := e.parser.Parse(rawText, typ, q.OptionsHe, e.loc)
	if err != nil {
		return err
	}

	st.Vars[q.FieldKeyEn] = val
	if !st.Answered[q.QID] {
		st.Answered[q.QID] = true
		st.StageProgress[q.Stage]++
	}

	e.applyDerivedRules(m, st)
	return nil
}

// IsRelevant reports whether a question applies given the current
// snapshot. A missing variable in the predicate is falsy, so relevance
// degrades to "skip" on incomplete data instead of failing.
func (e *Engine) IsRelevant(q *flow.Question, st *State) (bool, error) {
	if q.AskIf == "" {
		return true, nil
	}
	ok, err := e.conditions.Eval(q.AskIf, st.Vars)
	if err != nil {
		return false, fmt.Errorf("question %s: %w", q.QID, err)
	}
	return ok, nil
}

// NextQuestion returns the first unanswered, relevant question in document
// order, or nil when the questionnaire is exhausted.
func (e *Engine) NextQuestion(qn *flow.Questionnaire, st *State) (*flow.Question, error) {
	for i := range qn.Questions {
		q := &qn.Questions[i]
		if st.Answered[q.QID] {
			continue
		}
		ok, err := e.IsRelevant(q, st)
		if err != nil {
			return nil, err
		}
		if ok {
			return q, nil
		}
	}
	return nil, nil
}

// ApplyExternal merges values produced outside the questionnaire (a
// tool's save_results, an imported snapshot) and re-evaluates derived
// rules over the merged snapshot.
func (e *Engine) ApplyExternal(m *flow.Manifest, st *State, values map[string]any) {
	if len(values) == 0 {
		return
	}
	for k, v := range values {
		st.Vars[k] = v
	}
	e.applyDerivedRules(m, st)
}

// NextInStage is NextQuestion restricted to one stage. A question with no
// stage belongs to every stage.
func (e *Engine) NextInStage(qn *flow.Questionnaire, st *State, stage string) (*flow.Question, error) {
	for i := range qn.Questions {
		q := &qn.Questions[i]
		if q.Stage != "" && q.Stage != stage {
			continue
		}
		if st.Answered[q.QID] {
			continue
		}
		ok, err := e.IsRelevant(q, st)
		if err != nil {
			return nil, err
		}
		if ok {
			return q, nil
		}
	}
	return nil, nil
}

// applyDerivedRules runs the manifest's rules in declaration order, one
// pass. A rule with a literal value assigns only when its guard holds; a
// rule without one assigns the guard's boolean result, so a later answer
// that flips the guard also flips the derived flag.
func (e *Engine) applyDerivedRules(m *flow.Manifest, st *State) {
	rc := m.Contract()
	if rc == nil {
		return
	}
	for _, rule := range rc.DerivedRules {
		fired, err := e.conditions.Eval(rule.When, st.Vars)
		if err != nil {
			// Malformed guards are configuration defects caught by
			// validation; at runtime they degrade to "did not fire".
			continue
		}
		if rule.Value != nil {
			if fired {
				st.Vars[rule.Set] = rule.Value
			}
			continue
		}
		st.Vars[rule.Set] = fired
	}
}
