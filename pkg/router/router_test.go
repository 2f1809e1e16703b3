package router

import (
	"testing"

	"github.com/clalbit/maslul/pkg/condition"
	"github.com/clalbit/maslul/pkg/flow"
)

// Manifest mirroring the business-intake process chain: welcome and intent
// first, then the premises sub-processes gated on coverage flags, then the
// terminal history/disclosures process.
func testManifest() *flow.Manifest {
	return &flow.Manifest{
		Name: "business-intake",
		Processes: []flow.Process{
			{ProcessKey: "welcome", FlowSlug: "welcome-flow"},
			{ProcessKey: "intent", FlowSlug: "intent-flow", AskIf: "welcome_done"},
			{ProcessKey: "premises_characteristics", FlowSlug: "premises-flow", AskIf: "ch2_building_selected == true"},
			{ProcessKey: "premises_safety", FlowSlug: "premises-safety-flow", AskIf: "has_physical_premises && ch2_building_selected"},
			{ProcessKey: "contents_coverage", FlowSlug: "contents-flow", AskIf: "ch3_contents_selected"},
			{ProcessKey: "history_disclosures", FlowSlug: "history-flow", Terminal: true},
		},
	}
}

func newRouter() *Router {
	return New(testManifest(), condition.NewCache())
}

func TestNext_NothingCompleted(t *testing.T) {
	r := newRouter()
	// Regardless of flags, nothing completed means welcome runs first.
	for _, flags := range []map[string]any{
		nil,
		{"ch2_building_selected": true},
		{"welcome_done": true, "ch3_contents_selected": true},
	} {
		d, err := r.Next(nil, flags)
		if err != nil {
			t.Fatal(err)
		}
		if d.ProcessKey != "welcome" {
			t.Errorf("Next(nil, %v) = %q, want welcome", flags, d.ProcessKey)
		}
	}
}

func TestNext_FallbackWhenNoFlagsSet(t *testing.T) {
	r := newRouter()
	d, err := r.Next([]string{"welcome", "intent"}, map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if d.ProcessKey != "history_disclosures" || !d.Terminal {
		t.Errorf("got %q, want terminal history_disclosures", d.ProcessKey)
	}
}

func TestNext_OrderedPremisesChain(t *testing.T) {
	r := newRouter()
	flags := map[string]any{
		"welcome_done":          true,
		"ch2_building_selected": true,
		"has_physical_premises": true,
	}

	completed := []string{"welcome", "intent"}
	d, err := r.Next(completed, flags)
	if err != nil {
		t.Fatal(err)
	}
	if d.ProcessKey != "premises_characteristics" {
		t.Fatalf("got %q, want premises_characteristics", d.ProcessKey)
	}

	completed = append(completed, d.ProcessKey)
	d, err = r.Next(completed, flags)
	if err != nil {
		t.Fatal(err)
	}
	if d.ProcessKey != "premises_safety" {
		t.Fatalf("got %q, want premises_safety", d.ProcessKey)
	}

	completed = append(completed, d.ProcessKey)
	d, err = r.Next(completed, flags)
	if err != nil {
		t.Fatal(err)
	}
	if d.ProcessKey != "history_disclosures" {
		t.Errorf("got %q, want terminal", d.ProcessKey)
	}
}

// Declared ordering is authoritative: a later process never overtakes an
// earlier applicable one, whatever the flags say.
func TestNext_PriorityIsSoleTieBreak(t *testing.T) {
	r := newRouter()
	flags := map[string]any{
		"ch2_building_selected": true,
		"ch3_contents_selected": true,
		"has_physical_premises": true,
	}
	d, err := r.Next([]string{"welcome", "intent"}, flags)
	if err != nil {
		t.Fatal(err)
	}
	if d.ProcessKey != "premises_characteristics" {
		t.Errorf("got %q, want the earliest applicable process", d.ProcessKey)
	}
}

// An ask_if referencing unset flags degrades to "not applicable" — it must
// never make routing fail outright.
func TestNext_MissingFlagSkipsProcess(t *testing.T) {
	r := newRouter()
	d, err := r.Next([]string{"welcome"}, map[string]any{"welcome_done": false})
	if err != nil {
		t.Fatal(err)
	}
	if d.ProcessKey != "history_disclosures" {
		t.Errorf("got %q", d.ProcessKey)
	}
}

func TestNext_TerminalReturnedEvenIfCompleted(t *testing.T) {
	r := newRouter()
	completed := []string{"welcome", "intent", "premises_characteristics", "premises_safety", "contents_coverage", "history_disclosures"}
	d, err := r.Next(completed, map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if d.ProcessKey != "history_disclosures" {
		t.Errorf("got %q", d.ProcessKey)
	}
}

func TestNext_Pure(t *testing.T) {
	r := newRouter()
	completed := []string{"welcome"}
	flags := map[string]any{"welcome_done": true}
	first, err := r.Next(completed, flags)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := r.Next(completed, flags)
		if err != nil {
			t.Fatal(err)
		}
		if again != first {
			t.Fatal("routing decision is not stable")
		}
	}
}

func TestTrace(t *testing.T) {
	r := newRouter()
	d, probes, err := r.Trace([]string{"welcome"}, map[string]any{"welcome_done": true})
	if err != nil {
		t.Fatal(err)
	}
	if d.ProcessKey != "intent" {
		t.Fatalf("decision = %q", d.ProcessKey)
	}
	if len(probes) != 2 {
		t.Fatalf("probes = %d, want 2 (welcome completed + intent applicable)", len(probes))
	}
	if !probes[0].Completed || probes[0].ProcessKey != "welcome" {
		t.Errorf("probe[0] = %+v", probes[0])
	}
	if !probes[1].Applicable || probes[1].ProcessKey != "intent" {
		t.Errorf("probe[1] = %+v", probes[1])
	}
}

func TestNext_NoProcesses(t *testing.T) {
	r := New(&flow.Manifest{Name: "empty"}, nil)
	if _, err := r.Next(nil, nil); err == nil {
		t.Fatal("empty manifest routed successfully")
	}
}
