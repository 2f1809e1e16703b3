// Package router picks the next questionnaire process from the manifest's
// priority-ordered decision table. The router is a pure function of its
// inputs: the ordered set of completed processes and the current flag
// snapshot are passed in on every call, and nothing is remembered between
// calls — persistence of "what's done" belongs to the orchestration layer.
package router

import (
	"fmt"

	"github.com/clalbit/maslul/pkg/condition"
	"github.com/clalbit/maslul/pkg/flow"
)

// Decision is the routing outcome handed back to the caller.
type Decision struct {
	ProcessKey string
	FlowSlug   string
	Terminal   bool
}

// Probe records one process's predicate outcome for the debug trace.
type Probe struct {
	ProcessKey string
	Completed  bool
	AskIf      string
	Applicable bool
}

// Router evaluates manifest predicates through a shared compile cache.
type Router struct {
	manifest   *flow.Manifest
	conditions *condition.Cache
}

// New creates a router over a validated manifest.
func New(m *flow.Manifest, cache *condition.Cache) *Router {
	if cache == nil {
		cache = condition.NewCache()
	}
	return &Router{manifest: m, conditions: cache}
}

// Next returns the process that should run now. Iteration follows the
// manifest's declared ordering — priority order is the sole tie-break.
// With nothing completed the first (welcome) process wins unconditionally;
// when every applicable process is done, the designated terminal process
// is returned. A predicate referencing an unset flag treats it as falsy,
// so routing skips that process instead of failing.
func (r *Router) Next(completed []string, flags map[string]any) (Decision, error) {
	d, _, err := r.next(completed, flags, false)
	return d, err
}

// Trace is Next plus the per-process predicate outcomes that led to the
// decision, for the route debug command.
func (r *Router) Trace(completed []string, flags map[string]any) (Decision, []Probe, error) {
	return r.next(completed, flags, true)
}

func (r *Router) next(completed []string, flags map[string]any, trace bool) (Decision, []Probe, error) {
	if len(r.manifest.Processes) == 0 {
		return Decision{}, nil, fmt.Errorf("manifest %q has no processes", r.manifest.Name)
	}

	done := make(map[string]bool, len(completed))
	for _, key := range completed {
		done[key] = true
	}

	var probes []Probe
	var terminal *flow.Process
	for i := range r.manifest.Processes {
		p := &r.manifest.Processes[i]
		if p.Terminal {
			terminal = p
		}
		if done[p.ProcessKey] {
			if trace {
				probes = append(probes, Probe{ProcessKey: p.ProcessKey, Completed: true, AskIf: p.AskIf})
			}
			continue
		}

		applicable := true
		if p.AskIf != "" {
			ok, err := r.conditions.Eval(p.AskIf, flags)
			if err != nil {
				return Decision{}, probes, fmt.Errorf("process %q ask_if: %w", p.ProcessKey, err)
			}
			applicable = ok
		}
		if trace {
			probes = append(probes, Probe{ProcessKey: p.ProcessKey, AskIf: p.AskIf, Applicable: applicable})
		}
		if applicable {
			return decisionFor(p), probes, nil
		}
	}

	// Every applicable process is completed (or skipped): fall back to the
	// terminal process even if it was already visited.
	if terminal != nil {
		return decisionFor(terminal), probes, nil
	}
	return Decision{}, probes, fmt.Errorf("manifest %q has no terminal process", r.manifest.Name)
}

func decisionFor(p *flow.Process) Decision {
	return Decision{ProcessKey: p.ProcessKey, FlowSlug: p.FlowSlug, Terminal: p.Terminal}
}
