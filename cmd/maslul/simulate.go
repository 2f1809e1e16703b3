package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clalbit/maslul/pkg/condition"
	"github.com/clalbit/maslul/pkg/engine"
	"github.com/clalbit/maslul/pkg/flow"
	"github.com/clalbit/maslul/pkg/intake"
	"github.com/clalbit/maslul/pkg/router"
	"github.com/clalbit/maslul/pkg/tools"
)

var (
	simManifest       string
	simQuestionnaires []string
	simToolsDir       string
	simCompanies      string
	simRegistry       string
	simIntakes        string
	simVars           []string
	simTZ             string
	simCase           string
	simInsurer        string
	simCatalog        string
	simFormVersion    string
	simVerbose        bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run an interactive intake conversation in the terminal",
	Long:  "simulate drives the full loop — routing, questions, answer parsing, derived rules, tools — against local flow documents, answering from the keyboard.",
	RunE:  runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simManifest, "manifest", "manifest.json", "Flow manifest path")
	simulateCmd.Flags().StringArrayVar(&simQuestionnaires, "questionnaire", nil, "Questionnaire JSON path, repeatable (one per flow)")
	simulateCmd.Flags().StringVar(&simToolsDir, "tools", "", "Directory of *.tool.yaml dynamic tool definitions")
	simulateCmd.Flags().StringVar(&simCompanies, "companies", "", "Company directory JSON for the company_lookup tool")
	simulateCmd.Flags().StringVar(&simRegistry, "registry", "schemas", "Intake schema registry root")
	simulateCmd.Flags().StringVar(&simIntakes, "intakes", "intakes", "Directory for saved intake versions")
	simulateCmd.Flags().StringArrayVar(&simVars, "var", nil, "Seed a variable (key=value), repeatable")
	simulateCmd.Flags().StringVar(&simTZ, "tz", "Asia/Jerusalem", "Timezone anchoring date answers")
	simulateCmd.Flags().StringVar(&simCase, "case", "", "Case id (default: new uuid)")
	simulateCmd.Flags().StringVar(&simInsurer, "insurer", "", "Intake meta: insurer")
	simulateCmd.Flags().StringVar(&simCatalog, "catalog", "", "Intake meta: form catalog number")
	simulateCmd.Flags().StringVar(&simFormVersion, "form-version", "", "Intake meta: form version date")
	simulateCmd.Flags().BoolVar(&simVerbose, "verbose", false, "Log tool execution details")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	log := zap.NewNop()
	if simVerbose {
		dev, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		log = dev
		defer log.Sync()
	}

	manifest, errs := flow.ValidateManifestFile(simManifest)
	if len(errs) > 0 {
		return fmt.Errorf("%s: %v", simManifest, errs[0])
	}
	flows := make(map[string]*flow.Questionnaire)
	for _, path := range simQuestionnaires {
		qn, errs := flow.ValidateQuestionnaireFile(path)
		if len(errs) > 0 {
			return fmt.Errorf("%s: %v", path, errs[0])
		}
		flows[qn.FlowSlug] = qn
	}

	loc, err := time.LoadLocation(simTZ)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", simTZ, err)
	}
	seed, err := parseVarFlags(simVars)
	if err != nil {
		return err
	}
	caseID := simCase
	if caseID == "" {
		caseID = uuid.NewString()
	}

	mgr, err := buildManager(manifest, flows, loc, log)
	if err != nil {
		return err
	}

	cache := condition.NewCache()
	eng := engine.New(cache, nil, loc)
	rtr := router.New(manifest, cache)
	state := eng.BuildInitialState(manifest, seed)

	rl, err := readline.NewEx(&readline.Config{Prompt: "› "})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Printf("case %s — %s\n", caseID, manifest.Name)
	var completed []string
	for {
		dec, err := rtr.Next(completed, state.Vars)
		if err != nil {
			return err
		}
		fmt.Printf("\n── %s ──\n", dec.ProcessKey)

		if qn := flows[dec.FlowSlug]; qn != nil {
			if err := askStage(rl, eng, manifest, qn, state, dec.ProcessKey); err != nil {
				return err
			}
		}

		proc := processByKey(manifest, dec.ProcessKey)
		for _, inv := range proc.Tools {
			res := mgr.Execute(context.Background(), inv.Name, tools.Call{
				CaseID:  caseID,
				Payload: inv.Payload,
				Vars:    state.Snapshot(),
			})
			if !res.Success {
				fmt.Printf("  tool %s failed [%s]: %s\n", inv.Name, res.ErrorCode, res.Error)
				continue
			}
			// The tool never persists into the conversation itself; its
			// save_results are merged here.
			eng.ApplyExternal(manifest, state, res.SaveResults)
		}

		completed = append(completed, dec.ProcessKey)
		if dec.Terminal {
			break
		}
	}

	fmt.Println("\nconversation complete — final variables:")
	return printJSON(state.Vars)
}

// askStage prompts every relevant question of one stage, re-prompting on
// parse failures until the answer types.
func askStage(rl *readline.Instance, eng *engine.Engine, m *flow.Manifest, qn *flow.Questionnaire, st *engine.State, stage string) error {
	for {
		q, err := eng.NextInStage(qn, st, stage)
		if err != nil {
			return err
		}
		if q == nil {
			return nil
		}

		prompt := q.TextHe
		if prompt == "" {
			prompt = q.QID
		}
		fmt.Println(prompt)
		if len(q.OptionsHe) > 0 {
			fmt.Printf("  (%s)\n", strings.Join(q.OptionsHe, " / "))
		}

		line, err := rl.Readline()
		if err == readline.ErrInterrupt || err == io.EOF {
			return fmt.Errorf("conversation aborted")
		}
		if err != nil {
			return err
		}
		if err := eng.ParseAndApplyAnswer(m, st, q, line); err != nil {
			fmt.Printf("  ✗ %v — try again\n", err)
		}
	}
}

// buildManager wires the built-in tools and loads any dynamic definitions.
func buildManager(m *flow.Manifest, flows map[string]*flow.Questionnaire, loc *time.Location, log *zap.Logger) (*tools.Manager, error) {
	mgr := tools.NewManager(log)

	if simCompanies != "" {
		dir, err := tools.LoadDirectory(simCompanies)
		if err != nil {
			return nil, err
		}
		mgr.RegisterBuiltin("company_lookup", tools.CompanyLookup(dir))
	}

	if simInsurer != "" || simCatalog != "" || simFormVersion != "" {
		var mappings []intake.FieldMapping
		for _, qn := range flows {
			for _, q := range qn.Questions {
				if q.JSONPath != "" {
					mappings = append(mappings, intake.FieldMapping{FieldKey: q.FieldKeyEn, Path: q.JSONPath})
				}
			}
		}
		var defaults map[string]any
		if rc := m.Contract(); rc != nil {
			defaults = map[string]any{}
			for k, v := range rc.Defaults {
				if strings.Contains(k, ".") {
					defaults[k] = v
				}
			}
		}
		mgr.RegisterBuiltin("save_intake", tools.SaveIntake(
			intake.NewValidator(simRegistry),
			intake.NewFSStore(simIntakes),
			mappings,
			defaults,
			intake.Meta{Insurer: simInsurer, FormCatalogNumber: simCatalog, FormVersionDate: simFormVersion},
		))
	}

	if simToolsDir != "" {
		paths, err := filepath.Glob(filepath.Join(simToolsDir, "*.tool.yaml"))
		if err != nil {
			return nil, err
		}
		for _, path := range paths {
			if err := mgr.LoadFile(path); err != nil {
				return nil, err
			}
		}
	}
	return mgr, nil
}

func processByKey(m *flow.Manifest, key string) *flow.Process {
	for i := range m.Processes {
		if m.Processes[i].ProcessKey == key {
			return &m.Processes[i]
		}
	}
	return &flow.Process{ProcessKey: key}
}
