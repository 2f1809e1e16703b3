package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/clalbit/maslul/pkg/condition"
	"github.com/clalbit/maslul/pkg/flow"
	"github.com/clalbit/maslul/pkg/router"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	loadDotEnv() // load .env file if present (gitignored)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadDotEnv reads a .env file from the working directory and sets any
// variables that aren't already set in the environment. Lines are
// KEY=VALUE (or KEY="VALUE"). Comments (#) and blanks are skipped.
func loadDotEnv() {
	f, err := os.Open(".env")
	if err != nil {
		return // no .env file — that's fine
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

var rootCmd = &cobra.Command{
	Use:   "maslul",
	Short: "Conversational intake orchestration engine",
	Long:  "maslul — orchestrates multi-stage, branching intake questionnaires: routing, answer parsing, derived rules, and tool execution.",
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [manifest.json] [questionnaire.json...]",
	Short: "Validate flow documents against the schema and domain rules",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	total := 0
	for i, path := range args {
		var errs []*flow.ValidationError
		var label string
		if i == 0 {
			m, es := flow.ValidateManifestFile(path)
			errs = es
			if m != nil {
				label = fmt.Sprintf("%s (%d processes)", m.Name, len(m.Processes))
			}
		} else {
			q, es := flow.ValidateQuestionnaireFile(path)
			errs = es
			if q != nil {
				label = fmt.Sprintf("%s (%d questions)", q.FlowSlug, len(q.Questions))
			}
		}
		if len(errs) > 0 {
			fmt.Fprintf(os.Stderr, "%s: %d error(s)\n", path, len(errs))
			for j, e := range errs {
				fmt.Fprintf(os.Stderr, "  %d. [%s] %s\n", j+1, e.Phase, e.Message)
				if e.Path != "" {
					fmt.Fprintf(os.Stderr, "     at: %s\n", e.Path)
				}
			}
			total += len(errs)
			continue
		}
		fmt.Printf("✓ %s is valid: %s\n", path, label)
	}
	if total > 0 {
		return fmt.Errorf("validation failed with %d error(s)", total)
	}
	return nil
}

// --- route ---

var (
	routeCompleted []string
	routeFlags     []string
	routeTrace     bool
)

var routeCmd = &cobra.Command{
	Use:   "route [manifest.json]",
	Short: "Decide the next process for a given conversation position",
	Args:  cobra.ExactArgs(1),
	RunE:  runRoute,
}

func runRoute(cmd *cobra.Command, args []string) error {
	m, errs := flow.ValidateManifestFile(args[0])
	if len(errs) > 0 {
		return fmt.Errorf("%s: %v", args[0], errs[0])
	}

	flags, err := parseVarFlags(routeFlags)
	if err != nil {
		return err
	}

	rtr := router.New(m, condition.NewCache())
	if routeTrace {
		dec, probes, err := rtr.Trace(routeCompleted, flags)
		if err != nil {
			return err
		}
		for _, p := range probes {
			mark := " "
			switch {
			case p.Completed:
				mark = "·"
			case p.Applicable:
				mark = "→"
			}
			fmt.Printf("  %s %-30s ask_if=%q\n", mark, p.ProcessKey, p.AskIf)
		}
		return printJSON(dec)
	}
	dec, err := rtr.Next(routeCompleted, flags)
	if err != nil {
		return err
	}
	return printJSON(dec)
}

// parseVarFlags turns repeated key=value flags into typed bindings.
// Values that read as JSON scalars (true, 12, 3.5) are typed; the rest
// stay strings.
func parseVarFlags(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("bad --flag %q (want key=value)", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(parts[1]), &v); err != nil {
			v = parts[1]
		}
		out[parts[0]] = v
	}
	return out, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Work with the flow document schemas",
}

var schemaExportCmd = &cobra.Command{
	Use:   "export [manifest|questionnaire]",
	Short: "Print the generated JSON Schema for a document type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		var err error
		switch args[0] {
		case "manifest":
			data, err = flow.GenerateManifestJSONSchema()
		case "questionnaire":
			data, err = flow.GenerateQuestionnaireJSONSchema()
		default:
			return fmt.Errorf("unknown document type %q (want manifest or questionnaire)", args[0])
		}
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("maslul %s (build: %s)\n", version, commit)
	},
}

func init() {
	routeCmd.Flags().StringArrayVar(&routeCompleted, "completed", nil, "Process key already completed, repeatable")
	routeCmd.Flags().StringArrayVar(&routeFlags, "flag", nil, "Routing flag (key=value), repeatable")
	routeCmd.Flags().BoolVar(&routeTrace, "trace", false, "Show the per-process routing probes")

	schemaCmd.AddCommand(schemaExportCmd)

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(versionCmd)
}
