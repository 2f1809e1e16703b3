package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/clalbit/maslul/pkg/intake"
)

// Company is one entry in the registered-business directory.
type Company struct {
	Number  string `json:"number"`
	Name    string `json:"name"`
	Segment string `json:"segment"`
	City    string `json:"city"`
	Active  bool   `json:"active"`
}

// Directory answers company-number lookups.
type Directory interface {
	Lookup(number string) (*Company, bool)
}

// FileDirectory is a Directory loaded once from a JSON array on disk.
type FileDirectory struct {
	byNumber map[string]*Company
}

func LoadDirectory(path string) (*FileDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var companies []*Company
	if err := json.Unmarshal(data, &companies); err != nil {
		return nil, fmt.Errorf("parse company directory %s: %w", path, err)
	}
	d := &FileDirectory{byNumber: make(map[string]*Company, len(companies))}
	for _, c := range companies {
		d.byNumber[c.Number] = c
	}
	return d, nil
}

func (d *FileDirectory) Lookup(number string) (*Company, bool) {
	c, ok := d.byNumber[number]
	return c, ok
}

// CompanyLookup builds the company_lookup built-in. It reads the company
// number from the payload (falling back to the conversation variable of
// the same name) and saves the matched company's profile back into the
// conversation.
func CompanyLookup(dir Directory) Func {
	return func(_ context.Context, call Call) (*Result, error) {
		number := stringArg(call, "company_number")
		if number == "" {
			return failure("missing_company_number", "company_lookup needs a company_number"), nil
		}
		c, ok := dir.Lookup(number)
		if !ok {
			return failure("company_not_found", "no company registered under %s", number), nil
		}
		if !c.Active {
			return failure("company_inactive", "company %s (%s) is no longer active", number, c.Name), nil
		}
		return &Result{
			Success: true,
			Data:    c,
			SaveResults: map[string]any{
				"company_name":    c.Name,
				"company_segment": c.Segment,
				"company_city":    c.City,
			},
		}, nil
	}
}

// SaveIntake builds the save_intake built-in: assemble the document from
// the current variables, validate it against its own schema, and append an
// immutable version to the store. A document that fails validation is
// reported field by field and never persisted.
func SaveIntake(validator *intake.Validator, store intake.Store, mappings []intake.FieldMapping, defaults map[string]any, meta intake.Meta) Func {
	return func(_ context.Context, call Call) (*Result, error) {
		doc := intake.BuildDocument(call.Vars, mappings, defaults, meta)
		res, err := validator.Validate(doc)
		if err != nil {
			return failure("schema_unresolved", "%v", err), nil
		}
		if !res.OK {
			return &Result{
				Success:   false,
				Error:     fmt.Sprintf("intake failed schema %s with %d error(s)", res.SchemaID, len(res.Errors)),
				ErrorCode: "validation_failed",
				Data:      res.Errors,
			}, nil
		}
		rec, err := store.Append(call.CaseID, res.SchemaID, doc)
		if err != nil {
			return failure("store_error", "save intake: %v", err), nil
		}
		return &Result{
			Success: true,
			Data: map[string]any{
				"id":        rec.ID,
				"version":   rec.Version,
				"schema_id": rec.SchemaID,
			},
			SaveResults: map[string]any{
				"intake_saved":   true,
				"intake_version": rec.Version,
			},
		}, nil
	}
}

func stringArg(call Call, key string) string {
	if v, ok := call.Payload[key]; ok && v != nil {
		return strings.TrimSpace(fmt.Sprint(v))
	}
	if v, ok := call.Vars[key]; ok && v != nil {
		return strings.TrimSpace(fmt.Sprint(v))
	}
	return ""
}
