// Package intake assembles the structured output of a completed
// questionnaire and validates it against a versioned JSON Schema registry.
// A document names its own schema through the meta triple
// insurer/form_catalog_number/form_version_date; that string is both the
// registry cache key and the compatibility contract.
package intake

import (
	"fmt"
	"strings"
)

// Meta is the document's self-describing schema selector.
type Meta struct {
	Insurer           string `json:"insurer"`
	FormCatalogNumber string `json:"form_catalog_number"`
	FormVersionDate   string `json:"form_version_date"`
}

// SchemaID derives the schema identifier. A document missing any of the
// three fields never produces an id — it fails fast before any schema
// lookup happens.
func (m Meta) SchemaID() (string, error) {
	if m.Insurer == "" || m.FormCatalogNumber == "" || m.FormVersionDate == "" {
		return "", fmt.Errorf("incomplete meta: insurer=%q form_catalog_number=%q form_version_date=%q",
			m.Insurer, m.FormCatalogNumber, m.FormVersionDate)
	}
	return m.Insurer + "/" + m.FormCatalogNumber + "/" + m.FormVersionDate, nil
}

// MetaOf extracts the meta block from an assembled document.
func MetaOf(doc map[string]any) Meta {
	meta, _ := doc["meta"].(map[string]any)
	str := func(key string) string {
		s, _ := meta[key].(string)
		return s
	}
	return Meta{
		Insurer:           str("insurer"),
		FormCatalogNumber: str("form_catalog_number"),
		FormVersionDate:   str("form_version_date"),
	}
}

// FieldMapping routes one flat variable into its nested document position.
// Paths are dot-delimited ("premises.address.city").
type FieldMapping struct {
	FieldKey string
	Path     string
}

// BuildDocument assembles a fresh document from the current variable
// snapshot: defaults first, then mapped variables (unset variables are
// skipped, they do not null out defaults), then the meta block. The result
// is built per save attempt and never mutated after validation.
func BuildDocument(vars map[string]any, mappings []FieldMapping, defaults map[string]any, meta Meta) map[string]any {
	doc := make(map[string]any)
	for path, v := range defaults {
		setPath(doc, path, v)
	}
	for _, m := range mappings {
		if v, ok := vars[m.FieldKey]; ok {
			setPath(doc, m.Path, v)
		}
	}
	doc["meta"] = map[string]any{
		"insurer":             meta.Insurer,
		"form_catalog_number": meta.FormCatalogNumber,
		"form_version_date":   meta.FormVersionDate,
	}
	return doc
}

// setPath writes v at a dot-delimited position, creating intermediate
// objects as needed. A non-object in the way is replaced — the mapping is
// authoritative about document shape.
func setPath(doc map[string]any, path string, v any) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}
