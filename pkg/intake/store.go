package intake

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is one immutable saved intake. Saving again for the same case
// appends a new record with the next version; nothing is ever rewritten.
type Record struct {
	ID       string         `json:"id"`
	CaseID   string         `json:"case_id"`
	SchemaID string         `json:"schema_id"`
	Version  int            `json:"version"`
	SavedAt  time.Time      `json:"saved_at"`
	Document map[string]any `json:"document"`
}

// Store persists validated intake documents.
type Store interface {
	// Append writes doc as the next version for caseID and returns the
	// stored record.
	Append(caseID, schemaID string, doc map[string]any) (*Record, error)
	// Load returns one version, or the latest when version <= 0.
	Load(caseID string, version int) (*Record, error)
	// Versions lists saved version numbers for a case, ascending.
	Versions(caseID string) ([]int, error)
}

// FSStore keeps records as one JSON file per version under
// <root>/<case_id>/v0001.json. Now is injectable for tests.
type FSStore struct {
	root string
	mu   sync.Mutex
	Now  func() time.Time
}

func NewFSStore(root string) *FSStore {
	return &FSStore{root: root, Now: time.Now}
}

func (s *FSStore) Append(caseID, schemaID string, doc map[string]any) (*Record, error) {
	if caseID == "" {
		return nil, fmt.Errorf("empty case id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, err := s.versionsLocked(caseID)
	if err != nil {
		return nil, err
	}
	next := 1
	if n := len(versions); n > 0 {
		next = versions[n-1] + 1
	}

	rec := &Record{
		ID:       uuid.NewString(),
		CaseID:   caseID,
		SchemaID: schemaID,
		Version:  next,
		SavedAt:  s.Now().UTC(),
		Document: doc,
	}
	dir := filepath.Join(s.root, caseID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, err
	}
	// Write-then-rename so a crash mid-write never leaves a torn version.
	path := filepath.Join(dir, versionFile(next))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *FSStore) Load(caseID string, version int) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version <= 0 {
		versions, err := s.versionsLocked(caseID)
		if err != nil {
			return nil, err
		}
		if len(versions) == 0 {
			return nil, fmt.Errorf("no saved intakes for case %s", caseID)
		}
		version = versions[len(versions)-1]
	}
	data, err := os.ReadFile(filepath.Join(s.root, caseID, versionFile(version)))
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *FSStore) Versions(caseID string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versionsLocked(caseID)
}

func (s *FSStore) versionsLocked(caseID string) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, caseID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "v") || !strings.HasSuffix(name, ".json") {
			continue
		}
		var v int
		if _, err := fmt.Sscanf(name, "v%04d.json", &v); err == nil && v > 0 {
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out, nil
}

func versionFile(v int) string {
	return fmt.Sprintf("v%04d.json", v)
}
