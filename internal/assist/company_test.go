package assist

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const companiesYAML = `
companies:
  - id: zeta
    name: Zeta Labs
    industry: Research
  - id: acme
    name: Acme Corp
    industry: Manufacturing
    culture:
      keywords: [ownership, frugality]
      workStyle: hybrid
    commonQuestions:
      behavioral:
        - Tell me about a time you disagreed with your manager.
      technical:
        - Design a rate limiter.
`

func TestLoadCompanies(t *testing.T) {
	store, err := LoadCompanies(strings.NewReader(companiesYAML))
	if err != nil {
		t.Fatalf("LoadCompanies failed: %v", err)
	}

	c, err := store.GetByID("acme")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if c.Name != "Acme Corp" || c.Culture.WorkStyle != "hybrid" || len(c.Culture.Keywords) != 2 {
		t.Errorf("Unexpected company: %+v", c)
	}

	list := store.List()
	if len(list) != 2 || list[0].ID != "acme" || list[1].ID != "zeta" {
		t.Errorf("Expected list ordered by id, got %+v", list)
	}
}

func TestCompanyStore_NotFound(t *testing.T) {
	store, _ := LoadCompanies(strings.NewReader(companiesYAML))

	if _, err := store.GetByID("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := store.Questions("nope", "all"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound from Questions, got %v", err)
	}
}

func TestCompanyStore_Questions(t *testing.T) {
	store, _ := LoadCompanies(strings.NewReader(companiesYAML))

	all, err := store.Questions("acme", "all")
	if err != nil || len(all) != 2 {
		t.Fatalf("Expected 2 question kinds, got %v (%v)", all, err)
	}
	tech, err := store.Questions("acme", "technical")
	if err != nil || len(tech["technical"]) != 1 {
		t.Errorf("Expected 1 technical question, got %v (%v)", tech, err)
	}
	if _, err := store.Questions("acme", "trivia"); err == nil {
		t.Error("Expected error for unknown question type")
	}
}

func TestLoadCompanies_Rejects(t *testing.T) {
	tests := map[string]string{
		"unknown key":  "companies:\n  - id: a\n    nmae: typo\n",
		"missing id":   "companies:\n  - name: A\n",
		"duplicate id": "companies:\n  - id: a\n  - id: a\n",
	}
	for name, doc := range tests {
		if _, err := LoadCompanies(strings.NewReader(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadCompanies_Empty(t *testing.T) {
	store, err := LoadCompanies(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Expected empty dataset to load, got %v", err)
	}
	if len(store.List()) != 0 {
		t.Error("Expected no companies")
	}
}

func TestLoadCompanyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "companies.yaml")
	if err := os.WriteFile(path, []byte(companiesYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCompanyFile(path); err != nil {
		t.Errorf("LoadCompanyFile failed: %v", err)
	}
	if _, err := LoadCompanyFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}
