package assist

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a company id is unknown.
var ErrNotFound = errors.New("company not found")

// Company is one entry of the company dataset.
//
// Example:
//
//	companies:
//	  - id: acme
//	    name: Acme Corp
//	    industry: Manufacturing
//	    culture:
//	      keywords: [ownership, frugality]
//	    commonQuestions:
//	      behavioral:
//	        - Tell me about a time you disagreed with your manager.
type Company struct {
	ID                   string              `yaml:"id" json:"id"`
	Name                 string              `yaml:"name" json:"name"`
	Logo                 string              `yaml:"logo" json:"logo,omitempty"`
	Industry             string              `yaml:"industry" json:"industry,omitempty"`
	Size                 string              `yaml:"size" json:"size,omitempty"`
	Headquarters         string              `yaml:"headquarters" json:"headquarters,omitempty"`
	Culture              Culture             `yaml:"culture" json:"culture"`
	InterviewProcess     []string            `yaml:"interviewProcess" json:"interviewProcess,omitempty"`
	InterviewFocus       []string            `yaml:"interviewFocus" json:"interviewFocus,omitempty"`
	CommonQuestions      map[string][]string `yaml:"commonQuestions" json:"commonQuestions,omitempty"`
	PreparationResources []string            `yaml:"preparationResources" json:"preparationResources,omitempty"`
}

// Culture describes how a company works.
type Culture struct {
	Keywords  []string `yaml:"keywords" json:"keywords,omitempty"`
	Values    []string `yaml:"values" json:"values,omitempty"`
	WorkStyle string   `yaml:"workStyle" json:"workStyle,omitempty"`
}

// CompanySummary is the list view of a company.
type CompanySummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Logo         string `json:"logo,omitempty"`
	Industry     string `json:"industry,omitempty"`
	Size         string `json:"size,omitempty"`
	Headquarters string `json:"headquarters,omitempty"`
}

type companyFile struct {
	Companies []Company `yaml:"companies"`
}

// CompanyStore is a read-only, in-memory company dataset.
type CompanyStore struct {
	byID map[string]Company
	ids  []string
}

// LoadCompanyFile reads the dataset from a YAML file.
func LoadCompanyFile(path string) (*CompanyStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("assist: open company file %q: %w", path, err)
	}
	defer f.Close()

	store, err := LoadCompanies(f)
	if err != nil {
		return nil, fmt.Errorf("assist: parse company file %q: %w", path, err)
	}
	return store, nil
}

// LoadCompanies parses the dataset. Unknown keys and duplicate ids are errors.
func LoadCompanies(r io.Reader) (*CompanyStore, error) {
	var file companyFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("assist: decode company yaml: %w", err)
	}

	store := &CompanyStore{byID: make(map[string]Company, len(file.Companies))}
	for i, c := range file.Companies {
		if c.ID == "" {
			return nil, fmt.Errorf("assist: company #%d has no id", i)
		}
		if _, dup := store.byID[c.ID]; dup {
			return nil, fmt.Errorf("assist: duplicate company id %q", c.ID)
		}
		store.byID[c.ID] = c
		store.ids = append(store.ids, c.ID)
	}
	sort.Strings(store.ids)
	return store, nil
}

// GetByID returns the company or ErrNotFound.
func (s *CompanyStore) GetByID(id string) (Company, error) {
	c, ok := s.byID[id]
	if !ok {
		return Company{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c, nil
}

// List returns every company ordered by id.
func (s *CompanyStore) List() []CompanySummary {
	out := make([]CompanySummary, 0, len(s.ids))
	for _, id := range s.ids {
		c := s.byID[id]
		out = append(out, CompanySummary{
			ID:           c.ID,
			Name:         c.Name,
			Logo:         c.Logo,
			Industry:     c.Industry,
			Size:         c.Size,
			Headquarters: c.Headquarters,
		})
	}
	return out
}

// Questions returns the company's common questions of one kind, or all of
// them for kind "" or "all".
func (s *CompanyStore) Questions(id, kind string) (map[string][]string, error) {
	c, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if kind == "" || kind == "all" {
		return c.CommonQuestions, nil
	}
	qs, ok := c.CommonQuestions[kind]
	if !ok {
		return nil, fmt.Errorf("invalid question type %q", kind)
	}
	return map[string][]string{kind: qs}, nil
}
