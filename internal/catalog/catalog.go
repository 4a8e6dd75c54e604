// Package catalog holds the static sponsor catalog and the clinical taxonomy.
package catalog

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/medqa-sponsor-engine/internal/domain"
)

// companyKeywordMinLength is the shortest keyword kept in a company-level keyword set.
const companyKeywordMinLength = 3

//go:embed catalog.yaml
var embeddedCatalog []byte

type catalogFile struct {
	Companies []domain.Company `yaml:"companies"`
}

// Catalog is the read-only, process-wide set of sponsors and treatment areas.
// It is safe for concurrent use once loaded.
type Catalog struct {
	companies       []domain.Company
	companyKeywords map[string][]string
	areaCount       int
}

// Default loads the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(embeddedCatalog)
}

// LoadFile loads a catalog from a YAML file. An empty path loads the embedded catalog.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a YAML catalog from r.
func Load(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from YAML bytes. It derives every area's keyword set and
// each company's keyword set, and rejects areas without a company or category.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return New(file.Companies)
}

// New builds a catalog from already decoded companies.
func New(companies []domain.Company) (*Catalog, error) {
	c := &Catalog{
		companies:       make([]domain.Company, 0, len(companies)),
		companyKeywords: make(map[string][]string, len(companies)),
	}
	seenAreas := make(map[string]struct{})

	for _, company := range companies {
		if strings.TrimSpace(company.ID) == "" {
			return nil, fmt.Errorf("catalog company %q has no id", company.Name)
		}
		if _, dup := c.companyKeywords[company.ID]; dup {
			return nil, fmt.Errorf("duplicate catalog company %q", company.ID)
		}

		areas := make([]domain.TreatmentArea, 0, len(company.TreatmentAreas))
		var companyKeywords []string
		for i, area := range company.TreatmentAreas {
			if strings.TrimSpace(area.Category) == "" {
				return nil, fmt.Errorf("treatment area %d of %s has no category", i, company.ID)
			}
			if area.ID == "" {
				area.ID = fmt.Sprintf("%s-%s", company.ID, area.Category)
			}
			if _, dup := seenAreas[area.ID]; dup {
				return nil, fmt.Errorf("duplicate treatment area %q", area.ID)
			}
			seenAreas[area.ID] = struct{}{}

			area.CompanyID = company.ID
			area.Keywords = dedupFold(append(append([]string{}, area.Subcategories...), area.FlagshipMedications...))
			areas = append(areas, area)
			companyKeywords = append(companyKeywords, area.Keywords...)
		}
		company.TreatmentAreas = areas

		c.companies = append(c.companies, company)
		c.companyKeywords[company.ID] = companyKeywordSet(companyKeywords)
		c.areaCount += len(areas)
	}
	return c, nil
}

// Companies returns the catalog's companies in catalog order. Callers must not modify them.
func (c *Catalog) Companies() []domain.Company {
	return c.companies
}

// CompanyKeywords returns the company-level keyword set: the lower-cased union of all
// of the company's area keywords, without entries shorter than three characters.
func (c *Catalog) CompanyKeywords(companyID string) []string {
	return c.companyKeywords[companyID]
}

// Company returns the company with the given id.
func (c *Catalog) Company(id string) (domain.Company, bool) {
	for _, company := range c.companies {
		if company.ID == id {
			return company, true
		}
	}
	return domain.Company{}, false
}

// AreaCount is the number of treatment areas across all companies.
func (c *Catalog) AreaCount() int {
	return c.areaCount
}

// dedupFold removes blank and case-insensitive duplicate entries, keeping first spellings.
func dedupFold(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

func companyKeywordSet(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if len(kw) < companyKeywordMinLength {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}
