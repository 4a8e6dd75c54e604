package service

import (
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/medqa-sponsor-engine/internal/catalog"
	"github.com/medqa-sponsor-engine/internal/domain"
)

// Score contributions of the treatment-area mapper.
const (
	categoryMatchPoints       = 50
	subcategoryMatchPoints    = 30
	taxonomicMatchPoints      = 20
	areaKeywordPoints         = 5
	companyKeywordPoints      = 2
	medicationMatchPoints     = 15
	priorityMultiplierDivisor = 20.0
)

// MapOptions tunes a single mapping call.
type MapOptions struct {
	MinScore                int
	MaxResults              int
	RequireSubcategoryMatch bool
	// MinKeywordLength excludes shorter classification keywords and medications from
	// substring matching against area keywords and flagship medications. 0 disables it.
	MinKeywordLength int
}

// DefaultMapOptions returns the mapper defaults.
func DefaultMapOptions() MapOptions {
	return MapOptions{MinScore: 20, MaxResults: 10}
}

// MapOptionsFromConfig converts mapper configuration into options.
func MapOptionsFromConfig(cfg domain.MapperConfig) MapOptions {
	return MapOptions{
		MinScore:                cfg.MinScore,
		MaxResults:              cfg.MaxResults,
		RequireSubcategoryMatch: cfg.RequireSubcategoryMatch,
		MinKeywordLength:        cfg.MinKeywordLength,
	}
}

// TreatmentAreaMapper scores a classification against the sponsor catalog.
// It holds no per-request state and is safe for concurrent use.
type TreatmentAreaMapper struct {
	catalog *catalog.Catalog
	logger  *logrus.Logger
}

// NewTreatmentAreaMapper creates a new treatment-area mapper
func NewTreatmentAreaMapper(c *catalog.Catalog, logger *logrus.Logger) *TreatmentAreaMapper {
	return &TreatmentAreaMapper{catalog: c, logger: logger}
}

// MapToCompanies returns the catalog's (company, treatment area) pairs ranked by
// relevance to classification. Absence of matches is an empty result, not an error.
func (m *TreatmentAreaMapper) MapToCompanies(classification *domain.Classification, opts MapOptions) *domain.PharmaMappingResult {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMapOptions().MaxResults
	}

	result := &domain.PharmaMappingResult{
		Classification: classification,
		Matches:        []domain.CompanyMatch{},
	}
	if classification == nil {
		return result
	}

	for _, company := range m.catalog.Companies() {
		companyKeywords := m.catalog.CompanyKeywords(company.ID)
		for _, area := range company.TreatmentAreas {
			match, ok := scoreArea(classification, company, area, companyKeywords, opts)
			if !ok {
				continue
			}
			result.Matches = append(result.Matches, match)
		}
	}

	sort.SliceStable(result.Matches, func(i, j int) bool {
		return result.Matches[i].Score > result.Matches[j].Score
	})

	result.TotalMatches = len(result.Matches)
	if len(result.Matches) > opts.MaxResults {
		result.Matches = result.Matches[:opts.MaxResults]
	}
	if len(result.Matches) > 0 {
		top := result.Matches[0]
		result.TopMatch = &top
	}

	m.logger.WithFields(logrus.Fields{
		"primary_category": classification.PrimaryCategory.ID,
		"subcategory":      classification.Subcategory.ID,
		"total_matches":    result.TotalMatches,
		"returned":         len(result.Matches),
	}).Debug("Mapped classification to treatment areas")

	return result
}

func scoreArea(c *domain.Classification, company domain.Company, area domain.TreatmentArea, companyKeywords []string, opts MapOptions) (domain.CompanyMatch, bool) {
	match := domain.CompanyMatch{
		Company:            domain.CompanyRef{ID: company.ID, Name: company.Name},
		TreatmentArea:      area,
		MatchedKeywords:    []string{},
		MatchedMedications: []string{},
	}
	score := 0

	if strings.EqualFold(area.Category, c.PrimaryCategory.ID) {
		score += categoryMatchPoints
		match.CategoryMatch = true
		if containsFold(area.Subcategories, c.Subcategory.ID) {
			score += subcategoryMatchPoints
			match.SubcategoryMatch = true
		}
	} else if catalog.CategoryIncludesSubcategory(area.Category, c.Subcategory.ID) {
		score += taxonomicMatchPoints
		match.CategoryMatch = true
	}

	if opts.RequireSubcategoryMatch && !match.SubcategoryMatch {
		return domain.CompanyMatch{}, false
	}

	matchedKeywords := newFoldSet()
	for _, keyword := range c.Keywords {
		kw := strings.ToLower(strings.TrimSpace(keyword))
		if kw == "" {
			continue
		}
		if len(kw) >= opts.MinKeywordLength {
			for _, areaKeyword := range area.Keywords {
				if substringEitherWay(kw, strings.ToLower(areaKeyword)) {
					score += areaKeywordPoints
					matchedKeywords.add(keyword)
				}
			}
		}
		for _, companyKeyword := range companyKeywords {
			if substringEitherWay(kw, companyKeyword) {
				score += companyKeywordPoints
			}
		}
	}

	matchedMedications := newFoldSet()
	for _, medication := range c.RelevantMedications {
		med := strings.ToLower(strings.TrimSpace(medication))
		if med == "" || len(med) < opts.MinKeywordLength {
			continue
		}
		for _, flagship := range area.FlagshipMedications {
			f := strings.ToLower(flagship)
			if med == f || substringEitherWay(med, f) {
				score += medicationMatchPoints
				matchedMedications.add(medication)
			}
		}
	}

	match.Score = int(math.Round(float64(score) * (1 + float64(area.Priority)/priorityMultiplierDivisor)))
	match.MatchedKeywords = matchedKeywords.values
	match.MatchedMedications = matchedMedications.values

	if match.Score < opts.MinScore {
		return domain.CompanyMatch{}, false
	}
	return match, true
}

func substringEitherWay(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}

// foldSet keeps first-seen spellings of case-insensitively distinct strings in order.
type foldSet struct {
	seen   map[string]struct{}
	values []string
}

func newFoldSet() *foldSet {
	return &foldSet{seen: make(map[string]struct{}), values: []string{}}
}

func (s *foldSet) add(v string) {
	key := strings.ToLower(v)
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}
	s.values = append(s.values, v)
}
