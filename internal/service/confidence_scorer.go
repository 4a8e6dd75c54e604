package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/medqa-sponsor-engine/internal/domain"
	"github.com/medqa-sponsor-engine/pkg/external"
)

// Factor weights of the overall match confidence.
const (
	weightCategory        = 0.25
	weightSemantic        = 0.20
	weightSpecificity     = 0.15
	weightClinicalContext = 0.20
	weightKeyword         = 0.10
	weightMedication      = 0.10

	// neutralSemanticScore is used whenever embeddings are disabled or unavailable.
	neutralSemanticScore = 0.5
	// DefaultConfidenceThreshold is the minimum confidence for showing sponsored content.
	DefaultConfidenceThreshold = 0.65
)

var (
	specificityIndicators = []string{
		"dosage", "dose", "protocol", "regimen", "mechanism", "specific", "guideline",
		"contraindication", "interaction", "mg", "stage", "metastatic", "trial", "biomarker",
	}
	generalityIndicators = []string{
		"general", "overview", "basics", "introduction", "common", "simple", "summary", "explain",
	}
	clinicalContextIndicators = []string{
		"treatment", "therapy", "diagnosis", "prognosis", "management", "clinical", "patient",
		"dose", "dosage", "efficacy", "trial", "guideline", "protocol", "indication",
		"contraindication", "adverse", "regimen",
	}
)

// ConfidenceOptions override the scorer configuration for one call. Nil fields keep
// the configured value.
type ConfidenceOptions struct {
	Threshold        *float64
	SemanticAnalysis *bool
	Debug            *bool
}

// ConfidenceScorer calibrates mapper matches into a show/hide decision.
type ConfidenceScorer struct {
	embedder external.Embedder
	config   domain.ConfidenceConfig
	logger   *logrus.Logger
}

// NewConfidenceScorer creates a new confidence scorer. A nil embedder is replaced
// with NoopEmbedder.
func NewConfidenceScorer(embedder external.Embedder, config domain.ConfidenceConfig, logger *logrus.Logger) *ConfidenceScorer {
	if embedder == nil {
		embedder = external.NoopEmbedder{}
	}
	return &ConfidenceScorer{embedder: embedder, config: config, logger: logger}
}

// EnhanceWithConfidence scores every match of mapping. Embedding failures degrade
// to a neutral similarity; only a vector dimension mismatch is returned as an error.
func (s *ConfidenceScorer) EnhanceWithConfidence(ctx context.Context, mapping *domain.PharmaMappingResult, question string, opts ConfidenceOptions) (*domain.EnhancedMappingResult, error) {
	threshold := s.config.Threshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}
	semantic := s.config.SemanticAnalysisEnabled
	if opts.SemanticAnalysis != nil {
		semantic = *opts.SemanticAnalysis
	}
	debug := s.config.Debug
	if opts.Debug != nil {
		debug = *opts.Debug
	}

	result := &domain.EnhancedMappingResult{
		Matches:   []domain.EnhancedCompanyMatch{},
		Threshold: threshold,
	}
	if mapping == nil {
		return result, nil
	}
	result.Classification = mapping.Classification
	result.TotalMatches = mapping.TotalMatches

	var embeddings *embeddingSet
	if semantic && len(mapping.Matches) > 0 {
		embeddings = s.embedAll(ctx, question, mapping.Matches)
	}

	classification := mapping.Classification
	if classification == nil {
		classification = domain.UnknownClassification()
	}
	questionTokens := tokenize(question)
	wordCount := len(strings.Fields(question))

	for _, match := range mapping.Matches {
		semanticScore := neutralSemanticScore
		if embeddings != nil {
			score, err := embeddings.similarity(match.TreatmentArea.ID)
			if err != nil {
				return nil, err
			}
			semanticScore = score
		}

		factors := domain.ConfidenceFactors{
			CategoryMatchScore:       categoryMatchScore(match, classification),
			SemanticSimilarityScore:  domain.Clamp01(semanticScore),
			QuestionSpecificityScore: questionSpecificityScore(questionTokens, wordCount, classification),
			ClinicalContextScore:     clinicalContextScore(questionTokens, classification),
			KeywordRelevanceScore:    keywordRelevanceScore(match, classification),
			MedicationMatchScore:     medicationMatchScore(match, classification),
		}
		confidence := combineFactors(factors)

		result.Matches = append(result.Matches, domain.EnhancedCompanyMatch{
			CompanyMatch:      match,
			ConfidenceScore:   confidence,
			ConfidenceFactors: factors,
			ShouldShowAd:      confidence >= threshold,
		})
	}

	sort.SliceStable(result.Matches, func(i, j int) bool {
		return result.Matches[i].ConfidenceScore > result.Matches[j].ConfidenceScore
	})

	if len(result.Matches) > 0 {
		top := result.Matches[0]
		result.TopMatch = &top
		result.OverallConfidence = top.ConfidenceScore
	}
	for _, m := range result.Matches {
		if m.ShouldShowAd {
			result.AdRecommended = true
			break
		}
	}

	if debug {
		result.Debug = &domain.ConfidenceDebug{SemanticEnabled: semantic}
		if embeddings != nil {
			result.Debug.QuestionEmbedding = embeddings.question
			result.Debug.AreaEmbeddings = embeddings.areas
		}
	}

	s.logger.WithFields(logrus.Fields{
		"matches":            len(result.Matches),
		"overall_confidence": result.OverallConfidence,
		"ad_recommended":     result.AdRecommended,
		"threshold":          threshold,
		"semantic_enabled":   semantic,
	}).Debug("Computed match confidence")

	return result, nil
}

// ShouldShowAd reports whether sponsored content should be shown for result. Both
// the per-match recommendation and the overall confidence must clear the threshold;
// a nil threshold uses the one the result was scored with.
func ShouldShowAd(result *domain.EnhancedMappingResult, threshold *float64) bool {
	if result == nil {
		return false
	}
	t := result.Threshold
	if threshold != nil {
		t = *threshold
	}
	return result.AdRecommended && result.OverallConfidence >= t
}

type embeddingSet struct {
	question []float32
	areas    map[string][]float32
}

// similarity returns the clamped cosine similarity of an area to the question, or
// the neutral score when either embedding is missing.
func (e *embeddingSet) similarity(areaID string) (float64, error) {
	area, ok := e.areas[areaID]
	if e.question == nil || !ok {
		return neutralSemanticScore, nil
	}
	sim, err := CosineSimilarity(e.question, area)
	if err != nil {
		return 0, fmt.Errorf("semantic similarity for %s: %w", areaID, err)
	}
	return domain.Clamp01(sim), nil
}

// embedAll embeds the question and every unique treatment area concurrently.
// Failed embeddings are left out of the set.
func (s *ConfidenceScorer) embedAll(ctx context.Context, question string, matches []domain.CompanyMatch) *embeddingSet {
	set := &embeddingSet{areas: make(map[string][]float32)}

	areas := make(map[string]domain.TreatmentArea)
	for _, m := range matches {
		areas[m.TreatmentArea.ID] = m.TreatmentArea
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	embed := func(text string, store func([]float32)) {
		defer wg.Done()
		vector, err := s.embedder.Embed(ctx, text)
		if err != nil {
			if !errors.Is(err, domain.ErrServiceUnavailable) {
				s.logger.WithError(err).Warn("Embedding failed, using neutral similarity")
			}
			return
		}
		mu.Lock()
		store(vector)
		mu.Unlock()
	}

	wg.Add(1 + len(areas))
	go embed(question, func(v []float32) { set.question = v })
	for id, area := range areas {
		go embed(areaText(area), func(v []float32) { set.areas[id] = v })
	}
	wg.Wait()

	return set
}

// areaText is the text embedded for a treatment area.
func areaText(area domain.TreatmentArea) string {
	parts := []string{area.Category}
	parts = append(parts, area.Subcategories...)
	parts = append(parts, area.Keywords...)
	parts = append(parts, area.FlagshipMedications...)
	return strings.ReplaceAll(strings.Join(parts, " "), "_", " ")
}

func categoryMatchScore(match domain.CompanyMatch, c *domain.Classification) float64 {
	switch {
	case match.SubcategoryMatch:
		return domain.Clamp01(0.8 + 0.2*c.Subcategory.Confidence)
	case match.CategoryMatch:
		return domain.Clamp01(0.5 + 0.3*c.PrimaryCategory.Confidence)
	default:
		return 0.3
	}
}

func questionSpecificityScore(tokens map[string]struct{}, wordCount int, c *domain.Classification) float64 {
	score := 0.5
	score += 0.1 * float64(countIndicators(tokens, specificityIndicators))
	score -= 0.1 * float64(countIndicators(tokens, generalityIndicators))
	if wordCount > 20 {
		score += 0.1
	} else if wordCount < 5 {
		score -= 0.1
	}
	score += 0.2 * (c.PrimaryCategory.Confidence - 0.5)
	score += 0.2 * (c.Subcategory.Confidence - 0.5)
	return domain.Clamp01(score)
}

func clinicalContextScore(tokens map[string]struct{}, c *domain.Classification) float64 {
	score := 0.1 * float64(countIndicators(tokens, clinicalContextIndicators))
	if c.HasMedications() {
		score += 0.3
	}
	return domain.Clamp01(score)
}

func keywordRelevanceScore(match domain.CompanyMatch, c *domain.Classification) float64 {
	if len(match.MatchedKeywords) == 0 || len(c.Keywords) == 0 {
		return 0.2
	}
	ratio := float64(len(match.MatchedKeywords)) / float64(len(c.Keywords))
	return domain.Clamp01(ratio * 1.5)
}

func medicationMatchScore(match domain.CompanyMatch, c *domain.Classification) float64 {
	if !c.HasMedications() {
		return 0.5
	}
	if len(match.MatchedMedications) == 0 {
		return 0.1
	}
	ratio := float64(len(match.MatchedMedications)) / float64(len(c.RelevantMedications))
	return domain.Clamp01(ratio * 1.5)
}

func combineFactors(f domain.ConfidenceFactors) float64 {
	total := weightCategory + weightSemantic + weightSpecificity + weightClinicalContext + weightKeyword + weightMedication
	sum := f.CategoryMatchScore*weightCategory +
		f.SemanticSimilarityScore*weightSemantic +
		f.QuestionSpecificityScore*weightSpecificity +
		f.ClinicalContextScore*weightClinicalContext +
		f.KeywordRelevanceScore*weightKeyword +
		f.MedicationMatchScore*weightMedication
	return domain.Clamp01(sum / total)
}

// tokenize splits text into a set of lower-cased alphanumeric words.
func tokenize(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// countIndicators counts indicator words present in tokens, accepting simple plurals.
func countIndicators(tokens map[string]struct{}, indicators []string) int {
	n := 0
	for _, word := range indicators {
		if hasWord(tokens, word) {
			n++
		}
	}
	return n
}

func hasWord(tokens map[string]struct{}, word string) bool {
	for _, form := range []string{word, word + "s", word + "es"} {
		if _, ok := tokens[form]; ok {
			return true
		}
	}
	return false
}
