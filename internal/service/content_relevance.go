package service

import (
	"sort"
	"strings"

	"github.com/medqa-sponsor-engine/internal/domain"
)

// neutralFormatScore stands in for a format the analyzer did not score.
const neutralFormatScore = 50.0

type formatBoost struct {
	format domain.ContentFormat
	factor float64
}

// intentBoosts lists the multiplicative boosts each question intent gives to formats.
func intentBoosts(intent domain.QuestionIntent) []formatBoost {
	switch intent {
	case domain.IntentTreatmentOptions:
		return []formatBoost{
			{domain.FormatClinicalTrial, 1.2},
			{domain.FormatDecisionTree, 1.15},
			{domain.FormatComparisonTable, 1.1},
			{domain.FormatMicrosimulation, 1.1},
		}
	case domain.IntentMechanismOfAction:
		return []formatBoost{{domain.FormatKnowledgeGraph, 1.2}, {domain.FormatMicrosimulation, 1.1}}
	case domain.IntentDiagnosis:
		return []formatBoost{{domain.FormatDecisionTree, 1.2}, {domain.FormatEvidenceCard, 1.1}}
	case domain.IntentSideEffects:
		return []formatBoost{{domain.FormatEvidenceCard, 1.15}, {domain.FormatPatientEducation, 1.1}}
	case domain.IntentDrugInteractions:
		return []formatBoost{{domain.FormatKnowledgeGraph, 1.15}, {domain.FormatComparisonTable, 1.15}}
	case domain.IntentDosing:
		return []formatBoost{{domain.FormatDecisionTree, 1.1}, {domain.FormatTextSummary, 1.1}}
	case domain.IntentPrognosis:
		return []formatBoost{{domain.FormatEvidenceCard, 1.1}, {domain.FormatClinicalTrial, 1.1}}
	case domain.IntentPrevention:
		return []formatBoost{{domain.FormatPatientEducation, 1.2}}
	case domain.IntentClinicalEvidence:
		return []formatBoost{{domain.FormatClinicalTrial, 1.2}, {domain.FormatEvidenceCard, 1.15}}
	case domain.IntentGeneralInformation:
		return []formatBoost{{domain.FormatTextSummary, 1.15}, {domain.FormatPatientEducation, 1.1}}
	default:
		return nil
	}
}

// complexityBoosts lists the multiplicative boosts each complexity level gives to formats.
func complexityBoosts(level domain.ComplexityLevel) []formatBoost {
	switch level {
	case domain.ComplexityExpert:
		return []formatBoost{
			{domain.FormatMicrosimulation, 1.2},
			{domain.FormatClinicalTrial, 1.2},
			{domain.FormatKnowledgeGraph, 1.1},
		}
	case domain.ComplexityAdvanced:
		return []formatBoost{{domain.FormatKnowledgeGraph, 1.1}, {domain.FormatClinicalTrial, 1.1}}
	case domain.ComplexityIntermediate:
		return []formatBoost{{domain.FormatEvidenceCard, 1.05}}
	case domain.ComplexityBasic:
		return []formatBoost{{domain.FormatPatientEducation, 1.2}, {domain.FormatTextSummary, 1.1}}
	default:
		return nil
	}
}

// categoryBoosts maps category terms to the format they favour.
var categoryBoosts = []struct {
	term  string
	boost formatBoost
}{
	{"oncology", formatBoost{domain.FormatClinicalTrial, 1.1}},
	{"cancer", formatBoost{domain.FormatClinicalTrial, 1.1}},
	{"cardiology", formatBoost{domain.FormatMicrosimulation, 1.05}},
	{"neurology", formatBoost{domain.FormatKnowledgeGraph, 1.05}},
	{"psychiatry", formatBoost{domain.FormatPatientEducation, 1.05}},
}

// CalculateContentRelevance returns the relevance of format for the question in [0,100]:
// the analyzer's base score with intent, complexity and category boosts applied.
func CalculateContentRelevance(result *domain.ContextualRelevanceResult, categories []string, format domain.ContentFormat) float64 {
	if result == nil {
		return 0
	}
	score, ok := result.ContentRelevanceScores[format]
	if !ok {
		score = neutralFormatScore
	}

	for _, b := range intentBoosts(result.QuestionIntent) {
		if b.format == format {
			score *= b.factor
		}
	}
	for _, b := range complexityBoosts(result.ComplexityLevel) {
		if b.format == format {
			score *= b.factor
		}
	}

	joined := strings.ToLower(strings.Join(categories, " "))
	applied := make(map[domain.ContentFormat]bool)
	for _, cb := range categoryBoosts {
		if cb.boost.format == format && !applied[format] && strings.Contains(joined, cb.term) {
			score *= cb.boost.factor
			applied[format] = true
		}
	}

	return domain.Clamp100(score)
}

// FormatScore is a content format with its boosted relevance.
type FormatScore struct {
	Format domain.ContentFormat `json:"format"`
	Score  float64              `json:"score"`
}

// ContentAdapter turns contextual relevance into presentation decisions.
type ContentAdapter struct{}

// RankFormats returns every content format ordered by boosted relevance, highest first.
func (ContentAdapter) RankFormats(result *domain.ContextualRelevanceResult, categories []string) []FormatScore {
	scores := make([]FormatScore, 0, len(domain.AllContentFormats))
	for _, format := range domain.AllContentFormats {
		scores = append(scores, FormatScore{Format: format, Score: CalculateContentRelevance(result, categories, format)})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
	return scores
}

// DetermineContentLength picks the answer length. The intent override is applied
// first; otherwise the length follows the complexity level.
func (ContentAdapter) DetermineContentLength(result *domain.ContextualRelevanceResult) domain.ContentLength {
	if result == nil {
		return domain.LengthStandard
	}

	base := lengthForComplexity(result.ComplexityLevel)

	switch result.QuestionIntent {
	case domain.IntentDosing, domain.IntentDrugInteractions:
		return domain.LengthBrief
	case domain.IntentTreatmentOptions, domain.IntentClinicalEvidence:
		if base == domain.LengthComprehensive {
			return base
		}
		return domain.LengthDetailed
	case domain.IntentDiagnosis, domain.IntentMechanismOfAction, domain.IntentSideEffects,
		domain.IntentPrognosis, domain.IntentPrevention, domain.IntentGeneralInformation:
		return base
	default:
		return base
	}
}

func lengthForComplexity(level domain.ComplexityLevel) domain.ContentLength {
	switch level {
	case domain.ComplexityBasic:
		return domain.LengthBrief
	case domain.ComplexityIntermediate:
		return domain.LengthStandard
	case domain.ComplexityAdvanced:
		return domain.LengthDetailed
	case domain.ComplexityExpert:
		return domain.LengthComprehensive
	default:
		return domain.LengthStandard
	}
}
