package domain

import (
	"time"
)

// Company is a pharmaceutical sponsor in the static catalog.
type Company struct {
	ID             string          `json:"id" yaml:"id"`
	Name           string          `json:"name" yaml:"name"`
	TreatmentAreas []TreatmentArea `json:"treatmentAreas" yaml:"treatment_areas"`
}

// TreatmentArea is a (sponsor, clinical category) pairing. It belongs to exactly
// one company and is read-only at request time.
type TreatmentArea struct {
	ID                  string   `json:"id" yaml:"id"`
	CompanyID           string   `json:"companyId" yaml:"-"`
	Category            string   `json:"category" yaml:"category"`
	Subcategories       []string `json:"subcategories" yaml:"subcategories"`
	FlagshipMedications []string `json:"flagship_medications" yaml:"flagship_medications"`
	// Keywords is derived at load time: the deduplicated union of
	// Subcategories and FlagshipMedications.
	Keywords []string `json:"keywords" yaml:"-"`
	// Priority scales the match score by (1 + Priority/20).
	Priority int `json:"priority" yaml:"priority"`
}

// CompanyMatch is a (company, treatment area) pair that cleared the minimum score.
// It lives for a single request.
type CompanyMatch struct {
	Company            CompanyRef    `json:"company"`
	TreatmentArea      TreatmentArea `json:"treatmentArea"`
	Score              int           `json:"score"`
	CategoryMatch      bool          `json:"categoryMatch"`
	SubcategoryMatch   bool          `json:"subcategoryMatch"`
	MatchedKeywords    []string      `json:"matchedKeywords"`
	MatchedMedications []string      `json:"matchedMedications"`
}

// CompanyRef identifies the sponsor of a match without carrying its whole catalog entry.
type CompanyRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PharmaMappingResult is the ranked output of the treatment-area mapper.
type PharmaMappingResult struct {
	Classification *Classification `json:"classification"`
	Matches        []CompanyMatch  `json:"matches"`
	TopMatch       *CompanyMatch   `json:"topMatch,omitempty"`
	TotalMatches   int             `json:"totalMatches"`
}

// ConfidenceFactors are the six independent signals combined into a match confidence.
// Every value lies in [0,1].
type ConfidenceFactors struct {
	CategoryMatchScore       float64 `json:"categoryMatchScore"`
	SemanticSimilarityScore  float64 `json:"semanticSimilarityScore"`
	QuestionSpecificityScore float64 `json:"questionSpecificityScore"`
	ClinicalContextScore     float64 `json:"clinicalContextScore"`
	KeywordRelevanceScore    float64 `json:"keywordRelevanceScore"`
	MedicationMatchScore     float64 `json:"medicationMatchScore"`
}

// EnhancedCompanyMatch is a CompanyMatch with calibrated confidence.
// ShouldShowAd holds exactly when ConfidenceScore >= the threshold in effect.
type EnhancedCompanyMatch struct {
	CompanyMatch
	ConfidenceScore   float64           `json:"confidenceScore"`
	ConfidenceFactors ConfidenceFactors `json:"confidenceFactors"`
	ShouldShowAd      bool              `json:"shouldShowAd"`
}

// EnhancedMappingResult is the confidence-scored mapping result.
type EnhancedMappingResult struct {
	Classification    *Classification        `json:"classification"`
	Matches           []EnhancedCompanyMatch `json:"matches"`
	TopMatch          *EnhancedCompanyMatch  `json:"topMatch,omitempty"`
	TotalMatches      int                    `json:"totalMatches"`
	OverallConfidence float64                `json:"overallConfidence"`
	AdRecommended     bool                   `json:"adRecommended"`
	Threshold         float64                `json:"threshold"`
	Debug             *ConfidenceDebug       `json:"debug,omitempty"`
}

// ConfidenceDebug echoes intermediate embeddings for inspection.
type ConfidenceDebug struct {
	QuestionEmbedding []float32            `json:"questionEmbedding,omitempty"`
	AreaEmbeddings    map[string][]float32 `json:"areaEmbeddings,omitempty"`
	SemanticEnabled   bool                 `json:"semanticEnabled"`
}

// ContextualRelevanceResult scores the question itself, independent of any sponsor match.
type ContextualRelevanceResult struct {
	QuestionIntent         QuestionIntent            `json:"questionIntent"`
	ClinicalContext        ClinicalContext           `json:"clinicalContext"`
	ComplexityLevel        ComplexityLevel           `json:"complexityLevel"`
	Specificity            float64                   `json:"specificity"`
	PracticalityScore      float64                   `json:"practicalityScore"`
	UrgencyScore           float64                   `json:"urgencyScore"`
	ContentRelevanceScores map[ContentFormat]float64 `json:"contentRelevanceScores"`
	// EstimatedResponseTime is in seconds; nil when the analyzer did not provide one.
	EstimatedResponseTime *float64 `json:"estimatedResponseTime,omitempty"`
	KeyContextualFactors  []string `json:"keyContextualFactors"`
	TargetSpecialties     []string `json:"targetSpecialties"`
}

// ExperienceConfig is one candidate (or the selected) experience configuration.
type ExperienceConfig struct {
	Type          ExperienceType `json:"type"`
	Priority      int            `json:"priority"`
	MinWaitTimeMs *int64         `json:"minWaitTimeMs,omitempty"`
	MaxWaitTimeMs *int64         `json:"maxWaitTimeMs,omitempty"`
	Settings      map[string]any `json:"settings"`
}

// ScoredExperience is a candidate with its adjusted score.
type ScoredExperience struct {
	Config ExperienceConfig `json:"config"`
	Score  int              `json:"score"`
}

// ExperienceSelection is the scheduler's decision for one request.
type ExperienceSelection struct {
	Selected     ExperienceConfig   `json:"selected"`
	FallbackType *ExperienceType    `json:"fallbackType,omitempty"`
	Reasoning    []string           `json:"reasoning"`
	Candidates   []ScoredExperience `json:"candidates"`
}

// DeviceCapabilities describe the client rendering the experience.
type DeviceCapabilities struct {
	IsMobile          bool    `json:"isMobile"`
	IsHighPerformance bool    `json:"isHighPerformance"`
	DeviceMemoryGB    float64 `json:"deviceMemoryGb,omitempty"`
	LogicalCores      int     `json:"logicalCores,omitempty"`
}

// TimeEstimationResult predicts total response latency. MinEstimate <= InitialEstimate <= MaxEstimate.
type TimeEstimationResult struct {
	InitialEstimate float64        `json:"initialEstimate"`
	MinEstimate     float64        `json:"minEstimate"`
	MaxEstimate     float64        `json:"maxEstimate"`
	ConfidenceLevel float64        `json:"confidenceLevel"`
	ComplexityScore float64        `json:"complexityScore"`
	DetailedFactors map[string]any `json:"detailedFactors"`
}

// ProgressEvent is emitted on a fixed cadence while a response is in flight.
type ProgressEvent struct {
	SessionID              string        `json:"sessionId"`
	Progress               float64       `json:"progress"`
	EstimatedTimeRemaining float64       `json:"estimatedTimeRemaining"`
	Stage                  ProgressStage `json:"stage"`
	// Done marks the terminal event of a session.
	Done      bool      `json:"done,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StreamEventType names the events of the answer stream.
type StreamEventType string

const (
	EventClassification StreamEventType = "classification"
	EventTimeEstimate   StreamEventType = "timeEstimate"
	EventExperience     StreamEventType = "experience"
	EventSponsored      StreamEventType = "sponsoredContent"
	EventProgress       StreamEventType = "progress"
	EventChunk          StreamEventType = "chunk"
	EventComplete       StreamEventType = "complete"
	EventError          StreamEventType = "error"
)

// StreamEvent is one newline-delimited JSON event of the answer stream.
type StreamEvent struct {
	Type StreamEventType `json:"type"`
	Data any             `json:"data"`
}
