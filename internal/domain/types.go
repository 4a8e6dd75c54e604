// Package domain contains the core entities of the sponsored-content decision engine:
// question classifications, the sponsor catalog model, confidence-scored matches,
// contextual relevance, experience configuration and time/progress estimates.
//
// All types here are plain serializable data. Behavior lives in internal/service.
package domain

import (
	"errors"
	"fmt"
)

// ExperienceType is one of the mutually exclusive interactive presentations
// rendered while an answer streams in.
type ExperienceType string

const (
	MICROSIMULATION ExperienceType = "MICROSIMULATION"
	KNOWLEDGE_GRAPH ExperienceType = "KNOWLEDGE_GRAPH"
	EVIDENCE_CARD   ExperienceType = "EVIDENCE_CARD"
	STANDARD        ExperienceType = "STANDARD"
)

// AllExperienceTypes lists experience types in candidate generation order.
var AllExperienceTypes = []ExperienceType{MICROSIMULATION, KNOWLEDGE_GRAPH, EVIDENCE_CARD, STANDARD}

// IsValid reports whether the experience type is one of the known values.
func (e ExperienceType) IsValid() bool {
	switch e {
	case MICROSIMULATION, KNOWLEDGE_GRAPH, EVIDENCE_CARD, STANDARD:
		return true
	default:
		return false
	}
}

// BasePriority returns the fixed starting priority used by the experience selector.
func (e ExperienceType) BasePriority() int {
	switch e {
	case KNOWLEDGE_GRAPH:
		return 9
	case MICROSIMULATION:
		return 8
	case EVIDENCE_CARD:
		return 7
	case STANDARD:
		return 5
	default:
		return 0
	}
}

// IsInteractive reports whether the experience needs a capable device to render smoothly.
func (e ExperienceType) IsInteractive() bool {
	switch e {
	case MICROSIMULATION, KNOWLEDGE_GRAPH:
		return true
	case EVIDENCE_CARD, STANDARD:
		return false
	default:
		return false
	}
}

func (e ExperienceType) String() string {
	return string(e)
}

// QuestionIntent is what the asker is trying to achieve.
type QuestionIntent string

const (
	IntentTreatmentOptions   QuestionIntent = "treatment_options"
	IntentDiagnosis          QuestionIntent = "diagnosis"
	IntentMechanismOfAction  QuestionIntent = "mechanism_of_action"
	IntentSideEffects        QuestionIntent = "side_effects"
	IntentDrugInteractions   QuestionIntent = "drug_interactions"
	IntentDosing             QuestionIntent = "dosing"
	IntentPrognosis          QuestionIntent = "prognosis"
	IntentPrevention         QuestionIntent = "prevention"
	IntentClinicalEvidence   QuestionIntent = "clinical_evidence"
	IntentGeneralInformation QuestionIntent = "general_information"
)

// AllQuestionIntents lists every intent, in prompt order.
var AllQuestionIntents = []QuestionIntent{
	IntentTreatmentOptions, IntentDiagnosis, IntentMechanismOfAction, IntentSideEffects,
	IntentDrugInteractions, IntentDosing, IntentPrognosis, IntentPrevention,
	IntentClinicalEvidence, IntentGeneralInformation,
}

// IsValid reports whether the intent is known.
func (q QuestionIntent) IsValid() bool {
	switch q {
	case IntentTreatmentOptions, IntentDiagnosis, IntentMechanismOfAction, IntentSideEffects,
		IntentDrugInteractions, IntentDosing, IntentPrognosis, IntentPrevention,
		IntentClinicalEvidence, IntentGeneralInformation:
		return true
	default:
		return false
	}
}

// ClinicalContext is the care setting the question belongs to.
type ClinicalContext string

const (
	ContextAcuteCare         ClinicalContext = "acute_care"
	ContextChronicManagement ClinicalContext = "chronic_management"
	ContextPreventiveCare    ClinicalContext = "preventive_care"
	ContextDiagnosticWorkup  ClinicalContext = "diagnostic_workup"
	ContextPalliativeCare    ClinicalContext = "palliative_care"
	ContextResearch          ClinicalContext = "research"
	ContextPatientEducation  ClinicalContext = "patient_education"
)

// AllClinicalContexts lists every clinical context, in prompt order.
var AllClinicalContexts = []ClinicalContext{
	ContextAcuteCare, ContextChronicManagement, ContextPreventiveCare, ContextDiagnosticWorkup,
	ContextPalliativeCare, ContextResearch, ContextPatientEducation,
}

// IsValid reports whether the clinical context is known.
func (c ClinicalContext) IsValid() bool {
	switch c {
	case ContextAcuteCare, ContextChronicManagement, ContextPreventiveCare, ContextDiagnosticWorkup,
		ContextPalliativeCare, ContextResearch, ContextPatientEducation:
		return true
	default:
		return false
	}
}

// ComplexityLevel is ordered: basic < intermediate < advanced < expert.
type ComplexityLevel string

const (
	ComplexityBasic        ComplexityLevel = "basic"
	ComplexityIntermediate ComplexityLevel = "intermediate"
	ComplexityAdvanced     ComplexityLevel = "advanced"
	ComplexityExpert       ComplexityLevel = "expert"
)

// AllComplexityLevels lists levels in ascending order.
var AllComplexityLevels = []ComplexityLevel{ComplexityBasic, ComplexityIntermediate, ComplexityAdvanced, ComplexityExpert}

// Rank returns the ordinal of the level (basic=1 .. expert=4), 0 when unknown.
func (c ComplexityLevel) Rank() int {
	switch c {
	case ComplexityBasic:
		return 1
	case ComplexityIntermediate:
		return 2
	case ComplexityAdvanced:
		return 3
	case ComplexityExpert:
		return 4
	default:
		return 0
	}
}

// IsValid reports whether the complexity level is known.
func (c ComplexityLevel) IsValid() bool {
	return c.Rank() > 0
}

// ContentFormat is a presentation format whose relevance is scored per question.
type ContentFormat string

const (
	FormatTextSummary      ContentFormat = "text_summary"
	FormatKnowledgeGraph   ContentFormat = "knowledge_graph"
	FormatMicrosimulation  ContentFormat = "microsimulation"
	FormatEvidenceCard     ContentFormat = "evidence_card"
	FormatClinicalTrial    ContentFormat = "clinical_trial"
	FormatDecisionTree     ContentFormat = "decision_tree"
	FormatComparisonTable  ContentFormat = "comparison_table"
	FormatPatientEducation ContentFormat = "patient_education"
)

// AllContentFormats lists every content format, in prompt order.
var AllContentFormats = []ContentFormat{
	FormatTextSummary, FormatKnowledgeGraph, FormatMicrosimulation, FormatEvidenceCard,
	FormatClinicalTrial, FormatDecisionTree, FormatComparisonTable, FormatPatientEducation,
}

// IsValid reports whether the content format is known.
func (f ContentFormat) IsValid() bool {
	switch f {
	case FormatTextSummary, FormatKnowledgeGraph, FormatMicrosimulation, FormatEvidenceCard,
		FormatClinicalTrial, FormatDecisionTree, FormatComparisonTable, FormatPatientEducation:
		return true
	default:
		return false
	}
}

// ContentLength is the answer length recommended by content adaptation.
type ContentLength string

const (
	LengthBrief         ContentLength = "brief"
	LengthStandard      ContentLength = "standard"
	LengthDetailed      ContentLength = "detailed"
	LengthComprehensive ContentLength = "comprehensive"
)

// ProgressStage is derived purely from the current progress percentage.
type ProgressStage string

const (
	StageAnalyzing  ProgressStage = "analyzing"
	StageGenerating ProgressStage = "generating"
	StageRefining   ProgressStage = "refining"
)

// Validation errors for enum parsing
var (
	ErrInvalidExperienceType  = errors.New("invalid experience type")
	ErrInvalidIntent          = errors.New("invalid question intent")
	ErrInvalidClinicalContext = errors.New("invalid clinical context")
	ErrInvalidComplexity      = errors.New("invalid complexity level")
	ErrInvalidContentFormat   = errors.New("invalid content format")
)

// ParseExperienceType converts a string into an ExperienceType.
func ParseExperienceType(s string) (ExperienceType, error) {
	e := ExperienceType(s)
	if !e.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidExperienceType, s)
	}
	return e, nil
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Clamp100 bounds v to [0,100].
func Clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
