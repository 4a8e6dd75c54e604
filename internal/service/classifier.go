package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/medqa-sponsor-engine/internal/catalog"
	"github.com/medqa-sponsor-engine/internal/domain"
	"github.com/medqa-sponsor-engine/pkg/external"
)

const (
	// defaultCategoryConfidence applies when the model omits a confidence value.
	defaultCategoryConfidence = 0.5
	// maxHistoryMessages bounds the conversation history replayed in the prompt.
	maxHistoryMessages = 6
)

// QuestionClassifier maps free-text medical questions onto the clinical taxonomy.
type QuestionClassifier struct {
	generator external.StructuredGenerator
	validate  *validator.Validate
	logger    *logrus.Logger
}

// NewQuestionClassifier creates a new question classifier
func NewQuestionClassifier(generator external.StructuredGenerator, logger *logrus.Logger) *QuestionClassifier {
	return &QuestionClassifier{
		generator: generator,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
	}
}

type rawCategory struct {
	ID         string   `json:"id" validate:"required"`
	Name       string   `json:"name"`
	Confidence *float64 `json:"confidence"`
}

type rawClassification struct {
	PrimaryCategory     rawCategory  `json:"primaryCategory"`
	Subcategory         *rawCategory `json:"subcategory" validate:"omitempty"`
	Keywords            []string     `json:"keywords" validate:"max=50"`
	RelevantMedications []string     `json:"relevantMedications" validate:"max=50"`
	Categories          []string     `json:"categories" validate:"max=20"`
}

// Classify classifies question. It never fails: any upstream or parsing failure
// yields the degraded unknown classification.
func (c *QuestionClassifier) Classify(ctx context.Context, question string, history []domain.Message) *domain.Classification {
	if strings.TrimSpace(question) == "" {
		c.logger.Warn("Classification requested for empty question")
		return domain.UnknownClassification()
	}

	classification, err := c.classify(ctx, question, history)
	if err != nil {
		c.logger.WithError(err).WithField("question_length", len(question)).
			Warn("Question classification degraded to unknown")
		return domain.UnknownClassification()
	}

	c.logger.WithFields(logrus.Fields(classification.LogFields())).Debug("Question classified")
	return classification
}

func (c *QuestionClassifier) classify(ctx context.Context, question string, history []domain.Message) (*domain.Classification, error) {
	response, err := c.generator.GenerateStructured(ctx, buildClassificationPrompt(question, history))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrClassificationFailed, err)
	}
	return c.parse(response)
}

// parse validates a model response and converts it into a Classification.
func (c *QuestionClassifier) parse(response string) (*domain.Classification, error) {
	if strings.TrimSpace(response) == "" {
		return nil, fmt.Errorf("%w: empty response", domain.ErrClassificationFailed)
	}

	var raw rawClassification
	if err := external.DecodeJSON(response, &raw); err != nil {
		return nil, fmt.Errorf("%w: malformed JSON: %v", domain.ErrClassificationFailed, err)
	}

	raw.PrimaryCategory.ID = normalizeID(raw.PrimaryCategory.ID)
	if raw.Subcategory != nil {
		raw.Subcategory.ID = normalizeID(raw.Subcategory.ID)
		if raw.Subcategory.ID == "" {
			raw.Subcategory = nil
		}
	}

	if err := c.validate.Struct(&raw); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("%w: invalid field %s (%s)", domain.ErrClassificationFailed, verrs[0].Namespace(), verrs[0].Tag())
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrClassificationFailed, err)
	}

	classification := &domain.Classification{
		PrimaryCategory:     toCategoryRef(raw.PrimaryCategory, categoryName),
		Keywords:            dedupTrimmed(raw.Keywords),
		RelevantMedications: dedupTrimmed(raw.RelevantMedications),
		Categories:          dedupTrimmed(raw.Categories),
	}
	if raw.Subcategory != nil {
		classification.Subcategory = toCategoryRef(*raw.Subcategory, subcategoryName)
	} else {
		classification.Subcategory = domain.CategoryRef{ID: domain.UnknownCategoryID, Name: "Unknown"}
	}
	if classification.PrimaryCategory.ID == domain.UnknownCategoryID {
		classification.Failed = true
	}

	if err := c.validate.Struct(classification); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrClassificationFailed, err)
	}
	return classification, nil
}

func toCategoryRef(raw rawCategory, lookupName func(string) string) domain.CategoryRef {
	confidence := defaultCategoryConfidence
	if raw.Confidence != nil && !math.IsNaN(*raw.Confidence) {
		confidence = *raw.Confidence
	}
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		name = lookupName(raw.ID)
	}
	return domain.CategoryRef{
		ID:         raw.ID,
		Name:       name,
		Confidence: domain.Clamp01(confidence),
	}
}

func categoryName(id string) string {
	if cat, ok := catalog.FindCategory(id); ok {
		return cat.Name
	}
	return id
}

func subcategoryName(id string) string {
	if sub, _, ok := catalog.FindSubcategory(id); ok {
		return sub.Name
	}
	return id
}

// normalizeID lower-cases an identifier and joins words with underscores.
func normalizeID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	return strings.Join(strings.FieldsFunc(id, func(r rune) bool {
		return r == ' ' || r == '-'
	}), "_")
}

// dedupTrimmed trims entries and drops blanks and case-insensitive duplicates.
func dedupTrimmed(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
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

func buildClassificationPrompt(question string, history []domain.Message) string {
	var b strings.Builder
	b.WriteString("Classify the following medical question into the clinical taxonomy below.\n\n")
	b.WriteString("Taxonomy (primary category id: subcategory ids):\n")
	for _, cat := range catalog.Taxonomy {
		ids := make([]string, len(cat.Subcategories))
		for i, sub := range cat.Subcategories {
			ids[i] = sub.ID
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", cat.ID, cat.Name, strings.Join(ids, ", "))
	}

	if len(history) > 0 {
		if len(history) > maxHistoryMessages {
			history = history[len(history)-maxHistoryMessages:]
		}
		b.WriteString("\nConversation so far:\n")
		for _, msg := range history {
			fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
		}
	}

	fmt.Fprintf(&b, "\nQuestion: %s\n\n", question)
	b.WriteString(`Respond with JSON only, in exactly this shape:
{
  "primaryCategory": {"id": "<category id>", "name": "<category name>", "confidence": <0..1>},
  "subcategory": {"id": "<subcategory id>", "name": "<subcategory name>", "confidence": <0..1>},
  "keywords": ["<clinically meaningful terms from the question>"],
  "relevantMedications": ["<generic drug names mentioned or clearly implied>"],
  "categories": ["<question themes such as treatment, diagnosis, mechanism, side effects>"]
}
Use "unknown" as the primary category id when the question is not medical.`)
	return b.String()
}
