package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// UnknownCategoryID is the primary category id used by a degraded classification.
const UnknownCategoryID = "unknown"

// CategoryRef is a taxonomy position with the classifier's confidence in it.
type CategoryRef struct {
	ID         string  `json:"id" validate:"required"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}

// Classification maps a free-text medical question onto the clinical taxonomy.
// It is produced once per question and never mutated afterwards.
type Classification struct {
	PrimaryCategory     CategoryRef `json:"primaryCategory" validate:"required"`
	Subcategory         CategoryRef `json:"subcategory" validate:"required"`
	Keywords            []string    `json:"keywords"`
	RelevantMedications []string    `json:"relevantMedications,omitempty"`
	Categories          []string    `json:"categories,omitempty"`

	// Failed marks a degraded classification produced after an upstream failure.
	Failed bool `json:"classificationFailed,omitempty"`
}

var classificationValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a classification supplied from outside the classifier: both
// category ids are set and both confidences lie within [0,1].
func (c *Classification) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: classification is missing", ErrInvalidClassification)
	}
	if err := classificationValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: invalid field %s (%s)", ErrInvalidClassification, verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidClassification, err)
	}
	return nil
}

// Message is one turn of conversation history supplied with a question.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UnknownClassification returns the degraded classification used when the
// external classification service fails. Downstream components treat it as
// "no usable signal".
func UnknownClassification() *Classification {
	return &Classification{
		PrimaryCategory: CategoryRef{ID: UnknownCategoryID, Name: "Unknown", Confidence: 0},
		Subcategory:     CategoryRef{ID: UnknownCategoryID, Name: "Unknown", Confidence: 0},
		Keywords:        []string{},
		Failed:          true,
	}
}

// IsUsable reports whether the classification carries a real taxonomy position.
func (c *Classification) IsUsable() bool {
	return c != nil && !c.Failed && c.PrimaryCategory.ID != UnknownCategoryID
}

// HasMedications reports whether any relevant medication was detected.
func (c *Classification) HasMedications() bool {
	return c != nil && len(c.RelevantMedications) > 0
}

// CategoryText joins every category label of the classification in lower case.
// The experience selector matches its trigger terms against this text.
func (c *Classification) CategoryText() string {
	if c == nil {
		return ""
	}
	parts := []string{
		c.PrimaryCategory.ID, c.PrimaryCategory.Name,
		c.Subcategory.ID, c.Subcategory.Name,
	}
	parts = append(parts, c.Categories...)
	return strings.ToLower(strings.Join(parts, " "))
}

// LogFields returns structured logging fields for the classification.
func (c *Classification) LogFields() map[string]any {
	return map[string]any{
		"primary_category":       c.PrimaryCategory.ID,
		"primary_confidence":     c.PrimaryCategory.Confidence,
		"subcategory":            c.Subcategory.ID,
		"subcategory_confidence": c.Subcategory.Confidence,
		"keyword_count":          len(c.Keywords),
		"medication_count":       len(c.RelevantMedications),
		"failed":                 c.Failed,
	}
}
