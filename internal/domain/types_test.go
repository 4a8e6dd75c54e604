package domain

import (
	"errors"
	"testing"
)

func TestExperienceTypeConstants(t *testing.T) {
	tests := []struct {
		name     string
		value    ExperienceType
		expected string
		priority int
	}{
		{"Microsimulation", MICROSIMULATION, "MICROSIMULATION", 8},
		{"Knowledge Graph", KNOWLEDGE_GRAPH, "KNOWLEDGE_GRAPH", 9},
		{"Evidence Card", EVIDENCE_CARD, "EVIDENCE_CARD", 7},
		{"Standard", STANDARD, "STANDARD", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.value) != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, string(tt.value))
			}
			if tt.value.BasePriority() != tt.priority {
				t.Errorf("Expected priority %d, got %d", tt.priority, tt.value.BasePriority())
			}
			if !tt.value.IsValid() {
				t.Errorf("Expected %s to be valid", tt.value)
			}
		})
	}
}

func TestParseExperienceType(t *testing.T) {
	got, err := ParseExperienceType("EVIDENCE_CARD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != EVIDENCE_CARD {
		t.Errorf("Expected EVIDENCE_CARD, got %s", got)
	}

	_, err = ParseExperienceType("HOLOGRAM")
	if !errors.Is(err, ErrInvalidExperienceType) {
		t.Errorf("Expected ErrInvalidExperienceType, got %v", err)
	}
}

func TestComplexityLevelOrdering(t *testing.T) {
	for i := 1; i < len(AllComplexityLevels); i++ {
		prev, cur := AllComplexityLevels[i-1], AllComplexityLevels[i]
		if prev.Rank() >= cur.Rank() {
			t.Errorf("Expected %s < %s", prev, cur)
		}
	}
	if ComplexityLevel("trivial").IsValid() {
		t.Errorf("Expected unknown complexity to be invalid")
	}
}

func TestEnumCardinality(t *testing.T) {
	if len(AllQuestionIntents) != 10 {
		t.Errorf("Expected 10 intents, got %d", len(AllQuestionIntents))
	}
	if len(AllClinicalContexts) != 7 {
		t.Errorf("Expected 7 clinical contexts, got %d", len(AllClinicalContexts))
	}
	if len(AllComplexityLevels) != 4 {
		t.Errorf("Expected 4 complexity levels, got %d", len(AllComplexityLevels))
	}
	if len(AllContentFormats) != 8 {
		t.Errorf("Expected 8 content formats, got %d", len(AllContentFormats))
	}
	for _, f := range AllContentFormats {
		if !f.IsValid() {
			t.Errorf("Expected %s to be valid", f)
		}
	}
	for _, i := range AllQuestionIntents {
		if !i.IsValid() {
			t.Errorf("Expected %s to be valid", i)
		}
	}
	for _, c := range AllClinicalContexts {
		if !c.IsValid() {
			t.Errorf("Expected %s to be valid", c)
		}
	}
}

func TestUnknownClassification(t *testing.T) {
	c := UnknownClassification()
	if c.PrimaryCategory.ID != UnknownCategoryID {
		t.Errorf("Expected unknown primary category, got %s", c.PrimaryCategory.ID)
	}
	if c.PrimaryCategory.Confidence != 0 {
		t.Errorf("Expected zero confidence, got %f", c.PrimaryCategory.Confidence)
	}
	if len(c.Keywords) != 0 {
		t.Errorf("Expected no keywords, got %v", c.Keywords)
	}
	if !c.Failed || c.IsUsable() {
		t.Errorf("Expected degraded classification to be marked failed and unusable")
	}
}

func TestClassificationCategoryText(t *testing.T) {
	c := &Classification{
		PrimaryCategory: CategoryRef{ID: "oncology", Name: "Oncology"},
		Subcategory:     CategoryRef{ID: "breast_cancer", Name: "Breast Cancer"},
		Categories:      []string{"Treatment Options"},
	}
	text := c.CategoryText()
	if text != "oncology oncology breast_cancer breast cancer treatment options" {
		t.Errorf("Unexpected category text %q", text)
	}

	var nilClassification *Classification
	if nilClassification.CategoryText() != "" {
		t.Errorf("Expected empty text for nil classification")
	}
}

func TestClamp(t *testing.T) {
	cases := []struct {
		in, want01, want100 float64
	}{
		{-0.5, 0, 0},
		{0.4, 0.4, 0.4},
		{1.7, 1, 1.7},
		{150, 1, 100},
	}
	for _, c := range cases {
		if got := Clamp01(c.in); got != c.want01 {
			t.Errorf("Clamp01(%v) = %v, want %v", c.in, got, c.want01)
		}
		if got := Clamp100(c.in); got != c.want100 {
			t.Errorf("Clamp100(%v) = %v, want %v", c.in, got, c.want100)
		}
	}
}
