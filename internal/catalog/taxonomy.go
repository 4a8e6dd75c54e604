package catalog

import (
	"strings"
)

// TaxonomyCategory is a primary clinical category with its subcategories.
type TaxonomyCategory struct {
	ID            string
	Name          string
	Subcategories []TaxonomySubcategory
}

// TaxonomySubcategory is a subcategory of a primary clinical category.
type TaxonomySubcategory struct {
	ID   string
	Name string
}

// Taxonomy is the fixed clinical taxonomy offered to the question classifier.
var Taxonomy = []TaxonomyCategory{
	{ID: "cardiology", Name: "Cardiology", Subcategories: []TaxonomySubcategory{
		{"hypertension", "Hypertension"},
		{"heart_failure", "Heart Failure"},
		{"atrial_fibrillation", "Atrial Fibrillation"},
		{"coronary_artery_disease", "Coronary Artery Disease"},
		{"hyperlipidemia", "Hyperlipidemia"},
	}},
	{ID: "oncology", Name: "Oncology", Subcategories: []TaxonomySubcategory{
		{"breast_cancer", "Breast Cancer"},
		{"lung_cancer", "Lung Cancer"},
		{"prostate_cancer", "Prostate Cancer"},
		{"colorectal_cancer", "Colorectal Cancer"},
		{"hematologic_malignancies", "Hematologic Malignancies"},
	}},
	{ID: "neurology", Name: "Neurology", Subcategories: []TaxonomySubcategory{
		{"migraine", "Migraine"},
		{"epilepsy", "Epilepsy"},
		{"multiple_sclerosis", "Multiple Sclerosis"},
		{"alzheimers_disease", "Alzheimer's Disease"},
		{"parkinsons_disease", "Parkinson's Disease"},
	}},
	{ID: "endocrinology", Name: "Endocrinology", Subcategories: []TaxonomySubcategory{
		{"type_2_diabetes", "Type 2 Diabetes"},
		{"type_1_diabetes", "Type 1 Diabetes"},
		{"obesity", "Obesity"},
		{"thyroid_disorders", "Thyroid Disorders"},
		{"osteoporosis", "Osteoporosis"},
	}},
	{ID: "infectious_disease", Name: "Infectious Disease", Subcategories: []TaxonomySubcategory{
		{"hiv", "HIV"},
		{"hepatitis", "Hepatitis"},
		{"covid19", "COVID-19"},
		{"influenza", "Influenza"},
		{"bacterial_infections", "Bacterial Infections"},
	}},
	{ID: "psychiatry", Name: "Psychiatry", Subcategories: []TaxonomySubcategory{
		{"depression", "Depression"},
		{"anxiety", "Anxiety"},
		{"schizophrenia", "Schizophrenia"},
		{"bipolar_disorder", "Bipolar Disorder"},
		{"adhd", "ADHD"},
	}},
	{ID: "pulmonology", Name: "Pulmonology", Subcategories: []TaxonomySubcategory{
		{"asthma", "Asthma"},
		{"copd", "COPD"},
		{"pulmonary_fibrosis", "Pulmonary Fibrosis"},
		{"cystic_fibrosis", "Cystic Fibrosis"},
		{"pulmonary_hypertension", "Pulmonary Hypertension"},
	}},
	{ID: "gastroenterology", Name: "Gastroenterology", Subcategories: []TaxonomySubcategory{
		{"crohns_disease", "Crohn's Disease"},
		{"ulcerative_colitis", "Ulcerative Colitis"},
		{"gerd", "GERD"},
		{"ibs", "Irritable Bowel Syndrome"},
		{"liver_disease", "Liver Disease"},
	}},
	{ID: "rheumatology", Name: "Rheumatology", Subcategories: []TaxonomySubcategory{
		{"rheumatoid_arthritis", "Rheumatoid Arthritis"},
		{"psoriatic_arthritis", "Psoriatic Arthritis"},
		{"lupus", "Lupus"},
		{"gout", "Gout"},
		{"ankylosing_spondylitis", "Ankylosing Spondylitis"},
	}},
	{ID: "dermatology", Name: "Dermatology", Subcategories: []TaxonomySubcategory{
		{"psoriasis", "Psoriasis"},
		{"atopic_dermatitis", "Atopic Dermatitis"},
		{"acne", "Acne"},
		{"melanoma", "Melanoma"},
		{"hidradenitis_suppurativa", "Hidradenitis Suppurativa"},
	}},
}

// crossSpecialtyPeers lists treatment-area categories that are not primary taxonomy
// categories but still cover taxonomy subcategories.
var crossSpecialtyPeers = map[string][]string{
	"immunology": {
		"rheumatoid_arthritis", "psoriatic_arthritis", "psoriasis", "atopic_dermatitis",
		"crohns_disease", "ulcerative_colitis", "ankylosing_spondylitis", "lupus",
		"asthma", "multiple_sclerosis", "hidradenitis_suppurativa",
	},
	"hematology":    {"hematologic_malignancies"},
	"vaccines":      {"covid19", "influenza", "hepatitis"},
	"metabolic":     {"type_2_diabetes", "obesity", "hyperlipidemia", "heart_failure"},
	"respiratory":   {"asthma", "copd", "pulmonary_fibrosis"},
	"womens_health": {"breast_cancer", "osteoporosis"},
}

// categorySubcategories is the static category→subcategories lookup table:
// the taxonomy merged with the cross-specialty peers.
var categorySubcategories = buildCategoryLookup()

func buildCategoryLookup() map[string]map[string]struct{} {
	lookup := make(map[string]map[string]struct{})
	add := func(category, sub string) {
		if lookup[category] == nil {
			lookup[category] = make(map[string]struct{})
		}
		lookup[category][sub] = struct{}{}
	}
	for _, cat := range Taxonomy {
		for _, sub := range cat.Subcategories {
			add(cat.ID, sub.ID)
		}
	}
	for category, subs := range crossSpecialtyPeers {
		for _, sub := range subs {
			add(category, sub)
		}
	}
	return lookup
}

// CategoryIncludesSubcategory reports whether a treatment-area category covers
// the given subcategory in the static lookup table.
func CategoryIncludesSubcategory(category, subcategoryID string) bool {
	subs, ok := categorySubcategories[strings.ToLower(category)]
	if !ok {
		return false
	}
	_, ok = subs[strings.ToLower(subcategoryID)]
	return ok
}

// FindCategory returns the taxonomy category with the given id.
func FindCategory(id string) (TaxonomyCategory, bool) {
	for _, cat := range Taxonomy {
		if cat.ID == id {
			return cat, true
		}
	}
	return TaxonomyCategory{}, false
}

// FindSubcategory returns the subcategory with the given id and its parent category id.
func FindSubcategory(id string) (TaxonomySubcategory, string, bool) {
	for _, cat := range Taxonomy {
		for _, sub := range cat.Subcategories {
			if sub.ID == id {
				return sub, cat.ID, true
			}
		}
	}
	return TaxonomySubcategory{}, "", false
}
