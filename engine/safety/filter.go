package safety

import (
	"regexp"
)

// Category names a class of disallowed response content.
type Category string

const (
	CategoryExplicit  Category = "explicit_content"
	CategoryMedical   Category = "medical_diagnosis"
	CategoryFinancial Category = "financial_prediction"
	CategoryLegal     Category = "legal_advice"
)

// safeLine replaces a violating response. The pipeline prepends the
// personality greeting and re-enforces the character budget.
const safeLine = "That question leads somewhere I cannot follow you. " +
	"Let us turn instead to what these teachings can truly offer."

var patterns = map[Category]*regexp.Regexp{
	CategoryExplicit: regexp.MustCompile(
		`(?i)\b(explicit|pornograph\w*|sexual(ly)? (act|content|favor)s?)\b`),
	CategoryMedical: regexp.MustCompile(
		`(?i)\b(i diagnose|your (diagnosis|prognosis) is|stop taking (your )?medication|` +
			`you (have|suffer from) (a |an )?(disease|condition|disorder|cancer|diabetes|depression))\b`),
	CategoryFinancial: regexp.MustCompile(
		`(?i)\b((stock|share|coin|token) (price )?will (rise|fall|double|crash)|guaranteed (return|profit)s?|invest (all|everything))\b`),
	CategoryLegal: regexp.MustCompile(
		`(?i)\b(you should (sue|plead|file a lawsuit)|legally you (must|cannot)|my legal advice)\b`),
}

// Check scans a response for disallowed content and returns the first
// violated category.
func Check(text string) (Category, bool) {
	for _, category := range []Category{
		CategoryExplicit, CategoryMedical, CategoryFinancial, CategoryLegal,
	} {
		if patterns[category].MatchString(text) {
			return category, true
		}
	}
	return "", false
}

// SafeLine returns the replacement sentence for a violating response.
func SafeLine() string {
	return safeLine
}
