package aggregate

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/analysis"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/risk"
)

// keyword sets are tried in this order; anything unmatched is operational.
// A keyword matches a whole word or one of its inflections, see matchesWord.
var categoryKeywords = []struct {
	category risk.Category
	words    []string
}{
	{risk.Financial, []string{"budget", "cost", "finance", "financial", "fund", "price", "variance", "revenue", "expense", "expenditure"}},
	{risk.Timeline, []string{"timeline", "date", "schedule", "milestone", "deadline", "delay"}},
	{risk.Environmental, []string{"environment", "emission", "compliance", "compliant", "regulatory", "ecology", "ecological", "climate"}},
}

var inflections = []string{"s", "es", "d", "ed", "ing", "al", "ally", "ly", "ary"}

var (
	missingWeight = map[analysis.Importance]int{
		analysis.ImportanceCritical: 20,
		analysis.ImportanceMedium:   10,
		analysis.ImportanceLow:      4,
	}
	inconsistencyWeight = map[analysis.Severity]int{
		analysis.SeverityHigh:   18,
		analysis.SeverityMedium: 9,
		analysis.SeverityLow:    3,
	}
	checkWeight = map[analysis.CheckStatus]int{
		analysis.CheckFail:    10,
		analysis.CheckWarning: 5,
	}
)

// Categorize assigns a finding to a risk category from its label and description.
func Categorize(label, description string) risk.Category {
	tokens := words(label + " " + description)
	for _, set := range categoryKeywords {
		for _, kw := range set.words {
			for _, tok := range tokens {
				if matchesWord(tok, kw) {
					return set.category
				}
			}
		}
	}
	return risk.Operational
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// matchesWord accepts kw itself or kw plus a common suffix, so "fund" matches
// "funding" but not "fundamental" and "date" matches "dates" but not "validated".
func matchesWord(tok, kw string) bool {
	if tok == kw {
		return true
	}
	stem := kw
	if !strings.HasPrefix(tok, kw) {
		// schedule -> scheduling
		if !strings.HasSuffix(kw, "e") || !strings.HasPrefix(tok, kw[:len(kw)-1]) {
			return false
		}
		stem = kw[:len(kw)-1]
	}
	rest := tok[len(stem):]
	for _, suffix := range inflections {
		if rest == suffix {
			return true
		}
	}
	return false
}

// DeriveRisk computes all four risk categories from r. A lower completeness
// score raises every category evenly; each finding then adds its weight to the
// category it belongs to.
func DeriveRisk(r analysis.Result) (risk.Data, error) {
	if err := r.Validate(); err != nil {
		return risk.Data{}, err
	}

	base := (100 - r.Completeness.Score) / 4
	levels := make(map[risk.Category]int, len(risk.Categories))
	rising := make(map[risk.Category]bool, len(risk.Categories))
	for _, c := range risk.Categories {
		levels[c] = base
	}

	for _, it := range r.MissingInfo.Items {
		c := Categorize(it.Field, it.Description)
		levels[c] += missingWeight[it.Importance]
		if it.Importance == analysis.ImportanceCritical {
			rising[c] = true
		}
	}
	for _, it := range r.Inconsistencies.Items {
		c := Categorize(it.Type, it.Description)
		levels[c] += inconsistencyWeight[it.Severity]
		if it.Severity == analysis.SeverityHigh {
			rising[c] = true
		}
	}
	for _, ch := range r.Completeness.Checks {
		w, ok := checkWeight[ch.Status]
		if !ok {
			continue
		}
		c := Categorize(ch.Name, ch.Description)
		levels[c] += w
		if ch.Status == analysis.CheckFail {
			rising[c] = true
		}
	}

	assess := func(c risk.Category) risk.Assessment {
		level := clamp(levels[c])
		trend := risk.TrendDown
		if rising[c] {
			trend = risk.TrendUp
		}
		return risk.Assessment{Level: level, Status: risk.Classify(level), Trend: trend}
	}
	return risk.Data{
		Financial:     assess(risk.Financial),
		Operational:   assess(risk.Operational),
		Timeline:      assess(risk.Timeline),
		Environmental: assess(risk.Environmental),
	}, nil
}

// OverallRisk is the rounded mean of the four category levels.
func OverallRisk(d risk.Data) (int, error) {
	if err := ValidateRisk(d); err != nil {
		return 0, err
	}
	levels := d.Levels()
	sum := 0
	for _, l := range levels {
		sum += l
	}
	return int(math.Round(float64(sum) / float64(len(levels)))), nil
}

// ValidateRisk checks level bounds and that every status follows the classification policy.
func ValidateRisk(d risk.Data) error {
	for _, c := range risk.Categories {
		a := d.Get(c)
		field := fmt.Sprintf("risk.%s", c)
		if a.Level < 0 || a.Level > 100 {
			return &analysis.ValidationError{Field: field + ".level", Reason: fmt.Sprintf("%d is outside 0-100", a.Level)}
		}
		if a.Status != risk.Classify(a.Level) {
			return &analysis.ValidationError{
				Field:  field + ".status",
				Reason: fmt.Sprintf("%q does not match level %d", a.Status, a.Level),
			}
		}
		if a.Trend != risk.TrendUp && a.Trend != risk.TrendDown {
			return &analysis.ValidationError{Field: field + ".trend", Reason: fmt.Sprintf("unknown trend %q", a.Trend)}
		}
	}
	return nil
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
