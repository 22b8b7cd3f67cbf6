// Package extract provides the shared field-extraction fallback chains for
// raw FHIR resources.
//
// Resources arrive from upstream servers with wildly inconsistent shapes:
// codings without displays, codeable concepts carrying only free text, absent
// categories, partial dates. Every extractor here resolves those shapes
// through a fixed, ordered fallback chain ending in a safe default. Both the
// aggregator and the dataset normalizer use this package, so a histogram key
// and a flat-record field can never disagree on naming.
package extract

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Unknown is the terminal default for category and severity chains.
const Unknown = "unknown"

// Age bucket labels, inclusive upper bounds.
const (
	AgeGroup0to18  = "0-18"
	AgeGroup19to30 = "19-30"
	AgeGroup31to50 = "31-50"
	AgeGroup51to70 = "51-70"
	AgeGroup70Plus = "70+"
)

// AgeGroups returns the canonical zeroed age histogram. Every bucket is
// always present, even when empty.
func AgeGroups() map[string]int {
	return map[string]int{
		AgeGroup0to18:  0,
		AgeGroup19to30: 0,
		AgeGroup31to50: 0,
		AgeGroup51to70: 0,
		AgeGroup70Plus: 0,
	}
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// String returns the named top-level field as a string, or "" when absent or
// not a string.
func String(res map[string]any, field string) string {
	if res == nil {
		return ""
	}
	return asString(res[field])
}

// firstCoding returns the first entry of a codeable concept's coding list.
func firstCoding(concept map[string]any) map[string]any {
	codings := asSlice(concept["coding"])
	if len(codings) == 0 {
		return nil
	}
	return asMap(codings[0])
}

// ConceptDisplay resolves a codeable concept to a display string:
// coding[0].display, else the concept's free text, else "".
func ConceptDisplay(concept map[string]any) string {
	if concept == nil {
		return ""
	}
	if coding := firstCoding(concept); coding != nil {
		if display := asString(coding["display"]); display != "" {
			return display
		}
	}
	return asString(concept["text"])
}

// Code resolves a codeable concept to a (code, display) pair. With a coding
// present the code is coding[0].code and the display is coding[0].display or
// the concept text. Without one, the free text serves as both.
func Code(concept map[string]any) (code, display string) {
	if concept == nil {
		return "", ""
	}
	if coding := firstCoding(concept); coding != nil {
		code = asString(coding["code"])
		display = asString(coding["display"])
		if display == "" {
			display = asString(concept["text"])
		}
		return code, display
	}
	code = asString(concept["text"])
	return code, code
}

// ResourceCode applies Code to the resource's "code" field.
func ResourceCode(res map[string]any) (code, display string) {
	return Code(asMap(res["code"]))
}

// Category resolves the resource's first category entry to a display string,
// falling back to "unknown".
func Category(res map[string]any) string {
	categories := asSlice(res["category"])
	if len(categories) == 0 {
		return Unknown
	}
	if display := ConceptDisplay(asMap(categories[0])); display != "" {
		return display
	}
	return Unknown
}

// Severity resolves the resource's severity concept to a display string,
// falling back to "unknown".
func Severity(res map[string]any) string {
	severity := asMap(res["severity"])
	if severity == nil {
		return Unknown
	}
	if display := ConceptDisplay(severity); display != "" {
		return display
	}
	return Unknown
}

// ReferenceID resolves a reference field ("ResourceType/id" or a full URL)
// to the bare id: the substring after the last slash.
func ReferenceID(res map[string]any, field string) string {
	ref := asString(asMap(res[field])["reference"])
	if ref == "" {
		return ""
	}
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

// ValueQuantity extracts valueQuantity.value and valueQuantity.unit.
// ok is false when no numeric value is present.
func ValueQuantity(res map[string]any) (value float64, unit string, ok bool) {
	quantity := asMap(res["valueQuantity"])
	if quantity == nil {
		return 0, "", false
	}
	value, ok = quantity["value"].(float64)
	unit = asString(quantity["unit"])
	return value, unit, ok
}

// BirthYear parses a birth date as a full ISO date or RFC3339 timestamp and
// returns its year. Year-only and year-month precisions are rejected.
func BirthYear(birthDate string) (int, bool) {
	if t, err := time.Parse("2006-01-02", birthDate); err == nil {
		return t.Year(), true
	}
	if t, err := time.Parse(time.RFC3339, birthDate); err == nil {
		return t.Year(), true
	}
	return 0, false
}

// Age derives an age from a birth date relative to now. Ages outside
// [0, 120) are treated as noise and rejected.
func Age(birthDate string, now time.Time) (int, bool) {
	year, ok := BirthYear(birthDate)
	if !ok {
		return 0, false
	}
	age := now.Year() - year
	if age < 0 || age >= 120 {
		return 0, false
	}
	return age, true
}

// AgeGroup bins an age into one of the five fixed buckets.
func AgeGroup(age int) string {
	switch {
	case age <= 18:
		return AgeGroup0to18
	case age <= 30:
		return AgeGroup19to30
	case age <= 50:
		return AgeGroup31to50
	case age <= 70:
		return AgeGroup51to70
	default:
		return AgeGroup70Plus
	}
}

// AverageAge returns the mean of ages rounded to one decimal place.
// ok is false for an empty slice.
func AverageAge(ages []int) (float64, bool) {
	if len(ages) == 0 {
		return 0, false
	}
	sum := 0
	for _, age := range ages {
		sum += age
	}
	avg := float64(sum) / float64(len(ages))
	return math.Round(avg*10) / 10, true
}

// MedianAge returns the integer median of ages. For even-length input the
// midpoint of the two middle values is truncated toward zero.
// ok is false for an empty slice.
func MedianAge(ages []int) (int, bool) {
	if len(ages) == 0 {
		return 0, false
	}
	sorted := make([]int, len(ages))
	copy(sorted, ages)
	sort.Ints(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], true
	}
	return (sorted[mid-1] + sorted[mid]) / 2, true
}
