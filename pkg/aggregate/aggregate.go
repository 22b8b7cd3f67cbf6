// Package aggregate reduces raw FHIR resource lists into compact statistical
// summaries for downstream automated analysis.
//
// A cohort of a few hundred raw resources weighs roughly 270KB; the summary
// produced here is 2-5KB. Aggregation is a pure function of its input for a
// fixed clock: identical input, including element order, always yields an
// identical summary. Resource types absent from the input are omitted from
// the summary entirely.
package aggregate

import (
	"sort"
	"time"

	"github.com/clinsight/fhir-cohort/pkg/extract"
)

// sampleSize is how many raw records each rollup retains, in fetch order.
const sampleSize = 5

// Ranked list cutoffs.
const (
	topObservationCodes = 10
	topConditionCodes   = 15
)

// Summary is the per-resource-type statistical reduction. Absent types stay
// nil and are dropped from the JSON encoding.
type Summary struct {
	Patients     *PatientSummary     `json:"patients,omitempty"`
	Observations *ObservationSummary `json:"observations,omitempty"`
	Conditions   *ConditionSummary   `json:"conditions,omitempty"`
}

// Demographics summarizes the patient cohort's gender and age makeup.
// AverageAge and MedianAge are absent, not zero, when no valid age could be
// derived.
type Demographics struct {
	GenderDistribution map[string]int `json:"genderDistribution"`
	AgeGroups          map[string]int `json:"ageGroups"`
	AverageAge         *float64       `json:"averageAge,omitempty"`
	MedianAge          *int           `json:"medianAge,omitempty"`
}

// PatientSummary is the patient rollup.
type PatientSummary struct {
	TotalCount    int              `json:"totalCount"`
	Demographics  Demographics     `json:"demographics"`
	SampleRecords []map[string]any `json:"sampleRecords"`
}

// CodeCount is one entry in a ranked code list.
type CodeCount struct {
	Code    string `json:"code"`
	Count   int    `json:"count"`
	Display string `json:"display"`
}

// ObservationSummary is the observation rollup.
type ObservationSummary struct {
	TotalCount    int              `json:"totalCount"`
	ByCategory    map[string]int   `json:"byCategory"`
	CommonTests   []CodeCount      `json:"commonTests"`
	SampleRecords []map[string]any `json:"sampleRecords"`
}

// ConditionSummary is the condition rollup.
type ConditionSummary struct {
	TotalCount           int              `json:"totalCount"`
	TopConditions        []CodeCount      `json:"topConditions"`
	SeverityDistribution map[string]int   `json:"severityDistribution"`
	SampleRecords        []map[string]any `json:"sampleRecords"`
}

// Aggregator computes summaries. The zero value is not usable; construct
// with New.
type Aggregator struct {
	// Now is the clock used for age derivation, replaceable in tests.
	Now func() time.Time
}

// New creates an aggregator using the wall clock.
func New() *Aggregator {
	return &Aggregator{Now: time.Now}
}

// Aggregate reduces the raw lists, keyed "patients"/"observations"/
// "conditions", into a summary. Input is read-only; resources are never
// mutated.
func Aggregate(data map[string][]map[string]any) Summary {
	return New().Aggregate(data)
}

// Aggregate reduces the raw lists into a summary.
func (a *Aggregator) Aggregate(data map[string][]map[string]any) Summary {
	now := a.Now()
	summary := Summary{}

	if patients := data["patients"]; len(patients) > 0 {
		summary.Patients = aggregatePatients(patients, now)
	}
	if observations := data["observations"]; len(observations) > 0 {
		summary.Observations = aggregateObservations(observations)
	}
	if conditions := data["conditions"]; len(conditions) > 0 {
		summary.Conditions = aggregateConditions(conditions)
	}
	return summary
}

func aggregatePatients(patients []map[string]any, now time.Time) *PatientSummary {
	genderDist := make(map[string]int)
	ages := make([]int, 0, len(patients))

	for _, patient := range patients {
		gender := extract.String(patient, "gender")
		if gender == "" {
			gender = extract.Unknown
		}
		genderDist[gender]++

		if birthDate := extract.String(patient, "birthDate"); birthDate != "" {
			if age, ok := extract.Age(birthDate, now); ok {
				ages = append(ages, age)
			}
		}
	}

	ageGroups := extract.AgeGroups()
	for _, age := range ages {
		ageGroups[extract.AgeGroup(age)]++
	}

	demographics := Demographics{
		GenderDistribution: genderDist,
		AgeGroups:          ageGroups,
	}
	if avg, ok := extract.AverageAge(ages); ok {
		demographics.AverageAge = &avg
	}
	if median, ok := extract.MedianAge(ages); ok {
		demographics.MedianAge = &median
	}

	return &PatientSummary{
		TotalCount:    len(patients),
		Demographics:  demographics,
		SampleRecords: sample(patients),
	}
}

func aggregateObservations(observations []map[string]any) *ObservationSummary {
	byCategory := make(map[string]int)
	codes := newCodeTally()

	for _, obs := range observations {
		byCategory[extract.Category(obs)]++

		code, display := extract.ResourceCode(obs)
		codes.add(code, display)
	}

	return &ObservationSummary{
		TotalCount:    len(observations),
		ByCategory:    byCategory,
		CommonTests:   codes.top(topObservationCodes),
		SampleRecords: sample(observations),
	}
}

func aggregateConditions(conditions []map[string]any) *ConditionSummary {
	severityDist := make(map[string]int)
	codes := newCodeTally()

	for _, cond := range conditions {
		code, display := extract.ResourceCode(cond)
		codes.add(code, display)

		severityDist[extract.Severity(cond)]++
	}

	return &ConditionSummary{
		TotalCount:           len(conditions),
		TopConditions:        codes.top(topConditionCodes),
		SeverityDistribution: severityDist,
		SampleRecords:        sample(conditions),
	}
}

// codeTally counts code occurrences while preserving first-seen order, which
// breaks ties in the ranked output.
type codeTally struct {
	counts map[string]*CodeCount
	order  []string
}

func newCodeTally() *codeTally {
	return &codeTally{counts: make(map[string]*CodeCount)}
}

// add tallies one occurrence. Records without an extractable code are
// skipped. The display tracks the most recently observed non-empty value.
func (t *codeTally) add(code, display string) {
	if code == "" {
		return
	}
	entry, ok := t.counts[code]
	if !ok {
		entry = &CodeCount{Code: code}
		t.counts[code] = entry
		t.order = append(t.order, code)
	}
	entry.Count++
	if display != "" {
		entry.Display = display
	}
}

// top returns the n most frequent codes, count descending, ties broken by
// first-seen order.
func (t *codeTally) top(n int) []CodeCount {
	ranked := make([]CodeCount, 0, len(t.order))
	for _, code := range t.order {
		ranked = append(ranked, *t.counts[code])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// sample returns the first records in original order, shared not copied:
// raw resources are read-only by contract.
func sample(records []map[string]any) []map[string]any {
	if len(records) <= sampleSize {
		return records
	}
	return records[:sampleSize]
}
