// Package dataset normalizes raw FHIR resource lists into flat per-record
// structures for client-side re-filtering without another network round
// trip.
//
// Field extraction goes through the same fallback chains as the aggregate
// package, so a chart built from an aggregated histogram and a filter built
// from these flat records always agree on naming.
package dataset

import (
	"time"

	"github.com/clinsight/fhir-cohort/pkg/extract"
)

// DefaultDataSource labels where the dataset's records came from.
const DefaultDataSource = "HAPI FHIR R4"

// PatientRecord is one flattened patient.
type PatientRecord struct {
	ID        string `json:"id"`
	Gender    string `json:"gender,omitempty"`
	AgeGroup  string `json:"ageGroup,omitempty"`
	Age       *int   `json:"age,omitempty"`
	BirthDate string `json:"birthDate,omitempty"`
}

// ObservationRecord is one flattened observation.
type ObservationRecord struct {
	ID        string   `json:"id"`
	PatientID string   `json:"patientId,omitempty"`
	Category  string   `json:"category,omitempty"`
	Code      string   `json:"code,omitempty"`
	Display   string   `json:"display,omitempty"`
	Value     *float64 `json:"value,omitempty"`
	Unit      string   `json:"unit,omitempty"`
	Date      string   `json:"date,omitempty"`
}

// ConditionRecord is one flattened condition.
type ConditionRecord struct {
	ID        string `json:"id"`
	PatientID string `json:"patientId,omitempty"`
	Code      string `json:"code,omitempty"`
	Display   string `json:"display,omitempty"`
	Severity  string `json:"severity,omitempty"`
	Category  string `json:"category,omitempty"`
	OnsetDate string `json:"onsetDate,omitempty"`
}

// Demographics is the dataset's own demographic summary, recomputed from the
// flat patient records rather than reused from an aggregation.
type Demographics struct {
	TotalPatients      int            `json:"totalPatients"`
	GenderDistribution map[string]int `json:"genderDistribution"`
	AgeGroups          map[string]int `json:"ageGroups"`
	AverageAge         *float64       `json:"averageAge,omitempty"`
	MedianAge          *int           `json:"medianAge,omitempty"`
}

// Metadata stamps the dataset's generation.
type Metadata struct {
	GeneratedAt      string `json:"generatedAt"`
	PatientCount     int    `json:"patientCount"`
	ObservationCount int    `json:"observationCount"`
	ConditionCount   int    `json:"conditionCount"`
	DataSource       string `json:"dataSource"`
}

// SourceDataset is the normalized flat dataset.
type SourceDataset struct {
	Patients     []PatientRecord     `json:"patients,omitempty"`
	Observations []ObservationRecord `json:"observations,omitempty"`
	Conditions   []ConditionRecord   `json:"conditions,omitempty"`
	Demographics *Demographics       `json:"demographics,omitempty"`
	Metadata     Metadata            `json:"metadata"`
}

// Builder constructs datasets. Construct with New.
type Builder struct {
	// Now is the clock used for age derivation and the metadata stamp,
	// replaceable in tests.
	Now func() time.Time

	// DataSource labels the dataset's origin.
	DataSource string
}

// New creates a builder using the wall clock and the default source label.
func New() *Builder {
	return &Builder{Now: time.Now, DataSource: DefaultDataSource}
}

// Build normalizes the raw lists, keyed "patients"/"observations"/
// "conditions", using the wall clock.
func Build(data map[string][]map[string]any) *SourceDataset {
	return New().Build(data)
}

// Build normalizes the raw lists into a flat dataset.
func (b *Builder) Build(data map[string][]map[string]any) *SourceDataset {
	now := b.Now()
	ds := &SourceDataset{}

	for _, patient := range data["patients"] {
		ds.Patients = append(ds.Patients, flattenPatient(patient, now))
	}
	for _, obs := range data["observations"] {
		ds.Observations = append(ds.Observations, flattenObservation(obs))
	}
	for _, cond := range data["conditions"] {
		ds.Conditions = append(ds.Conditions, flattenCondition(cond))
	}

	if len(ds.Patients) > 0 {
		ds.Demographics = summarizePatients(ds.Patients)
	}

	ds.Metadata = Metadata{
		GeneratedAt:      now.UTC().Format(time.RFC3339),
		PatientCount:     len(ds.Patients),
		ObservationCount: len(ds.Observations),
		ConditionCount:   len(ds.Conditions),
		DataSource:       b.DataSource,
	}
	return ds
}

func flattenPatient(patient map[string]any, now time.Time) PatientRecord {
	record := PatientRecord{
		ID:        extract.String(patient, "id"),
		Gender:    extract.String(patient, "gender"),
		BirthDate: extract.String(patient, "birthDate"),
	}
	if record.BirthDate != "" {
		if age, ok := extract.Age(record.BirthDate, now); ok {
			record.Age = &age
			record.AgeGroup = extract.AgeGroup(age)
		}
	}
	return record
}

func flattenObservation(obs map[string]any) ObservationRecord {
	code, display := extract.ResourceCode(obs)
	record := ObservationRecord{
		ID:        extract.String(obs, "id"),
		PatientID: extract.ReferenceID(obs, "subject"),
		Category:  extract.Category(obs),
		Code:      code,
		Display:   display,
		Date:      extract.String(obs, "effectiveDateTime"),
	}
	if value, unit, ok := extract.ValueQuantity(obs); ok {
		record.Value = &value
		record.Unit = unit
	}
	return record
}

func flattenCondition(cond map[string]any) ConditionRecord {
	code, display := extract.ResourceCode(cond)
	return ConditionRecord{
		ID:        extract.String(cond, "id"),
		PatientID: extract.ReferenceID(cond, "subject"),
		Code:      code,
		Display:   display,
		Severity:  extract.Severity(cond),
		Category:  extract.Category(cond),
		OnsetDate: extract.String(cond, "onsetDateTime"),
	}
}

// summarizePatients recomputes demographics from the flat records using the
// same bucket, average, and median rules as the aggregator.
func summarizePatients(patients []PatientRecord) *Demographics {
	genderDist := make(map[string]int)
	ageGroups := extract.AgeGroups()
	ages := make([]int, 0, len(patients))

	for _, patient := range patients {
		if patient.Gender != "" {
			genderDist[patient.Gender]++
		}
		if patient.AgeGroup != "" {
			ageGroups[patient.AgeGroup]++
		}
		if patient.Age != nil {
			ages = append(ages, *patient.Age)
		}
	}

	demographics := &Demographics{
		TotalPatients:      len(patients),
		GenderDistribution: genderDist,
		AgeGroups:          ageGroups,
	}
	if avg, ok := extract.AverageAge(ages); ok {
		demographics.AverageAge = &avg
	}
	if median, ok := extract.MedianAge(ages); ok {
		demographics.MedianAge = &median
	}
	return demographics
}
