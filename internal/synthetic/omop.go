package synthetic

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/healthtech/platform/internal/platform/fhir"
)

// OMOP CDM concept IDs for the demographics and measurements the generator
// emits. Gender, race and ethnicity come from the standard vocabulary;
// visit concepts cover the three encounter classes produced above.
var (
	genderConcepts = map[string]int{
		"male":   8507,
		"female": 8532,
	}
	raceConcepts      = []int{8527, 8516, 8515, 8557}
	ethnicityConcepts = []int{38003563, 38003564}

	visitConcepts = map[string]int{
		"AMB":  9202,
		"EMER": 9203,
		"IMP":  9201,
	}

	// LOINC code to OMOP measurement concept, for every code the FHIR
	// observation generator can emit.
	measurementConcepts = map[string]int{
		"8867-4": 3027018,
		"8480-6": 3012888,
		"8462-4": 3012526,
		"8310-5": 3020891,
		"2708-6": 3016502,
		"2345-7": 3004501,
		"718-7":  3000963,
		"2160-0": 3016723,
	}

	unitConcepts = map[string]int{
		"/min":   8541,
		"mm[Hg]": 8876,
		"Cel":    586323,
		"%":      8554,
		"mg/dL":  8840,
		"g/dL":   8713,
	}
)

const (
	visitTypeEHR       = 32817
	measurementTypeLab = 44818702
)

// Person is one OMOP person row, derived from a Patient resource.
type Person struct {
	PersonID           int    `json:"person_id"`
	GenderConceptID    int    `json:"gender_concept_id"`
	YearOfBirth        int    `json:"year_of_birth"`
	MonthOfBirth       int    `json:"month_of_birth"`
	DayOfBirth         int    `json:"day_of_birth"`
	BirthDatetime      string `json:"birth_datetime"`
	RaceConceptID      int    `json:"race_concept_id"`
	EthnicityConceptID int    `json:"ethnicity_concept_id"`
	PersonSourceValue  string `json:"person_source_value"`
	GenderSourceValue  string `json:"gender_source_value"`
}

// VisitOccurrence is one OMOP visit row, derived from an Encounter.
type VisitOccurrence struct {
	VisitOccurrenceID  int    `json:"visit_occurrence_id"`
	PersonID           int    `json:"person_id"`
	VisitConceptID     int    `json:"visit_concept_id"`
	VisitStartDate     string `json:"visit_start_date"`
	VisitStartDatetime string `json:"visit_start_datetime"`
	VisitEndDate       string `json:"visit_end_date"`
	VisitEndDatetime   string `json:"visit_end_datetime"`
	VisitTypeConceptID int    `json:"visit_type_concept_id"`
	VisitSourceValue   string `json:"visit_source_value"`
}

// Measurement is one OMOP measurement row, derived from an Observation.
type Measurement struct {
	MeasurementID            int     `json:"measurement_id"`
	PersonID                 int     `json:"person_id"`
	MeasurementConceptID     int     `json:"measurement_concept_id"`
	MeasurementDate          string  `json:"measurement_date"`
	MeasurementDatetime      string  `json:"measurement_datetime"`
	MeasurementTypeConceptID int     `json:"measurement_type_concept_id"`
	ValueAsNumber            float64 `json:"value_as_number"`
	UnitConceptID            int     `json:"unit_concept_id"`
	UnitSourceValue          string  `json:"unit_source_value"`
	VisitOccurrenceID        int     `json:"visit_occurrence_id"`
	MeasurementSourceValue   string  `json:"measurement_source_value"`
}

// OMOPCohort is the relational rendering of a generated FHIR cohort: the
// same people, visits and measurements keyed by integer OMOP IDs.
type OMOPCohort struct {
	Persons      []Person
	Visits       []VisitOccurrence
	Measurements []Measurement
}

// OMOPFromCohort maps a generated FHIR cohort to OMOP rows. IDs are assigned
// in order of appearance, so the mapping is deterministic for a given
// cohort, and every visit and measurement resolves to a person generated in
// the same run. Resources with dangling references are an error.
func OMOPFromCohort(resources []fhir.Resource) (*OMOPCohort, error) {
	oc := &OMOPCohort{}
	personIDs := map[string]int{} // Patient resource id -> person_id
	visitIDs := map[string]int{}  // Encounter resource id -> visit_occurrence_id

	for _, r := range resources {
		switch r["resourceType"] {
		case "Patient":
			p, err := personFromPatient(r, len(oc.Persons)+1)
			if err != nil {
				return nil, err
			}
			personIDs[stringAt(r, "id")] = p.PersonID
			oc.Persons = append(oc.Persons, p)

		case "Encounter":
			v, err := visitFromEncounter(r, len(oc.Visits)+1, personIDs)
			if err != nil {
				return nil, err
			}
			visitIDs[stringAt(r, "id")] = v.VisitOccurrenceID
			oc.Visits = append(oc.Visits, v)

		case "Observation":
			m, err := measurementFromObservation(r, len(oc.Measurements)+1, personIDs, visitIDs)
			if err != nil {
				return nil, err
			}
			oc.Measurements = append(oc.Measurements, m)
		}
	}
	return oc, nil
}

func personFromPatient(r fhir.Resource, personID int) (Person, error) {
	id := stringAt(r, "id")
	gender := stringAt(r, "gender")
	birth, err := time.Parse("2006-01-02", stringAt(r, "birthDate"))
	if err != nil {
		return Person{}, fmt.Errorf("patient %s: parse birthDate: %w", id, err)
	}

	return Person{
		PersonID:           personID,
		GenderConceptID:    genderConcepts[gender],
		YearOfBirth:        birth.Year(),
		MonthOfBirth:       int(birth.Month()),
		DayOfBirth:         birth.Day(),
		BirthDatetime:      birth.Format(time.RFC3339),
		RaceConceptID:      raceConcepts[(personID-1)%len(raceConcepts)],
		EthnicityConceptID: ethnicityConcepts[(personID-1)%len(ethnicityConcepts)],
		PersonSourceValue:  id,
		GenderSourceValue:  gender,
	}, nil
}

func visitFromEncounter(r fhir.Resource, visitID int, personIDs map[string]int) (VisitOccurrence, error) {
	id := stringAt(r, "id")

	subject := refTarget(r, "subject", "Patient/")
	personID, ok := personIDs[subject]
	if !ok {
		return VisitOccurrence{}, fmt.Errorf("encounter %s: subject %q is not a generated patient", id, subject)
	}

	period, _ := r["period"].(map[string]interface{})
	start, err := time.Parse(time.RFC3339, stringAt(period, "start"))
	if err != nil {
		return VisitOccurrence{}, fmt.Errorf("encounter %s: parse period.start: %w", id, err)
	}
	end, err := time.Parse(time.RFC3339, stringAt(period, "end"))
	if err != nil {
		return VisitOccurrence{}, fmt.Errorf("encounter %s: parse period.end: %w", id, err)
	}

	class, _ := r["class"].(map[string]interface{})
	return VisitOccurrence{
		VisitOccurrenceID:  visitID,
		PersonID:           personID,
		VisitConceptID:     visitConcepts[stringAt(class, "code")],
		VisitStartDate:     start.Format("2006-01-02"),
		VisitStartDatetime: start.Format(time.RFC3339),
		VisitEndDate:       end.Format("2006-01-02"),
		VisitEndDatetime:   end.Format(time.RFC3339),
		VisitTypeConceptID: visitTypeEHR,
		VisitSourceValue:   id,
	}, nil
}

func measurementFromObservation(r fhir.Resource, measurementID int, personIDs, visitIDs map[string]int) (Measurement, error) {
	id := stringAt(r, "id")

	subject := refTarget(r, "subject", "Patient/")
	personID, ok := personIDs[subject]
	if !ok {
		return Measurement{}, fmt.Errorf("observation %s: subject %q is not a generated patient", id, subject)
	}
	encounter := refTarget(r, "encounter", "Encounter/")
	visitID, ok := visitIDs[encounter]
	if !ok {
		return Measurement{}, fmt.Errorf("observation %s: encounter %q is not a generated visit", id, encounter)
	}

	effective, err := time.Parse(time.RFC3339, stringAt(r, "effectiveDateTime"))
	if err != nil {
		return Measurement{}, fmt.Errorf("observation %s: parse effectiveDateTime: %w", id, err)
	}

	code := firstCodingCode(r)
	quantity, _ := r["valueQuantity"].(map[string]interface{})
	value, _ := quantity["value"].(float64)
	unit := stringAt(quantity, "unit")

	return Measurement{
		MeasurementID:            measurementID,
		PersonID:                 personID,
		MeasurementConceptID:     measurementConcepts[code],
		MeasurementDate:          effective.Format("2006-01-02"),
		MeasurementDatetime:      effective.Format(time.RFC3339),
		MeasurementTypeConceptID: measurementTypeLab,
		ValueAsNumber:            value,
		UnitConceptID:            unitConcepts[unit],
		UnitSourceValue:          unit,
		VisitOccurrenceID:        visitID,
		MeasurementSourceValue:   code,
	}, nil
}

// WriteFiles writes the cohort as one NDJSON file per OMOP table under dir,
// returning the total row count.
func (oc *OMOPCohort) WriteFiles(dir string) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create omop output dir: %w", err)
	}

	total := 0
	write := func(name string, rows func(w io.Writer) (int, error)) error {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		defer f.Close()
		n, err := rows(f)
		if err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		total += n
		return nil
	}

	if err := write("person.ndjson", func(w io.Writer) (int, error) {
		return writeRows(w, oc.Persons)
	}); err != nil {
		return 0, err
	}
	if err := write("visit_occurrence.ndjson", func(w io.Writer) (int, error) {
		return writeRows(w, oc.Visits)
	}); err != nil {
		return 0, err
	}
	if err := write("measurement.ndjson", func(w io.Writer) (int, error) {
		return writeRows(w, oc.Measurements)
	}); err != nil {
		return 0, err
	}
	return total, nil
}

func writeRows[T any](w io.Writer, rows []T) (int, error) {
	for _, row := range rows {
		line, err := json.Marshal(row)
		if err != nil {
			return 0, err
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}

func stringAt(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

// refTarget extracts the local id from a reference field like
// {"reference": "Patient/pat-000001"}.
func refTarget(r fhir.Resource, field, prefix string) string {
	ref, _ := r[field].(map[string]interface{})
	target := stringAt(ref, "reference")
	if len(target) > len(prefix) && target[:len(prefix)] == prefix {
		return target[len(prefix):]
	}
	return target
}

func firstCodingCode(r fhir.Resource) string {
	code, _ := r["code"].(map[string]interface{})
	codings, _ := code["coding"].([]interface{})
	if len(codings) == 0 {
		return ""
	}
	first, _ := codings[0].(map[string]interface{})
	return stringAt(first, "code")
}
