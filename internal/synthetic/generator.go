// Package synthetic generates correlated FHIR resources for testing and
// demos: each patient gets encounters, and each encounter gets vitals and
// lab observations referencing both. Output is deterministic for a given
// seed and anchor time. OMOPFromCohort renders the same cohort as OMOP CDM
// person, visit_occurrence and measurement rows, so the FHIR and relational
// halves of a test dataset describe the same population.
package synthetic

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/healthtech/platform/internal/platform/fhir"
)

var (
	givenNames  = []string{"James", "Mary", "Robert", "Patricia", "John", "Jennifer", "Michael", "Linda", "David", "Elizabeth", "Maria", "Ahmed", "Wei", "Fatima", "Carlos"}
	familyNames = []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis", "Rodriguez", "Martinez", "Nguyen", "Kim", "Patel", "Okafor", "Silva"}
	cities      = []string{"Springfield", "Riverton", "Lakewood", "Fairview", "Georgetown", "Clinton", "Salem", "Madison"}
	states      = []string{"CA", "TX", "NY", "FL", "IL", "PA", "OH", "WA"}

	encounterClasses  = []string{"AMB", "EMER", "IMP"}
	encounterStatuses = []string{"finished", "finished", "finished", "in-progress", "cancelled"}
)

// vitalSigns are LOINC-coded measurements with plausible adult ranges.
var vitalSigns = []struct {
	Code    string
	Display string
	Min     float64
	Max     float64
	Unit    string
}{
	{"8867-4", "Heart rate", 55, 105, "/min"},
	{"8480-6", "Systolic blood pressure", 95, 145, "mm[Hg]"},
	{"8462-4", "Diastolic blood pressure", 60, 95, "mm[Hg]"},
	{"8310-5", "Body temperature", 36.2, 38.2, "Cel"},
	{"2708-6", "Oxygen saturation", 92, 100, "%"},
}

var labTests = []struct {
	Code    string
	Display string
	Min     float64
	Max     float64
	Unit    string
}{
	{"2345-7", "Glucose", 70, 180, "mg/dL"},
	{"718-7", "Hemoglobin", 11, 17, "g/dL"},
	{"2160-0", "Creatinine", 0.6, 1.4, "mg/dL"},
}

// Generator produces correlated Patient/Encounter/Observation resources.
type Generator struct {
	rng    *rand.Rand
	anchor time.Time
}

// NewGenerator seeds the generator. anchor fixes the "now" all generated
// dates are relative to, keeping output reproducible.
func NewGenerator(seed int64, anchor time.Time) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed)), anchor: anchor.UTC()}
}

// Patient generates one synthetic Patient resource.
func (g *Generator) Patient(n int) fhir.Resource {
	gender := "female"
	if g.rng.Intn(2) == 0 {
		gender = "male"
	}
	ageDays := g.rng.Intn(100 * 365)
	birth := g.anchor.AddDate(0, 0, -ageDays)

	return fhir.Resource{
		"resourceType": "Patient",
		"id":           patientID(n),
		"identifier": []interface{}{map[string]interface{}{
			"system": "urn:oid:synthetic-health-platform",
			"value":  fmt.Sprintf("patient-%06d", n),
		}},
		"active": true,
		"name": []interface{}{map[string]interface{}{
			"use":    "official",
			"family": familyNames[g.rng.Intn(len(familyNames))],
			"given":  []interface{}{givenNames[g.rng.Intn(len(givenNames))]},
		}},
		"gender":    gender,
		"birthDate": birth.Format("2006-01-02"),
		"address": []interface{}{map[string]interface{}{
			"use":     "home",
			"city":    cities[g.rng.Intn(len(cities))],
			"state":   states[g.rng.Intn(len(states))],
			"country": "US",
		}},
		"meta": map[string]interface{}{
			"source":    "synthetic-generator",
			"versionId": "1",
		},
	}
}

// Encounter generates the j-th encounter for patient n, within the last two
// years relative to the anchor.
func (g *Generator) Encounter(n, j int) fhir.Resource {
	start := g.anchor.AddDate(0, 0, -g.rng.Intn(730)).Add(-time.Duration(g.rng.Intn(24)) * time.Hour)
	end := start.Add(time.Duration(30+g.rng.Intn(300)) * time.Minute)

	return fhir.Resource{
		"resourceType": "Encounter",
		"id":           encounterID(n, j),
		"status":       encounterStatuses[g.rng.Intn(len(encounterStatuses))],
		"class": map[string]interface{}{
			"system": "http://terminology.hl7.org/CodeSystem/v3-ActCode",
			"code":   encounterClasses[g.rng.Intn(len(encounterClasses))],
		},
		"subject": map[string]interface{}{
			"reference": "Patient/" + patientID(n),
		},
		"period": map[string]interface{}{
			"start": start.Format(time.RFC3339),
			"end":   end.Format(time.RFC3339),
		},
	}
}

// Observation generates the k-th observation for patient n against the
// given encounter, randomly a vital sign or a lab result.
func (g *Generator) Observation(n, k int, encounterRef string, effective time.Time) fhir.Resource {
	category := "vital-signs"
	code, display, unit := "", "", ""
	var value float64

	if g.rng.Intn(3) == 0 {
		category = "laboratory"
		t := labTests[g.rng.Intn(len(labTests))]
		code, display, unit = t.Code, t.Display, t.Unit
		value = t.Min + g.rng.Float64()*(t.Max-t.Min)
	} else {
		t := vitalSigns[g.rng.Intn(len(vitalSigns))]
		code, display, unit = t.Code, t.Display, t.Unit
		value = t.Min + g.rng.Float64()*(t.Max-t.Min)
	}

	return fhir.Resource{
		"resourceType": "Observation",
		"id":           observationID(n, k),
		"status":       "final",
		"category": []interface{}{map[string]interface{}{
			"coding": []interface{}{map[string]interface{}{
				"system": "http://terminology.hl7.org/CodeSystem/observation-category",
				"code":   category,
			}},
		}},
		"code": map[string]interface{}{
			"coding": []interface{}{map[string]interface{}{
				"system":  "http://loinc.org",
				"code":    code,
				"display": display,
			}},
		},
		"subject": map[string]interface{}{
			"reference": "Patient/" + patientID(n),
		},
		"encounter": map[string]interface{}{
			"reference": encounterRef,
		},
		"effectiveDateTime": effective.Format(time.RFC3339),
		"valueQuantity": map[string]interface{}{
			"value": float64(int(value*100)) / 100,
			"unit":  unit,
		},
	}
}

// Cohort generates count patients with their encounters and observations,
// in a stable order: patient, its encounters, their observations.
func (g *Generator) Cohort(count int) []fhir.Resource {
	var resources []fhir.Resource
	for n := 1; n <= count; n++ {
		resources = append(resources, g.Patient(n))

		encounters := 1 + g.rng.Intn(3)
		obsSeq := 0
		for j := 1; j <= encounters; j++ {
			enc := g.Encounter(n, j)
			resources = append(resources, enc)

			period := enc["period"].(map[string]interface{})
			effective, _ := time.Parse(time.RFC3339, period["start"].(string))

			for k := 0; k < g.rng.Intn(5); k++ {
				obsSeq++
				resources = append(resources, g.Observation(n, obsSeq, "Encounter/"+enc["id"].(string), effective))
			}
		}
	}
	return resources
}

// WriteNDJSON generates a cohort and writes it one resource per line.
func (g *Generator) WriteNDJSON(w io.Writer, count int) (int, error) {
	return WriteResources(w, g.Cohort(count))
}

// WriteResources writes an already generated cohort one resource per line,
// so the same cohort can also feed the OMOP mapping.
func WriteResources(w io.Writer, resources []fhir.Resource) (int, error) {
	for _, r := range resources {
		line, err := json.Marshal(r)
		if err != nil {
			return 0, fmt.Errorf("encode %v resource: %w", r["resourceType"], err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return 0, fmt.Errorf("write resource: %w", err)
		}
	}
	return len(resources), nil
}

func patientID(n int) string      { return fmt.Sprintf("pat-%06d", n) }
func encounterID(n, j int) string { return fmt.Sprintf("enc-%06d-%02d", n, j) }
func observationID(n, k int) string {
	return fmt.Sprintf("obs-%06d-%03d", n, k)
}
