package synthetic

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var testAnchor = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestGenerator_Deterministic(t *testing.T) {
	a := NewGenerator(7, testAnchor).Cohort(5)
	b := NewGenerator(7, testAnchor).Cohort(5)

	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed produced different cohorts (-a +b):\n%s", diff)
	}
}

func TestGenerator_CohortIsCorrelated(t *testing.T) {
	resources := NewGenerator(1, testAnchor).Cohort(3)

	patients := map[string]bool{}
	encounters := map[string]bool{}
	counts := map[string]int{}

	for _, r := range resources {
		rt, _ := r["resourceType"].(string)
		counts[rt]++
		switch rt {
		case "Patient":
			patients[r["id"].(string)] = true
		case "Encounter":
			encounters[r["id"].(string)] = true
		}
	}

	if counts["Patient"] != 3 {
		t.Errorf("got %d patients, want 3", counts["Patient"])
	}
	if counts["Encounter"] < 3 {
		t.Errorf("got %d encounters, want at least one per patient", counts["Encounter"])
	}

	// Every reference must resolve to a resource in the same cohort.
	for _, r := range resources {
		switch r["resourceType"] {
		case "Encounter":
			ref := r["subject"].(map[string]interface{})["reference"].(string)
			if !patients[strings.TrimPrefix(ref, "Patient/")] {
				t.Errorf("encounter %v references unknown %s", r["id"], ref)
			}
		case "Observation":
			subj := r["subject"].(map[string]interface{})["reference"].(string)
			if !patients[strings.TrimPrefix(subj, "Patient/")] {
				t.Errorf("observation %v references unknown %s", r["id"], subj)
			}
			enc := r["encounter"].(map[string]interface{})["reference"].(string)
			if !encounters[strings.TrimPrefix(enc, "Encounter/")] {
				t.Errorf("observation %v references unknown %s", r["id"], enc)
			}
		}
	}
}

func TestGenerator_ObservationShape(t *testing.T) {
	resources := NewGenerator(3, testAnchor).Cohort(10)

	checked := 0
	for _, r := range resources {
		if r["resourceType"] != "Observation" {
			continue
		}
		checked++

		code := r["code"].(map[string]interface{})["coding"].([]interface{})[0].(map[string]interface{})
		if code["system"] != "http://loinc.org" || code["code"] == "" {
			t.Errorf("observation %v has bad coding: %v", r["id"], code)
		}

		category := r["category"].([]interface{})[0].(map[string]interface{})["coding"].([]interface{})[0].(map[string]interface{})["code"]
		if category != "vital-signs" && category != "laboratory" {
			t.Errorf("observation %v category = %v", r["id"], category)
		}

		if _, err := time.Parse(time.RFC3339, r["effectiveDateTime"].(string)); err != nil {
			t.Errorf("observation %v effectiveDateTime: %v", r["id"], err)
		}

		value := r["valueQuantity"].(map[string]interface{})["value"].(float64)
		if value <= 0 {
			t.Errorf("observation %v value = %v", r["id"], value)
		}
	}
	if checked == 0 {
		t.Fatal("cohort of 10 patients produced no observations")
	}
}

func TestWriteNDJSON(t *testing.T) {
	var buf bytes.Buffer
	n, err := NewGenerator(5, testAnchor).WriteNDJSON(&buf, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != n {
		t.Fatalf("wrote %d lines, reported %d", len(lines), n)
	}
	for i, line := range lines {
		var record map[string]interface{}
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", i+1, err)
		}
		if record["resourceType"] == "" {
			t.Errorf("line %d missing resourceType", i+1)
		}
	}
}
