package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	toon "github.com/toon-format/toon-go"
)

func sampleResult(now time.Time) ScoreResult {
	return ScoreResult{
		InstanceID:  "a1",
		ScaleID:     "anxiety",
		ScaleDigest: "abc",
		InputDigest: "def",
		AgeGroup:    "age_9_11",
		Gender:      GenderFemale,
		RawScores: map[string]RawScore{
			"worry": {Value: 14, Answered: 7, Expected: 8, Completion: 0.875, Extrapolated: true},
		},
		StandardScores: map[string]float64{"worry": 61.5},
		Composites:     map[string]CompositeScore{"total_anxiety": {Value: 58, ValidMembers: 3, Members: 3}},
		Percentiles:    map[string]float64{"worry": 87.5},
		DomainRisk:     map[string]Classification{"worry": {Label: "mildly_elevated", Severity: 1}},
		PrimaryIndex:   "total_anxiety",
		Overall:        Classification{Label: "typical", Severity: 0},
		Validity:       Validity{Verdict: VerdictCaution, Inconsistency: true, InconsistentPairs: 2},
		Interpretation: Interpretation{Overall: "Within the typical range.", Concerns: []string{"Worry"}},
		Recommendations: []Recommendation{
			{Priority: "routine", Text: "Reassess at the end of the program cycle."},
		},
		NormTiers: map[string]string{"worry": "exact"},
		ScoredAt:  now,
	}
}

// TestAllTypesSerializeToJSON ensures the custom string types work with JSON encoding.
func TestAllTypesSerializeToJSON(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		data any
	}{
		{
			name: "AssessmentInstance",
			data: AssessmentInstance{ID: "a1", ScaleID: "anxiety", AgeMonths: 120, Gender: GenderMale, Status: StatusReady, AdministeredAt: now},
		},
		{
			name: "ItemResponse_omitted",
			data: ItemResponse{ItemID: 3, Omitted: true, Sequence: 3},
		},
		{
			name: "ResponseSet",
			data: ResponseSet{
				Instance:  AssessmentInstance{ID: "a1", ScaleID: "behavior"},
				Responses: []ItemResponse{{ItemID: 1, Value: 2, Sequence: 1}},
			},
		},
		{
			name: "Validity",
			data: Validity{Verdict: VerdictQuestionable, Defensiveness: true, RandomResponding: true, RepeatRatio: 0.9},
		},
		{
			name: "ScoreResult",
			data: sampleResult(now),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name+"_json", func(t *testing.T) {
			data, err := json.Marshal(tt.data)
			if err != nil {
				t.Errorf("JSON marshal failed: %v", err)
				return
			}
			if len(data) == 0 {
				t.Error("JSON output should not be empty")
			}
		})
	}
}

// TestAllTypesSerializeToTOON ensures the custom string types work with TOON encoding.
func TestAllTypesSerializeToTOON(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		data any
		want string
	}{
		{
			name: "AssessmentInstance",
			data: AssessmentInstance{ID: "a1", ScaleID: "anxiety", AgeMonths: 120, Gender: GenderMale, Status: StatusReady, AdministeredAt: now},
			want: "ready",
		},
		{
			name: "Validity",
			data: Validity{Verdict: VerdictCaution, Inconsistency: true},
			want: "caution",
		},
		{
			name: "Recommendation",
			data: Recommendation{Priority: "urgent", Text: "Refer for clinical interview."},
			want: "urgent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name+"_toon", func(t *testing.T) {
			data, err := toon.Marshal(tt.data)
			if err != nil {
				t.Errorf("TOON marshal failed: %v", err)
				return
			}
			if !strings.Contains(string(data), tt.want) {
				t.Errorf("TOON output missing %q:\n%s", tt.want, data)
			}
		})
	}
}

// TestScoreResultJSONRoundTrip verifies a stored result decodes back unchanged.
func TestScoreResultJSONRoundTrip(t *testing.T) {
	original := sampleResult(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded ScoreResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.Gender != original.Gender {
		t.Errorf("Gender = %v, want %v", decoded.Gender, original.Gender)
	}
	if decoded.Validity.Verdict != original.Validity.Verdict {
		t.Errorf("Verdict = %v, want %v", decoded.Validity.Verdict, original.Validity.Verdict)
	}
	if !decoded.RawScores["worry"].Extrapolated {
		t.Error("extrapolated flag lost")
	}
	if !decoded.ScoredAt.Equal(original.ScoredAt) {
		t.Errorf("ScoredAt = %v, want %v", decoded.ScoredAt, original.ScoredAt)
	}
	if strings.Contains(string(data), `"insufficient_data"`) {
		t.Error("insufficient_data should be omitted when unset")
	}
}

// TestTextOutputFormat verifies types can be formatted as text for display.
func TestTextOutputFormat(t *testing.T) {
	tests := []struct {
		name   string
		format func() string
		want   string
	}{
		{
			name:   "Status_format",
			format: func() string { var buf bytes.Buffer; buf.WriteString(StatusCompleted.String()); return buf.String() },
			want:   "completed",
		},
		{
			name:   "Gender_format",
			format: func() string { var buf bytes.Buffer; buf.WriteString(GenderCombined.String()); return buf.String() },
			want:   "combined",
		},
		{
			name:   "Verdict_format",
			format: func() string { var buf bytes.Buffer; buf.WriteString(VerdictQuestionable.String()); return buf.String() },
			want:   "questionable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.format()
			if result != tt.want {
				t.Errorf("format() = %q, want %q", result, tt.want)
			}
		})
	}
}
