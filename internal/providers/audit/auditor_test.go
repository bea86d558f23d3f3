package audit

import (
	"strings"
	"testing"
)

func TestParseVerdict(t *testing.T) {
	raw := `{"clothing_changed":true,"matches_input_garments":true,"visual_quality_score":82.5,"issues":["sleeve blur"],"summary":"Good swap."}`
	report, err := parseVerdict(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !report.ClothingChanged || !report.MatchesInputGarments {
		t.Fatal("boolean findings not carried through")
	}
	if report.VisualQualityScore != 82.5 {
		t.Fatalf("score = %v, want 82.5", report.VisualQualityScore)
	}
	if len(report.Issues) != 1 || report.Issues[0] != "sleeve blur" {
		t.Fatalf("issues = %v", report.Issues)
	}
	if report.Summary != "Good swap." {
		t.Fatalf("summary = %q", report.Summary)
	}
}

func TestParseVerdictStripsCodeFence(t *testing.T) {
	raw := "```json\n{\"clothing_changed\":false,\"matches_input_garments\":false,\"visual_quality_score\":30,\"issues\":[],\"summary\":\"unchanged\"}\n```"
	report, err := parseVerdict(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if report.ClothingChanged {
		t.Fatal("expected clothing_changed=false")
	}
	if report.VisualQualityScore != 30 {
		t.Fatalf("score = %v, want 30", report.VisualQualityScore)
	}
}

func TestParseVerdictIgnoresSurroundingProse(t *testing.T) {
	raw := "Here is my assessment:\n{\"clothing_changed\":true,\"matches_input_garments\":true,\"visual_quality_score\":91,\"issues\":[],\"summary\":\"clean\"}\nLet me know if you need more detail."
	report, err := parseVerdict(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if report.VisualQualityScore != 91 {
		t.Fatalf("score = %v, want 91", report.VisualQualityScore)
	}
}

func TestParseVerdictRejectsBadPayloads(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", "", "empty"},
		{"prose only", "I cannot evaluate this image.", "decode"},
		{"missing key", `{"clothing_changed":true,"visual_quality_score":70}`, "matches_input_garments"},
		{"score too high", `{"clothing_changed":true,"matches_input_garments":true,"visual_quality_score":250}`, "out of range"},
		{"malformed", "```json\n{\"clothing_changed\":\n```", "decode"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseVerdict(tc.raw)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
