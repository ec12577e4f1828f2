package triage

import (
	"strings"
	"testing"
)

func TestParseAssessment_CleanObject(t *testing.T) {
	t.Parallel()

	raw := `{
		"urgencyLevel": 2,
		"suicideRisk": "low",
		"mainIssues": ["academic pressure", "insomnia"],
		"riskFactors": ["isolation"],
		"protectiveFactors": ["supportive friend"],
		"behavioralIndicators": ["withdrawn in class"],
		"emotionalState": "anxious",
		"recommendedApproach": "gentle check-in within 24h",
		"summary": "Hoc sinh ap luc hoc tap keo dai.",
		"priorityNote": "needs attention this week"
	}`

	a := ParseAssessment(raw)
	if a == nil {
		t.Fatal("expected assessment, got nil")
	}
	if a.UrgencyLevel != 2 {
		t.Errorf("UrgencyLevel = %d, want 2", a.UrgencyLevel)
	}
	if a.SuicideRisk != SuicideRiskLow {
		t.Errorf("SuicideRisk = %q, want %q", a.SuicideRisk, SuicideRiskLow)
	}
	if len(a.MainIssues) != 2 || a.MainIssues[0] != "academic pressure" {
		t.Errorf("MainIssues = %v", a.MainIssues)
	}
	if a.EmotionalState != "anxious" {
		t.Errorf("EmotionalState = %q, want %q", a.EmotionalState, "anxious")
	}
	if a.Summary == "" {
		t.Error("expected non-empty summary")
	}
	if a.PriorityNote != "needs attention this week" {
		t.Errorf("PriorityNote = %q", a.PriorityNote)
	}
}

func TestParseAssessment_WrappedInProse(t *testing.T) {
	t.Parallel()

	raw := "Here is my assessment:\n\n```json\n" +
		`{"urgencyLevel": 3, "suicideRisk": "high", "summary": "can ho tro ngay"}` +
		"\n```\n\nLet me know if you need more detail."

	a := ParseAssessment(raw)
	if a == nil {
		t.Fatal("expected assessment, got nil")
	}
	if a.UrgencyLevel != 3 {
		t.Errorf("UrgencyLevel = %d, want 3", a.UrgencyLevel)
	}
	if a.SuicideRisk != SuicideRiskHigh {
		t.Errorf("SuicideRisk = %q, want %q", a.SuicideRisk, SuicideRiskHigh)
	}
}

func TestParseAssessment_NoObject(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"",
		"I cannot assess this conversation.",
		"urgencyLevel: 3",
		"{ truncated before close",
	} {
		if a := ParseAssessment(raw); a != nil {
			t.Errorf("ParseAssessment(%q) = %+v, want nil", raw, a)
		}
	}
}

func TestParseAssessment_MalformedJSON(t *testing.T) {
	t.Parallel()

	if a := ParseAssessment(`{"urgencyLevel": 2,}`); a != nil {
		t.Errorf("expected nil for trailing comma, got %+v", a)
	}
}

func TestParseAssessment_UrgencyCoercion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"in range", `{"urgencyLevel": 1}`, 1},
		{"above max clamped", `{"urgencyLevel": 9}`, 3},
		{"negative clamped", `{"urgencyLevel": -2}`, 0},
		{"numeric string", `{"urgencyLevel": "2"}`, 2},
		{"numeric string padded", `{"urgencyLevel": " 3 "}`, 3},
		{"non-numeric string", `{"urgencyLevel": "high"}`, 0},
		{"float truncated", `{"urgencyLevel": 2.7}`, 2},
		{"missing", `{"summary": "x"}`, 0},
		{"null", `{"urgencyLevel": null}`, 0},
		{"wrong type", `{"urgencyLevel": [3]}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := ParseAssessment(tt.raw)
			if a == nil {
				t.Fatal("expected assessment, got nil")
			}
			if a.UrgencyLevel != tt.want {
				t.Errorf("UrgencyLevel = %d, want %d", a.UrgencyLevel, tt.want)
			}
		})
	}
}

func TestParseAssessment_SuicideRiskCoercion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want SuicideRisk
	}{
		{"valid", `{"suicideRisk": "medium"}`, SuicideRiskMedium},
		{"uppercase", `{"suicideRisk": "HIGH"}`, SuicideRiskHigh},
		{"padded", `{"suicideRisk": " low "}`, SuicideRiskLow},
		{"unknown value", `{"suicideRisk": "severe"}`, SuicideRiskNone},
		{"missing", `{}`, SuicideRiskNone},
		{"wrong type", `{"suicideRisk": 2}`, SuicideRiskNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := ParseAssessment(tt.raw)
			if a == nil {
				t.Fatal("expected assessment, got nil")
			}
			if a.SuicideRisk != tt.want {
				t.Errorf("SuicideRisk = %q, want %q", a.SuicideRisk, tt.want)
			}
		})
	}
}

func TestParseAssessment_ListCoercion(t *testing.T) {
	t.Parallel()

	a := ParseAssessment(`{"mainIssues": ["stress", 42, "sleep", null], "riskFactors": "not a list"}`)
	if a == nil {
		t.Fatal("expected assessment, got nil")
	}
	if len(a.MainIssues) != 2 || a.MainIssues[0] != "stress" || a.MainIssues[1] != "sleep" {
		t.Errorf("MainIssues = %v, want [stress sleep]", a.MainIssues)
	}
	if a.RiskFactors == nil || len(a.RiskFactors) != 0 {
		t.Errorf("RiskFactors = %v, want empty non-nil slice", a.RiskFactors)
	}
}

func TestFirstJSONObject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"prose prefix and suffix", `sure: {"a":1} done`, `{"a":1}`},
		{"nested braces", `{"a":{"b":2}}`, `{"a":{"b":2}}`},
		{"brace inside string", `{"a":"}{"}`, `{"a":"}{"}`},
		{"escaped quote inside string", `{"a":"say \"hi\" {"} tail`, `{"a":"say \"hi\" {"}`},
		{"first of two objects", `{"a":1} {"b":2}`, `{"a":1}`},
		{"no braces", "plain text", ""},
		{"unterminated", `{"a":1`, ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := firstJSONObject(tt.in); got != tt.want {
				t.Errorf("firstJSONObject(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func FuzzParseAssessment(f *testing.F) {
	f.Add(`{"urgencyLevel": 2, "suicideRisk": "low", "summary": "ok"}`)
	f.Add("no json here")
	f.Add(`{"urgencyLevel": "3"}`)
	f.Add(`{{{"a":}`)
	f.Add("```json\n{\"urgencyLevel\": 99}\n```")
	f.Add(`{"mainIssues": [1, "a", {"x": "}"}]}`)
	f.Add(strings.Repeat("{", 1000))

	f.Fuzz(func(t *testing.T, raw string) {
		// Must not panic, and any result must be in range.
		a := ParseAssessment(raw)
		if a == nil {
			return
		}
		if a.UrgencyLevel < UrgencyNormal || a.UrgencyLevel > UrgencyCritical {
			t.Errorf("UrgencyLevel = %d, out of range", a.UrgencyLevel)
		}
		switch a.SuicideRisk {
		case SuicideRiskNone, SuicideRiskLow, SuicideRiskMedium, SuicideRiskHigh:
		default:
			t.Errorf("SuicideRisk = %q, not a known level", a.SuicideRisk)
		}
		if a.MainIssues == nil || a.RiskFactors == nil {
			t.Error("list fields must be non-nil")
		}
	})
}
