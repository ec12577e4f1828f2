package triage

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ParseAssessment extracts a validated Assessment from a raw model
// completion. The backend is instructed to answer with a single JSON
// object, but in practice wraps it in prose, markdown fences, or emits
// fields with the wrong type. This function is total: it returns nil when
// no decodable object is present and coerces every field independently,
// so a malformed completion can never take the caller down.
func ParseAssessment(raw string) *Assessment {
	block := firstJSONObject(raw)
	if block == "" {
		return nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(block), &fields); err != nil {
		return nil
	}

	return &Assessment{
		UrgencyLevel:         clampUrgency(coerceInt(fields["urgencyLevel"])),
		SuicideRisk:          coerceSuicideRisk(fields["suicideRisk"]),
		MainIssues:           coerceStrings(fields["mainIssues"]),
		RiskFactors:          coerceStrings(fields["riskFactors"]),
		ProtectiveFactors:    coerceStrings(fields["protectiveFactors"]),
		BehavioralIndicators: coerceStrings(fields["behavioralIndicators"]),
		EmotionalState:       coerceString(fields["emotionalState"]),
		RecommendedApproach:  coerceString(fields["recommendedApproach"]),
		Summary:              coerceString(fields["summary"]),
		PriorityNote:         coerceString(fields["priorityNote"]),
	}
}

// firstJSONObject returns the first top-level brace-delimited block in s,
// or "" if none is found. Braces inside JSON strings are ignored.
func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func clampUrgency(n int) int {
	if n < UrgencyNormal {
		return UrgencyNormal
	}
	if n > UrgencyCritical {
		return UrgencyCritical
	}
	return n
}

func coerceInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func coerceSuicideRisk(v any) SuicideRisk {
	s, _ := v.(string)
	switch r := SuicideRisk(strings.ToLower(strings.TrimSpace(s))); r {
	case SuicideRiskNone, SuicideRiskLow, SuicideRiskMedium, SuicideRiskHigh:
		return r
	default:
		return SuicideRiskNone
	}
}

func coerceStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func coerceString(v any) string {
	s, _ := v.(string)
	return s
}
