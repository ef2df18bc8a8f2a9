package verify

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"mapforge/pkg/engine/world"
)

// Judgment is the qualitative opinion of an external judge on how well a
// rendered map fits its prompt
type Judgment struct {
	Matches    bool     `json:"matches"`
	Confidence float64  `json:"confidence"`
	Positive   []string `json:"positive"`
	Negative   []string `json:"negative"`
}

// rawJudgment accepts the key spellings judges actually produce
type rawJudgment struct {
	Matches         *bool           `json:"matches"`
	MatchesRequest  *bool           `json:"matches_request"`
	Confidence      json.RawMessage `json:"confidence"`
	Score           json.RawMessage `json:"score"`
	Positive        []string        `json:"positive"`
	PositiveAspects []string        `json:"positive_aspects"`
	Negative        []string        `json:"negative"`
	NegativeAspects []string        `json:"negative_aspects"`
	Issues          []string        `json:"issues"`
	MissingElements []string        `json:"missing_elements"`
}

// ParseJudgment extracts a judgment from a judge's reply. The reply may wrap
// the JSON object in a ```json fence or surround it with prose. A missing or
// out-of-range confidence is a JudgmentParseError.
func ParseJudgment(reply string) (Judgment, error) {
	body := extractObject(reply)
	if body == "" {
		return Judgment{}, world.Errorf(world.KindJudgmentParse, "no JSON object in judge reply")
	}
	var raw rawJudgment
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Judgment{}, world.Wrap(world.KindJudgmentParse, err, "decode judge reply")
	}

	conf, ok := number(raw.Confidence)
	if !ok {
		conf, ok = number(raw.Score)
	}
	if !ok {
		return Judgment{}, world.Errorf(world.KindJudgmentParse, "judge reply has no numeric confidence")
	}
	if math.IsNaN(conf) || conf < 1 || conf > 10 {
		return Judgment{}, world.Errorf(world.KindJudgmentParse, "confidence %.2f outside 1-10", conf)
	}

	j := Judgment{Confidence: conf}
	switch {
	case raw.Matches != nil:
		j.Matches = *raw.Matches
	case raw.MatchesRequest != nil:
		j.Matches = *raw.MatchesRequest
	default:
		j.Matches = conf >= 5
	}
	j.Positive = firstNonEmpty(raw.Positive, raw.PositiveAspects)
	j.Negative = firstNonEmpty(raw.Negative, raw.NegativeAspects, raw.Issues)
	j.Negative = append(j.Negative, raw.MissingElements...)
	return j, nil
}

// extractObject returns the outermost {...} span after stripping code fences
func extractObject(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		rest = strings.TrimPrefix(rest, "JSON")
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		s = rest
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

func number(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "/10")), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func firstNonEmpty(lists ...[]string) []string {
	for _, l := range lists {
		if len(l) > 0 {
			return append([]string(nil), l...)
		}
	}
	return nil
}
