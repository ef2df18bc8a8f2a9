package verify

import (
	"sort"
)

// CommonFailureRatio is the share of results a failure must appear in to be
// reported as common
const CommonFailureRatio = 0.3

// FailureStat counts how often one failure category occurred
type FailureStat struct {
	Category string  `json:"category"`
	Count    int     `json:"count"`
	Percent  float64 `json:"percent"`
}

// Summary aggregates a batch of verification results
type Summary struct {
	Total          int           `json:"total"`
	Passed         int           `json:"passed"`
	Failed         int           `json:"failed"`
	AverageScore   float64       `json:"average_score"`
	PassRate       float64       `json:"pass_rate"`
	CommonFailures []FailureStat `json:"common_failures,omitempty"`
}

// Summarize totals a batch and lists failure categories present in more than
// 30% of results, most frequent first
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	if len(results) == 0 {
		return s
	}

	counts := make(map[string]int)
	var sum float64
	for _, r := range results {
		sum += r.Score
		if r.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
		// each category counts once per result
		seen := make(map[string]bool)
		for _, c := range r.FailedChecks() {
			seen[c.Name] = true
		}
		if r.HasFlag(FlagQualitativeMissing) {
			seen[FlagQualitativeMissing] = true
		}
		if r.HasFlag(FlagJudgeMismatch) {
			seen[FlagJudgeMismatch] = true
		}
		for cat := range seen {
			counts[cat]++
		}
	}
	s.AverageScore = round2(sum / float64(len(results)))
	s.PassRate = round2(float64(s.Passed) / float64(len(results)) * 100)

	for cat, n := range counts {
		ratio := float64(n) / float64(len(results))
		if ratio > CommonFailureRatio {
			s.CommonFailures = append(s.CommonFailures, FailureStat{
				Category: cat, Count: n, Percent: round2(ratio * 100),
			})
		}
	}
	sort.Slice(s.CommonFailures, func(i, j int) bool {
		a, b := s.CommonFailures[i], s.CommonFailures[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Category < b.Category
	})
	return s
}
