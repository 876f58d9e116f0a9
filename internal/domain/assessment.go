package domain

import "strings"

// OverallStatus is the submit/block status shown to a user.
type OverallStatus string

const (
	StatusReady       OverallStatus = "ready"
	StatusNeedsReview OverallStatus = "needs_review"
	StatusBlocked     OverallStatus = "blocked"
)

// ScoreBand buckets the clinical score for display.
type ScoreBand string

const (
	BandStrong       ScoreBand = "strong"
	BandModerate     ScoreBand = "moderate"
	BandHighRisk     ScoreBand = "high_risk"
	BandLikelyDenial ScoreBand = "likely_denial"
)

var statusRank = map[OverallStatus]int{
	StatusReady:       1,
	StatusNeedsReview: 2,
	StatusBlocked:     3,
}

var bandRank = map[ScoreBand]int{
	BandStrong:       1,
	BandModerate:     2,
	BandHighRisk:     3,
	BandLikelyDenial: 4,
}

// Restrictiveness orders statuses; unknown upstream values rank lowest.
func (s OverallStatus) Restrictiveness() int {
	return statusRank[OverallStatus(strings.ToLower(strings.TrimSpace(string(s))))]
}

// Restrictiveness orders bands; unknown upstream values rank lowest.
func (b ScoreBand) Restrictiveness() int {
	return bandRank[ScoreBand(strings.ToLower(strings.TrimSpace(string(b))))]
}

// StricterStatus returns whichever of a and b is more restrictive, preferring a on ties.
func StricterStatus(a, b OverallStatus) OverallStatus {
	if b.Restrictiveness() > a.Restrictiveness() {
		return b
	}
	return a
}

// StricterBand returns whichever of a and b is more restrictive, preferring a on ties.
func StricterBand(a, b ScoreBand) ScoreBand {
	if b.Restrictiveness() > a.Restrictiveness() {
		return b
	}
	return a
}

// NormalizeStatus maps upstream text onto a known status. Unknown or empty
// values become needs_review.
func NormalizeStatus(raw string) OverallStatus {
	s := OverallStatus(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := statusRank[s]; !ok {
		return StatusNeedsReview
	}
	return s
}

// NormalizeBand maps upstream text onto a known band; ok is false otherwise.
func NormalizeBand(raw string) (ScoreBand, bool) {
	b := ScoreBand(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := bandRank[b]
	return b, ok
}
