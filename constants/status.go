package constants

import "strings"

// SubmissionStatus is the canonical status for rows in image_submissions.
type SubmissionStatus string

// Stable values (store these exact strings in DB).
const (
	SubmissionStatusPending   SubmissionStatus = "pending"   // reserved for deferred processing
	SubmissionStatusProcessed SubmissionStatus = "processed" // text extracted
	SubmissionStatusFailed    SubmissionStatus = "failed"    // no strategy produced text
)

// Valid reports whether s is one of the known statuses.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionStatusPending, SubmissionStatusProcessed, SubmissionStatusFailed:
		return true
	}
	return false
}

// Quality is the ordinal classification of an extraction.
type Quality string

const (
	QualityGood Quality = "good"
	QualityFair Quality = "fair"
	QualityPoor Quality = "poor"
)

var allQualities = []Quality{QualityGood, QualityFair, QualityPoor}

// ParseQuality maps a stored string back to a Quality.
func ParseQuality(s string) (Quality, bool) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	for _, q := range allQualities {
		if normalized == string(q) {
			return q, true
		}
	}
	return "", false
}

// Rank orders qualities so that poor < fair < good. Unknown values rank below poor.
func (q Quality) Rank() int {
	switch q {
	case QualityGood:
		return 3
	case QualityFair:
		return 2
	case QualityPoor:
		return 1
	}
	return 0
}
