// Package leadtime ranks supplier lead-time labels against a fixed list of
// canonical buckets and picks the slowest one for a quote.
package leadtime

import "strings"

// Buckets is ordered from fastest to slowest.
var Buckets = []string{
	"In Stock",
	"1 week",
	"1-2 weeks",
	"2-3 weeks",
	"2-4 weeks",
	"3-4 weeks",
	"4-6 weeks",
	"6-8 weeks",
	"8+ weeks",
}

// LongThreshold is the bucket index from which a lead time is flagged as long.
const LongThreshold = 6

// Index returns the position of the first bucket contained in label
// (case-insensitive), or -1 when none match.
func Index(label string) int {
	l := strings.ToLower(label)
	for i, b := range Buckets {
		if strings.Contains(l, strings.ToLower(b)) {
			return i
		}
	}
	return -1
}

// Aggregate returns the slowest label in labels, unchanged. Blank labels are skipped, ties
// keep the first label seen, and a label that matches no bucket is only used
// while nothing else has been selected.
func Aggregate(labels []string) string {
	best := ""
	bestIdx := -1
	for _, label := range labels {
		trimmed := strings.TrimSpace(label)
		if trimmed == "" {
			continue
		}
		idx := Index(trimmed)
		switch {
		case idx > bestIdx:
			best, bestIdx = label, idx
		case idx < 0 && best == "":
			best = label
		}
	}
	return best
}

// IsLong reports whether label falls in a bucket at or beyond LongThreshold.
func IsLong(label string) bool {
	return Index(label) >= LongThreshold
}
