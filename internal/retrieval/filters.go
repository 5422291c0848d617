package retrieval

import (
	"strings"
	"time"

	"github.com/lschiller/recapd/internal/record"
)

// impliedFilter derives structured search predicates from the query text, so
// the vector search and the exact-match narrowing run as one combined query.
//
// Only unambiguous relative date phrases are recognised; anything subtler is
// left to the similarity ranking. Contact narrowing is intentionally not
// attempted here — resolving a spoken name to a contact identifier belongs to
// the contact collaborator, not to string matching on the query.
func impliedFilter(query string, now time.Time) record.SearchFilter {
	q := strings.ToLower(query)
	var f record.SearchFilter

	day := 24 * time.Hour
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch {
	case strings.Contains(q, "today"):
		f.After = startOfDay
	case strings.Contains(q, "yesterday"):
		f.After = startOfDay.Add(-day)
		f.Before = startOfDay
	case strings.Contains(q, "this week"):
		f.After = startOfWeek(startOfDay)
	case strings.Contains(q, "last week"):
		thisWeek := startOfWeek(startOfDay)
		f.After = thisWeek.Add(-7 * day)
		f.Before = thisWeek
	case strings.Contains(q, "this month"):
		f.After = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	case strings.Contains(q, "last month"):
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		f.After = first.AddDate(0, -1, 0)
		f.Before = first
	}

	// "in the summaries" / "from the transcripts" style hints narrow the
	// unit type.
	hasSummary := strings.Contains(q, "summar")
	hasTranscript := strings.Contains(q, "transcript")
	switch {
	case hasSummary && !hasTranscript:
		f.Types = []record.UnitType{record.UnitSummary}
	case hasTranscript && !hasSummary:
		f.Types = []record.UnitType{record.UnitTranscript}
	}

	return f
}

// startOfWeek returns the Monday 00:00 of the week containing day.
func startOfWeek(day time.Time) time.Time {
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return day.AddDate(0, 0, -(weekday - 1))
}
