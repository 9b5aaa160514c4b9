package usecase

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"CryptoScanner/internal/domain/models"
)

var (
	dateRe = regexp.MustCompile(`(?i)\b(?:\d{4}[-/]\d{1,2}[-/]\d{1,2}|(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)\w*\s+\d{1,2}|\d{1,2}/\d{1,2}/\d{4})\b`)
	numRe  = regexp.MustCompile(`[+\-]?\$?\d[\d,.]*[%$BMKbmk]?`)
	punct  = regexp.MustCompile(`[^\w\s]`)
	spaces = regexp.MustCompile(`\s+`)
)

// normalizeTitle canonicalizes an event title for fuzzy comparison:
// lowercase, strip dates, numbers and punctuation, sort the words.
func normalizeTitle(title string) string {
	t := strings.ToLower(title)
	t = dateRe.ReplaceAllString(t, "")
	t = numRe.ReplaceAllString(t, "")
	t = punct.ReplaceAllString(t, " ")
	t = strings.TrimSpace(spaces.ReplaceAllString(t, " "))
	words := strings.Fields(t)
	sort.Strings(words)
	return strings.Join(words, " ")
}

// titleSimilarity is the word-overlap ratio of two normalized titles,
// relative to the larger word set.
func titleSimilarity(a, b string) float64 {
	wa := strings.Fields(normalizeTitle(a))
	wb := strings.Fields(normalizeTitle(b))
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	set := make(map[string]bool, len(wa))
	for _, w := range wa {
		set[w] = true
	}
	overlap := 0
	seen := make(map[string]bool, len(wb))
	for _, w := range wb {
		if set[w] && !seen[w] {
			overlap++
			seen[w] = true
		}
	}
	max := len(wa)
	if len(wb) > max {
		max = len(wb)
	}
	return float64(overlap) / float64(max)
}

// sameOccurrence reports whether two events describe the same
// real-world fact: same token and type, similar titles, and scheduled
// dates within the tolerance window when both are known.
func sameOccurrence(a, b *models.Event, similarity float64, dateWindowDays int) bool {
	if a.Symbol != b.Symbol || a.Type != b.Type {
		return false
	}
	if titleSimilarity(a.Title, b.Title) < similarity {
		return false
	}
	if a.ScheduledAt != nil && b.ScheduledAt != nil {
		diff := a.ScheduledAt.Sub(*b.ScheduledAt)
		if diff < 0 {
			diff = -diff
		}
		if diff > time.Duration(dateWindowDays)*24*time.Hour {
			return false
		}
	}
	return true
}

func importanceRank(imp models.Importance) int {
	switch imp {
	case models.ImportanceHigh:
		return 2
	case models.ImportanceMedium:
		return 1
	default:
		return 0
	}
}

// dedupEvents merges near-duplicate events, keeping the
// highest-importance variant's outcome distribution as representative
// and recording the folded ids for traceability.
func dedupEvents(events []models.EventOutcomes, similarity float64, dateWindowDays int) []dedupedEvent {
	// highest importance first so representatives win merges
	ordered := append([]models.EventOutcomes(nil), events...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return importanceRank(ordered[i].Event.Importance) > importanceRank(ordered[j].Event.Importance)
	})

	var out []dedupedEvent
	for i := range ordered {
		ev := &ordered[i]
		merged := false
		for j := range out {
			if sameOccurrence(&out[j].Rep.Event, &ev.Event, similarity, dateWindowDays) {
				out[j].MergedIDs = append(out[j].MergedIDs, ev.Event.ID)
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, dedupedEvent{Rep: *ev})
		}
	}
	return out
}

type dedupedEvent struct {
	Rep       models.EventOutcomes
	MergedIDs []string
}
