// scraper/period.go
package scraper

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Matches "June 2023", "june2023", "SEPTEMBER  2021". Full month names only.
var periodRegex = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December)\s*(\d{4})\b`)

var monthsByName = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

// ParsePeriod finds the first month-and-year token in text and returns the
// first day of that month (UTC). ok is false when there is no token.
func ParsePeriod(text string) (period time.Time, rawMatch string, ok bool) {
	matches := periodRegex.FindStringSubmatch(text)
	if len(matches) < 3 {
		return time.Time{}, "", false
	}
	month, found := monthsByName[strings.ToLower(matches[1])]
	if !found {
		return time.Time{}, "", false
	}
	year, err := strconv.Atoi(matches[2])
	if err != nil {
		return time.Time{}, "", false
	}
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC), matches[0], true
}
