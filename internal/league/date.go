package league

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Zurich is the timezone game dates are published in. Falls back to UTC when
// the tz database is unavailable.
var Zurich = loadZurich()

func loadZurich() *time.Location {
	loc, err := time.LoadLocation("Europe/Zurich")
	if err != nil {
		return time.UTC
	}
	return loc
}

// weekdayPrefix matches the abbreviated weekday the league site puts in front of dates ("Sa 01.10.2016")
var weekdayPrefix = regexp.MustCompile(`^(?i)(mo|di|mi|do|fr|sa|so)\.?\s+`)

// ParseDate attempts to parse a game's date text into a time.Time.
// Returns time.Time{} (zero value) if parsing fails.
// Supports formats: "01.10.2016", "1.10.2016", "01.10.16", "Sa 01.10.2016"
func ParseDate(dateText string) time.Time {
	dateText = strings.TrimSpace(weekdayPrefix.ReplaceAllString(strings.TrimSpace(dateText), ""))
	if dateText == "" {
		return time.Time{}
	}

	for _, layout := range []string{"02.01.2006", "2.1.2006", "02.01.06", "2.1.06"} {
		if t, err := time.ParseInLocation(layout, dateText, Zurich); err == nil {
			return t
		}
	}

	return time.Time{}
}

// ParseDateTime combines a date and an "HH:MM" kick-off time. A missing or
// unparseable time leaves the date at midnight.
func ParseDateTime(dateText, clock string) time.Time {
	d := ParseDate(dateText)
	if d.IsZero() {
		return d
	}
	t, err := time.Parse("15:04", strings.TrimSpace(clock))
	if err != nil {
		return d
	}
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, d.Location())
}

// ParseScore splits a "3:1" style score. ok is false for anything else,
// including the empty string of an unplayed game.
func ParseScore(text string) (home, away int, ok bool) {
	parts := strings.Split(strings.TrimSpace(text), ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	home, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, false
	}
	away, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, false
	}
	return home, away, true
}
