package cli

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/razfaz/razfaz/internal/league"
)

// SortOrder represents the available sorting options
type SortOrder string

const (
	SortByNumber SortOrder = "number"
	SortByDate   SortOrder = "date"
	SortByTeam   SortOrder = "team"
)

// sortGames sorts games in place. An empty order keeps the page order.
func sortGames(games []league.Game, sortOrder SortOrder) {
	switch sortOrder {
	case SortByNumber:
		sort.SliceStable(games, func(i, j int) bool {
			return compareByNumber(&games[i], &games[j])
		})
	case SortByDate:
		sort.SliceStable(games, func(i, j int) bool {
			return compareByDate(&games[i], &games[j])
		})
	case SortByTeam:
		sort.SliceStable(games, func(i, j int) bool {
			hi, hj := strings.ToLower(games[i].HomeTeam), strings.ToLower(games[j].HomeTeam)
			if hi != hj {
				return hi < hj
			}
			// Same home team, sort by date
			return compareByDate(&games[i], &games[j])
		})
	}
}

// compareByNumber orders numeric game numbers numerically and puts them
// before non-numeric ones
func compareByNumber(i, j *league.Game) bool {
	ni, errI := strconv.Atoi(i.Number)
	nj, errJ := strconv.Atoi(j.Number)
	switch {
	case errI == nil && errJ == nil:
		return ni < nj
	case errI == nil:
		return true
	case errJ == nil:
		return false
	}
	return i.Number < j.Number
}

// compareByDate compares two games by their kick-off
// Returns true if game i should come before game j
func compareByDate(i, j *league.Game) bool {
	dateI := gameTime(i)
	dateJ := gameTime(j)

	// If both dates are valid, compare them
	if !dateI.IsZero() && !dateJ.IsZero() {
		if !dateI.Equal(dateJ) {
			return dateI.Before(dateJ)
		}
		return compareByNumber(i, j)
	}

	// If only one date is valid, put the valid one first
	if !dateI.IsZero() {
		return true
	}
	if !dateJ.IsZero() {
		return false
	}

	return compareByNumber(i, j)
}

func gameTime(g *league.Game) time.Time {
	if !g.Date.IsZero() {
		return g.Date
	}
	return league.ParseDateTime(g.DateText, g.Time)
}
