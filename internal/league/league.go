package league

import (
	"time"
)

// DetailErrorMarker is the sentinel placed in a DetailResult when a detail
// page could not be scraped.
const DetailErrorMarker = "error"

// Info represents a league with its games and ranking table
type Info struct {
	LeagueID  string         `json:"leagueId" validate:"required,numeric"`
	Name      string         `json:"name,omitempty"`
	Games     []Game         `json:"games" validate:"dive"`
	Ranking   []RankingEntry `json:"ranking" validate:"dive"`
	SourceURL string         `json:"sourceUrl,omitempty"`
	ScrapedAt time.Time      `json:"scrapedAt,omitempty"`

	// Rev is the last known store revision. It never leaves the process.
	Rev string `json:"-"`
}

// Game represents a single scheduled or played game
type Game struct {
	ID        string    `json:"id,omitempty"`
	Number    string    `json:"number"`
	DateText  string    `json:"dateText"`
	Date      time.Time `json:"date,omitempty"`
	Time      string    `json:"time,omitempty"`
	HomeTeam  string    `json:"homeTeam" validate:"required"`
	AwayTeam  string    `json:"awayTeam" validate:"required"`
	Venue     string    `json:"venue,omitempty"`
	Result    string    `json:"result,omitempty"`
	HomeSets  int       `json:"homeSets"`
	AwaySets  int       `json:"awaySets"`
	DetailURL string    `json:"detailUrl,omitempty"`
}

// Played reports whether the game has a result
func (g *Game) Played() bool {
	return g.Result != ""
}

// RankingEntry is one row of the league table
type RankingEntry struct {
	Rank   int    `json:"rank" validate:"gte=0"`
	Team   string `json:"team" validate:"required"`
	Played int    `json:"played"`
	Won    int    `json:"won"`
	Lost   int    `json:"lost"`
	Sets   string `json:"sets,omitempty"`
	Points int    `json:"points"`
}

// SetScore is the score of one set
type SetScore struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// GameDetail holds what a game's detail page adds to the schedule row
type GameDetail struct {
	GameID   string     `json:"gameId"`
	HomeTeam string     `json:"homeTeam,omitempty"`
	AwayTeam string     `json:"awayTeam,omitempty"`
	Sets     []SetScore `json:"sets"`
	Referees []string   `json:"referees,omitempty"`
	Venue    string     `json:"venue,omitempty"`
	Address  string     `json:"address,omitempty"`
}

// DetailResult is either a scraped detail or the error marker
type DetailResult struct {
	Detail *GameDetail `json:"detail,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// DetailOK wraps a successfully scraped detail
func DetailOK(d *GameDetail) DetailResult {
	return DetailResult{Detail: d}
}

// DetailFailed returns the sentinel result for a detail that could not be scraped
func DetailFailed() DetailResult {
	return DetailResult{Error: DetailErrorMarker}
}

// Failed reports whether r is the error marker
func (r DetailResult) Failed() bool {
	return r.Error != ""
}
