package scraper

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/razfaz/razfaz/internal/league"
)

var (
	// ErrNoLeagueID is returned when a league page carries no group id
	ErrNoLeagueID = errors.New("no league id found in page")
	// ErrNotLeaguePage is returned when neither a games nor a ranking table is present
	ErrNotLeaguePage = errors.New("page has no games or ranking table")
	// ErrNotDetailPage is returned when a page has neither a game id nor a sets table
	ErrNotDetailPage = errors.New("page is not a game detail page")
)

var (
	leagueIDPattern = regexp.MustCompile(`group_ID=(\d+)`)
	gameIDPattern   = regexp.MustCompile(`game_ID=(\d+)`)
	digitsPattern   = regexp.MustCompile(`\d+`)
)

// Column labels as printed on the league site
const (
	colNumber   = "nr"
	colDate     = "datum"
	colTime     = "zeit"
	colHome     = "heimteam"
	colAway     = "gastteam"
	colVenue    = "halle"
	colResult   = "resultat"
	colRank     = "rang"
	colTeam     = "team"
	colPlayed   = "spiele"
	colWon      = "siege"
	colLost     = "niederlagen"
	colSets     = "sätze"
	colPoints   = "punkte"
	colSetNo    = "satz"
	colSetHome  = "heim"
	colSetGuest = "gast"
)

// Scraper turns league and game detail HTML into league types
type Scraper struct {
	now func() time.Time
}

// New creates a new Scraper instance
func New() *Scraper {
	return &Scraper{now: time.Now}
}

// Scrape parses a league page
func (s *Scraper) Scrape(r io.Reader) (*league.Info, error) {
	return s.parseLeague(r, "")
}

// ScrapeDetail parses a game detail page
func (s *Scraper) ScrapeDetail(r io.Reader) (*league.GameDetail, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	detail := &league.GameDetail{Sets: make([]league.SetScore, 0)}

	// Label/value rows: "Schiedsrichter: | Muster, Beispiel"
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("th, td")
		if cells.Length() < 2 {
			return
		}
		value := cleanText(cells.Eq(1).Text())
		switch normalizeLabel(cells.Eq(0).Text()) {
		case "spiel-nr", "spielnummer":
			detail.GameID = digitsPattern.FindString(value)
		case colHome:
			detail.HomeTeam = value
		case colAway:
			detail.AwayTeam = value
		case "schiedsrichter":
			detail.Referees = splitNames(value)
		case colVenue:
			detail.Venue = value
		case "adresse":
			detail.Address = value
		}
	})

	if detail.GameID == "" {
		detail.GameID = findGameID(doc)
	}

	sets, hasSets := findTable(doc.Selection, colSetNo, colSetHome, colSetGuest)
	if hasSets {
		for _, row := range sets.rows {
			// Skip the totals row and anything else without a set number
			if _, err := strconv.Atoi(sets.cell(row, colSetNo)); err != nil {
				continue
			}
			home, errHome := strconv.Atoi(sets.cell(row, colSetHome))
			away, errAway := strconv.Atoi(sets.cell(row, colSetGuest))
			if errHome != nil || errAway != nil {
				continue
			}
			detail.Sets = append(detail.Sets, league.SetScore{Home: home, Away: away})
		}
	}

	if detail.GameID == "" && !hasSets {
		return nil, ErrNotDetailPage
	}

	return detail, nil
}

// parseLeague extracts a league from HTML. Relative game links are resolved
// against sourceURL when it is set.
func (s *Scraper) parseLeague(r io.Reader, sourceURL string) (*league.Info, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	gamesTable, hasGames := findTable(doc.Selection, colDate, colHome, colAway)
	rankingTable, hasRanking := findTable(doc.Selection, colRank, colTeam)
	if !hasGames && !hasRanking {
		return nil, ErrNotLeaguePage
	}

	info := &league.Info{
		LeagueID:  findLeagueID(doc),
		Name:      cleanText(doc.Find("h1").First().Text()),
		Games:     make([]league.Game, 0),
		Ranking:   make([]league.RankingEntry, 0),
		SourceURL: sourceURL,
		ScrapedAt: s.now().UTC(),
	}

	var base *url.URL
	if sourceURL != "" {
		base, _ = url.Parse(sourceURL)
	}

	if hasGames {
		for _, row := range gamesTable.rows {
			if g, ok := parseGameRow(gamesTable, row, base); ok {
				info.Games = append(info.Games, g)
			}
		}
	}

	if hasRanking {
		for _, row := range rankingTable.rows {
			if e, ok := parseRankingRow(rankingTable, row); ok {
				info.Ranking = append(info.Ranking, e)
			}
		}
	}

	if info.LeagueID == "" {
		return info, ErrNoLeagueID
	}

	return info, nil
}

func parseGameRow(t *headerTable, row *goquery.Selection, base *url.URL) (league.Game, bool) {
	g := league.Game{
		Number:   t.cell(row, colNumber),
		DateText: t.cell(row, colDate),
		Time:     t.cell(row, colTime),
		HomeTeam: t.cell(row, colHome),
		AwayTeam: t.cell(row, colAway),
		Venue:    t.cell(row, colVenue),
		Result:   t.cell(row, colResult),
	}
	// Round headers and spacer rows have no teams
	if g.HomeTeam == "" || g.AwayTeam == "" {
		return g, false
	}

	g.Date = league.ParseDateTime(g.DateText, g.Time)

	if home, away, ok := league.ParseScore(g.Result); ok {
		g.HomeSets, g.AwaySets = home, away
	} else {
		// "-:-" and friends mean not played yet
		g.Result = ""
	}

	row.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		m := gameIDPattern.FindStringSubmatch(href)
		if m == nil {
			return true
		}
		g.ID = m[1]
		g.DetailURL = resolve(base, href)
		return false
	})

	return g, true
}

func parseRankingRow(t *headerTable, row *goquery.Selection) (league.RankingEntry, bool) {
	e := league.RankingEntry{
		Rank:   atoi(t.cell(row, colRank)),
		Team:   t.cell(row, colTeam),
		Played: atoi(t.cell(row, colPlayed)),
		Won:    atoi(t.cell(row, colWon)),
		Lost:   atoi(t.cell(row, colLost)),
		Sets:   t.cell(row, colSets),
		Points: atoi(t.cell(row, colPoints)),
	}
	return e, e.Team != ""
}

// findLeagueID looks for group_ID in links, form actions and hidden inputs
func findLeagueID(doc *goquery.Document) string {
	if v, ok := doc.Find(`input[name="group_ID"]`).First().Attr("value"); ok {
		if id := digitsPattern.FindString(v); id != "" {
			return id
		}
	}
	return findInAttrs(doc, leagueIDPattern)
}

// findGameID reads the game id from a detail page's hidden input or canonical
// link. Plain links are ignored since league pages link to every game.
func findGameID(doc *goquery.Document) string {
	if v, ok := doc.Find(`input[name="game_ID"]`).First().Attr("value"); ok {
		if id := digitsPattern.FindString(v); id != "" {
			return id
		}
	}
	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		if m := gameIDPattern.FindStringSubmatch(href); m != nil {
			return m[1]
		}
	}
	return ""
}

// findInAttrs returns the first capture of pattern in any href, action or src attribute
func findInAttrs(doc *goquery.Document, pattern *regexp.Regexp) string {
	var id string
	doc.Find("[href], [action], [src]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		for _, attr := range []string{"href", "action", "src"} {
			v, ok := sel.Attr(attr)
			if !ok {
				continue
			}
			if m := pattern.FindStringSubmatch(v); m != nil {
				id = m[1]
				return false
			}
		}
		return true
	})
	return id
}

// URLFromLeagueID fills a league URL template such as
// "https://www.svrz.ch/index.php?id=73&nextPage=2&group_ID=%s"
func URLFromLeagueID(template, leagueID string) string {
	return fmt.Sprintf(template, url.QueryEscape(leagueID))
}

func resolve(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// atoi parses the leading integer of s ("1." -> 1), returning 0 if there is none
func atoi(s string) int {
	n, err := strconv.Atoi(digitsPattern.FindString(s))
	if err != nil {
		return 0
	}
	return n
}

func splitNames(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '/' || r == ';' })
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			names = append(names, f)
		}
	}
	return names
}
