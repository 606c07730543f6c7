package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/razfaz/razfaz/internal/league"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// DetailOutput pairs a detail page with its scrape result
type DetailOutput struct {
	File   string             `json:"file"`
	Detail *league.GameDetail `json:"detail,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// WriteLeague writes a league in the specified format
func WriteLeague(w io.Writer, info *league.Info, format OutputFormat, verbose bool) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, info)
	case FormatText:
		return writeLeagueText(w, info, verbose)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// WriteDetails writes one entry per detail page, in the order of files
func WriteDetails(w io.Writer, files []string, results []league.DetailResult, format OutputFormat) error {
	out := make([]DetailOutput, len(results))
	for i, res := range results {
		out[i] = DetailOutput{Detail: res.Detail, Error: res.Error}
		if i < len(files) {
			out[i].File = files[i]
		}
	}

	switch format {
	case FormatJSON:
		return writeJSON(w, out)
	case FormatText:
		return writeDetailsText(w, out)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// writeJSON outputs v as indented JSON
func writeJSON(w io.Writer, v any) error {
	encoder := sonic.ConfigStd.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// writeLeagueText outputs a league as human-readable text
func writeLeagueText(w io.Writer, info *league.Info, verbose bool) error {
	name := info.Name
	if name == "" {
		name = "League"
	}
	fmt.Fprintf(w, "%s (%s)\n", name, info.LeagueID)
	if verbose {
		if info.SourceURL != "" {
			fmt.Fprintf(w, "Source: %s\n", info.SourceURL)
		}
		if !info.ScrapedAt.IsZero() {
			fmt.Fprintf(w, "Scraped: %s\n", info.ScrapedAt.Format(time.RFC3339))
		}
	}

	if len(info.Games) == 0 {
		fmt.Fprintln(w, "\nNo games found.")
	} else {
		played := 0
		fmt.Fprintf(w, "\nGames (%d):\n", len(info.Games))
		for _, g := range info.Games {
			result := g.Result
			if g.Played() {
				played++
			} else {
				result = "-"
			}
			fmt.Fprintf(w, "  %-6s %-14s %-5s %s - %s  %s\n",
				g.Number, g.DateText, g.Time, g.HomeTeam, g.AwayTeam, result)
			if verbose {
				if g.Venue != "" {
					fmt.Fprintf(w, "         Venue: %s\n", g.Venue)
				}
				if g.DetailURL != "" {
					fmt.Fprintf(w, "         Details: %s\n", g.DetailURL)
				}
			}
		}
		fmt.Fprintf(w, "\nPlayed: %d of %d\n", played, len(info.Games))
	}

	if len(info.Ranking) > 0 {
		fmt.Fprintf(w, "\nRanking:\n")
		for _, r := range info.Ranking {
			fmt.Fprintf(w, "  %2d. %-30s %2d games  %2d won  %2d lost  sets %-7s %3d pts\n",
				r.Rank, r.Team, r.Played, r.Won, r.Lost, r.Sets, r.Points)
		}
	}

	return nil
}

// writeDetailsText outputs detail results as human-readable text
func writeDetailsText(w io.Writer, out []DetailOutput) error {
	failed := 0
	for _, d := range out {
		label := filepath.Base(d.File)
		if d.Error != "" || d.Detail == nil {
			failed++
			fmt.Fprintf(w, "%s: %s\n", label, league.DetailErrorMarker)
			continue
		}

		fmt.Fprintf(w, "%s: game %s", label, d.Detail.GameID)
		if d.Detail.HomeTeam != "" || d.Detail.AwayTeam != "" {
			fmt.Fprintf(w, ", %s - %s", d.Detail.HomeTeam, d.Detail.AwayTeam)
		}
		fmt.Fprintln(w)
		for i, set := range d.Detail.Sets {
			fmt.Fprintf(w, "  Set %d: %d:%d\n", i+1, set.Home, set.Away)
		}
		if d.Detail.Venue != "" {
			fmt.Fprintf(w, "  Venue: %s\n", d.Detail.Venue)
		}
	}
	fmt.Fprintf(w, "\nTotal: %d pages, %d failed\n", len(out), failed)
	return nil
}
