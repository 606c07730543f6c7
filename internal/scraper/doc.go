// Package scraper provides HTTP fetching and HTML parsing for SVRZ volleyball league pages.
//
// A league page carries two tables: the game schedule (with results once a
// game is played) and the ranking. Both are located by their German header
// labels rather than by position, so column order and extra columns do not
// matter. A game's detail page adds set scores, referees and the venue
// address.
//
// Fetcher builds a league URL from its numeric group id, optionally routes the
// request through a CORS proxy prefix, and retries transient failures with
// exponential backoff before handing the body to the Scraper.
package scraper
