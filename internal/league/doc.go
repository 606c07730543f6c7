// Package league provides the types exchanged between the scraper, the store
// and the UI layer for a single SVRZ volleyball league.
//
// A league is identified by the numeric group id used on the league website.
// Info bundles the league's games and ranking table; GameDetail carries the
// per-game set scores scraped from a game's detail page. DetailResult is the
// per-item success/error variant returned for batched detail scrapes.
package league
