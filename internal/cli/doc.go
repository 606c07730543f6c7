// Package cli implements the command-line interface for razfaz.
//
// The cli package provides the Cobra-based CLI: serve runs the relay behind
// its HTTP transport, scrape and details parse league and game detail pages
// (text or JSON output, games sortable by number, date or home team), get
// loads a stored league and migrate prepares a Postgres schema. Settings are
// read from RAZFAZ_* environment variables and overridden by flags.
package cli
