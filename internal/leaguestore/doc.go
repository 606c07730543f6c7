// Package leaguestore persists league.Info documents in a store.Store.
//
// Save emulates compare-and-swap the way a browser PouchDB client does: it
// reads the current document first, then either inserts or updates with the
// revision it just read. The read and the write are separate calls, so a
// concurrent writer can still win and the update then fails with
// store.ErrConflict. Save never retries; the outcome is logged and returned
// as a SaveResult.
//
// Load decodes strictly. A document that no longer matches league.Info is
// deleted and reported as ErrSchemaChanged so the caller can scrape again.
package leaguestore
