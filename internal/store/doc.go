// Package store provides revisioned JSON document storage keyed by id.
//
// Every backend follows CouchDB's optimistic concurrency rules: a document
// carries a revision token of the form "<generation>-<md5 of body>", an
// insert must not name a revision, and an update must name the current one.
// Anything else fails with ErrConflict. Reads and deletes of unknown ids
// fail with ErrNotFound.
//
// FileStore is the default and keeps one file per document under
// ~/.local/share/razfaz/. CouchStore speaks the CouchDB HTTP API.
// PostgresStore keeps documents in a JSONB table whose schema is applied
// by Migrate. MemoryStore is for tests and throwaway runs.
package store
