package store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
)

var (
	// ErrNotFound is returned when no document exists for an id
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when a write carries a stale or unexpected revision
	ErrConflict = errors.New("document update conflict")
	// ErrInvalidID is returned for an empty document id
	ErrInvalidID = errors.New("invalid document id")
)

// codec sorts map keys so equal bodies hash to equal revisions, and keeps
// numbers as json.Number so metadata splitting does not round them.
var codec = sonic.Config{
	EscapeHTML:       true,
	SortMapKeys:      true,
	CompactMarshaler: true,
	CopyString:       true,
	ValidateString:   true,
	UseNumber:        true,
}.Froze()

// Document is one stored JSON document. Body holds the payload without
// the _id and _rev metadata.
type Document struct {
	ID   string
	Rev  string
	Body []byte
}

// Store is a revisioned document store keyed by id.
//
// Put inserts when doc.Rev is empty and updates when doc.Rev matches the
// current revision. Any other combination fails with ErrConflict.
type Store interface {
	Get(ctx context.Context, id string) (Document, error)
	Put(ctx context.Context, doc Document) (string, error)
	Delete(ctx context.Context, id, rev string) error
	Close() error
}

// NextRev returns the revision following prev for body, in the
// "<generation>-<md5>" form.
func NextRev(prev string, body []byte) string {
	sum := md5.Sum(body)
	return fmt.Sprintf("%d-%s", Generation(prev)+1, hex.EncodeToString(sum[:]))
}

// Generation returns the numeric prefix of rev, or 0 if it has none
func Generation(rev string) int {
	prefix, _, _ := strings.Cut(rev, "-")
	n, err := strconv.Atoi(prefix)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// checkWrite applies the revision rules shared by the in-process backends
func checkWrite(id string, current Document, exists bool, rev string) error {
	switch {
	case id == "":
		return ErrInvalidID
	case !exists && rev != "":
		return errors.Wrapf(ErrConflict, "document %s does not exist", id)
	case exists && rev != current.Rev:
		return errors.Wrapf(ErrConflict, "document %s is at revision %s", id, current.Rev)
	}
	return nil
}

// mergeMeta embeds _id and _rev into a JSON object body
func mergeMeta(body []byte, id, rev string) ([]byte, error) {
	fields := map[string]any{}
	if len(body) > 0 {
		if err := codec.Unmarshal(body, &fields); err != nil {
			return nil, errors.Wrap(err, "document body is not a JSON object")
		}
	}
	fields["_id"] = id
	if rev != "" {
		fields["_rev"] = rev
	} else {
		delete(fields, "_rev")
	}
	return codec.Marshal(fields)
}

// splitMeta is the inverse of mergeMeta
func splitMeta(raw []byte) (Document, error) {
	fields := map[string]any{}
	if err := codec.Unmarshal(raw, &fields); err != nil {
		return Document{}, errors.Wrap(err, "decoding document")
	}
	return splitFields(fields)
}

func splitFields(fields map[string]any) (Document, error) {
	var doc Document
	doc.ID, _ = fields["_id"].(string)
	doc.Rev, _ = fields["_rev"].(string)
	delete(fields, "_id")
	delete(fields, "_rev")
	body, err := codec.Marshal(fields)
	if err != nil {
		return Document{}, errors.Wrap(err, "encoding document body")
	}
	doc.Body = body
	return doc, nil
}
