package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dghubble/sling"
)

// CouchStore talks to a CouchDB (or PouchDB server) database over HTTP
type CouchStore struct {
	base *sling.Sling
	db   string
}

// couchError is the error body CouchDB returns, e.g.
// {"error":"not_found","reason":"missing"}
type couchError struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

type couchWriteResult struct {
	OK  bool   `json:"ok"`
	ID  string `json:"id"`
	Rev string `json:"rev"`
}

type revParams struct {
	Rev string `url:"rev"`
}

type sonicDecoder struct{}

func (sonicDecoder) Decode(resp *http.Response, v interface{}) error {
	return codec.NewDecoder(resp.Body).Decode(v)
}

// NewCouchStore creates a CouchStore for database db on the server at baseURL.
// Credentials may be given as userinfo in baseURL.
func NewCouchStore(baseURL, db string, client *http.Client) (*CouchStore, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Newf("invalid CouchDB URL %q", baseURL)
	}
	if db == "" {
		return nil, errors.New("CouchDB database name is required")
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	base := sling.New().
		Client(client).
		Base(u.String()).
		Set("Accept", "application/json").
		ResponseDecoder(sonicDecoder{})

	return &CouchStore{base: base, db: db}, nil
}

func (c *CouchStore) docPath(id string) string {
	return url.PathEscape(c.db) + "/" + url.PathEscape(id)
}

// EnsureDatabase creates the database if it does not exist yet
func (c *CouchStore) EnsureDatabase(ctx context.Context) error {
	var failure couchError
	resp, err := c.do(ctx, c.base.New().Put(url.PathEscape(c.db)), nil, &failure)
	if err != nil {
		return errors.Wrapf(err, "creating database %s", c.db)
	}
	switch resp.StatusCode {
	case http.StatusCreated, http.StatusAccepted, http.StatusPreconditionFailed:
		return nil
	}
	return statusError("create database "+c.db, resp.StatusCode, failure)
}

func (c *CouchStore) Get(ctx context.Context, id string) (Document, error) {
	if id == "" {
		return Document{}, ErrInvalidID
	}

	fields := map[string]any{}
	var failure couchError
	resp, err := c.do(ctx, c.base.New().Get(c.docPath(id)), &fields, &failure)
	if err != nil {
		return Document{}, errors.Wrapf(err, "get %s", id)
	}
	if resp.StatusCode != http.StatusOK {
		return Document{}, statusError("get "+id, resp.StatusCode, failure)
	}

	doc, err := splitFields(fields)
	if err != nil {
		return Document{}, errors.Wrapf(err, "get %s", id)
	}
	doc.ID = id
	return doc, nil
}

func (c *CouchStore) Put(ctx context.Context, doc Document) (string, error) {
	if doc.ID == "" {
		return "", ErrInvalidID
	}

	payload, err := mergeMeta(doc.Body, doc.ID, doc.Rev)
	if err != nil {
		return "", err
	}

	var result couchWriteResult
	var failure couchError
	req := c.base.New().
		Put(c.docPath(doc.ID)).
		Set("Content-Type", "application/json").
		Body(bytes.NewReader(payload))
	resp, err := c.do(ctx, req, &result, &failure)
	if err != nil {
		return "", errors.Wrapf(err, "put %s", doc.ID)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return "", statusError("put "+doc.ID, resp.StatusCode, failure)
	}
	return result.Rev, nil
}

func (c *CouchStore) Delete(ctx context.Context, id, rev string) error {
	if id == "" {
		return ErrInvalidID
	}

	var failure couchError
	req := c.base.New().Delete(c.docPath(id)).QueryStruct(revParams{Rev: rev})
	resp, err := c.do(ctx, req, nil, &failure)
	if err != nil {
		return errors.Wrapf(err, "delete %s", id)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return statusError("delete "+id, resp.StatusCode, failure)
	}
	return nil
}

func (c *CouchStore) Close() error { return nil }

func (c *CouchStore) do(ctx context.Context, s *sling.Sling, success, failure interface{}) (*http.Response, error) {
	req, err := s.Request()
	if err != nil {
		return nil, err
	}
	resp, err := s.Do(req.WithContext(ctx), success, failure)
	if resp == nil {
		return nil, err
	}
	// An undecodable error body still leaves the status to report
	if err != nil && resp.StatusCode < http.StatusMultipleChoices && !errors.Is(err, io.EOF) {
		return resp, err
	}
	return resp, nil
}

func statusError(op string, status int, failure couchError) error {
	msg := fmt.Sprintf("couchdb %s: status %d", op, status)
	if failure.Error != "" {
		msg += fmt.Sprintf(" (%s: %s)", failure.Error, failure.Reason)
	}
	switch status {
	case http.StatusNotFound:
		return errors.Wrap(ErrNotFound, msg)
	case http.StatusConflict:
		return errors.Wrap(ErrConflict, msg)
	}
	return errors.Newf("%s", msg)
}
