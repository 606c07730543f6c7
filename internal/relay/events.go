package relay

import (
	"context"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
)

// Inbound event names, sent by the UI
const (
	EventScrapeLeagueFromHTML       = "scrapeLeagueFromHtml"
	EventScrapeGamesDetailsFromHTML = "scrapeGamesDetailsFromHtml"
	EventGetFromCouchDB             = "getFromCouchDb"
	EventFetchLeague                = "fetchLeague"
	EventHashChange                 = "hashchange"
)

// Outbound event names, sent to the UI
const (
	EventScrapedLeagueHTML   = "scrapedLeagueHtml"
	EventScrapedGamesDetails = "scrapedGamesDetailsFromHtml"
	EventSetLeagueData       = "setLeagueData"
	EventErrorGetFromPouchDB = "errorGetFromPouchDb"
	EventURLHashChanged      = "urlHashChanged"
)

var (
	// ErrUnknownEvent is returned by Dispatch for a name that is not an inbound event
	ErrUnknownEvent = errors.New("unknown event")
	// ErrBadPayload is returned by Dispatch when the payload does not fit the event
	ErrBadPayload = errors.New("bad event payload")
)

// InboundEvents lists the names Dispatch accepts
var InboundEvents = []string{
	EventScrapeLeagueFromHTML,
	EventScrapeGamesDetailsFromHTML,
	EventGetFromCouchDB,
	EventFetchLeague,
	EventHashChange,
}

// Event is one outbound response
type Event struct {
	Name    string `json:"name"`
	Payload any    `json:"payload"`
}

// Dispatch decodes payload for the inbound event name and queues it. It
// blocks until Run accepts the request or ctx is done.
func (r *Relay) Dispatch(ctx context.Context, name string, payload []byte) error {
	switch name {
	case EventScrapeLeagueFromHTML:
		html, err := decodePayload[string](name, payload)
		if err != nil {
			return err
		}
		return enqueue(ctx, r.stopped, r.scrapeLeague, html)

	case EventScrapeGamesDetailsFromHTML:
		pages, err := decodePayload[[]string](name, payload)
		if err != nil {
			return err
		}
		if pages == nil {
			pages = []string{}
		}
		return enqueue(ctx, r.stopped, r.scrapeDetails, pages)

	case EventGetFromCouchDB, EventFetchLeague:
		id, err := decodePayload[string](name, payload)
		if err != nil {
			return err
		}
		if id = strings.TrimSpace(id); id == "" {
			return errors.Wrapf(ErrBadPayload, "%s: league id is empty", name)
		}
		if name == EventFetchLeague {
			return enqueue(ctx, r.stopped, r.fetchLeague, id)
		}
		return enqueue(ctx, r.stopped, r.getLeague, id)

	case EventHashChange:
		hash, err := decodePayload[string](name, payload)
		if err != nil {
			return err
		}
		return enqueue(ctx, r.stopped, r.hashChange, hash)
	}
	return errors.Wrapf(ErrUnknownEvent, "%q", name)
}

// Stream merges the outbound channels into one channel of Events. It is
// closed after Run returns. Use either Stream or the outbound channels, not both.
func (r *Relay) Stream() <-chan Event {
	out := make(chan Event)
	var wg sync.WaitGroup
	wg.Add(5)
	go forward(&wg, r.scrapedLeague, EventScrapedLeagueHTML, out)
	go forward(&wg, r.scrapedDetails, EventScrapedGamesDetails, out)
	go forward(&wg, r.setLeagueData, EventSetLeagueData, out)
	go forward(&wg, r.errorGet, EventErrorGetFromPouchDB, out)
	go forward(&wg, r.urlHash, EventURLHashChanged, out)
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

func forward[T any](wg *sync.WaitGroup, in <-chan T, name string, out chan<- Event) {
	defer wg.Done()
	for v := range in {
		out <- Event{Name: name, Payload: v}
	}
}

func decodePayload[T any](name string, payload []byte) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, errors.Wrapf(ErrBadPayload, "%s: missing payload", name)
	}
	if err := sonic.Unmarshal(payload, &v); err != nil {
		return v, errors.Wrapf(ErrBadPayload, "%s: %v", name, err)
	}
	return v, nil
}

func enqueue[T any](ctx context.Context, stopped <-chan struct{}, ch chan<- T, v T) error {
	select {
	case ch <- v:
		return nil
	case <-stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
