package relay

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"
	"github.com/razfaz/razfaz/internal/league"
	"github.com/razfaz/razfaz/internal/leaguestore"
	"github.com/razfaz/razfaz/internal/logger"
)

// DefaultDetailWorkers bounds how many detail pages are scraped at once
const DefaultDetailWorkers = 4

var (
	// ErrAlreadyRunning is returned by a second call to Run
	ErrAlreadyRunning = errors.New("relay is already running")
	// ErrStopped is returned by Dispatch once Run has returned
	ErrStopped = errors.New("relay is stopped")
)

// Scraper parses league and game detail pages
type Scraper interface {
	Scrape(r io.Reader) (*league.Info, error)
	ScrapeDetail(r io.Reader) (*league.GameDetail, error)
}

// Fetcher downloads and scrapes a league page by id
type Fetcher interface {
	Fetch(ctx context.Context, leagueID string) (*league.Info, error)
}

// Repository persists leagues
type Repository interface {
	Save(ctx context.Context, info *league.Info) leaguestore.SaveResult
	Load(ctx context.Context, id string) (*league.Info, error)
}

// Options tunes a Relay
type Options struct {
	// InitialHash is announced once when Run starts
	InitialHash string
	// PersistScraped saves every league scraped from HTML or fetched by id
	PersistScraped bool
	// DetailWorkers bounds the detail scraping pool
	DetailWorkers int
	// Buffer is the capacity of each outbound channel
	Buffer int
	// OnUnhandled is called after a league scrape failure has been logged
	OnUnhandled func(event string, err error)
}

// Relay routes UI requests to the scraper and store
type Relay struct {
	// Inbound
	ScrapeLeagueFromHTML       chan<- string
	ScrapeGamesDetailsFromHTML chan<- []string
	GetLeague                  chan<- string
	FetchLeague                chan<- string
	HashChanged                chan<- string

	// Outbound
	ScrapedLeagueHTML   <-chan league.Info
	ScrapedGamesDetails <-chan []league.DetailResult
	SetLeagueData       <-chan league.Info
	ErrorGetFromStore   <-chan string
	URLHashChanged      <-chan string

	scrapeLeague  chan string
	scrapeDetails chan []string
	getLeague     chan string
	fetchLeague   chan string
	hashChange    chan string

	scrapedLeague  chan league.Info
	scrapedDetails chan []league.DetailResult
	setLeagueData  chan league.Info
	errorGet       chan string
	urlHash        chan string

	scraper Scraper
	fetcher Fetcher
	repo    Repository
	opts    Options

	running atomic.Bool
	stopped chan struct{}
	mu      sync.RWMutex
	hash    string
}

// New creates a Relay. fetcher and repo may be nil, which disables fetching
// by id and the store respectively.
func New(scraper Scraper, fetcher Fetcher, repo Repository, opts Options) *Relay {
	if opts.DetailWorkers <= 0 {
		opts.DetailWorkers = DefaultDetailWorkers
	}
	if opts.Buffer < 0 {
		opts.Buffer = 0
	}

	r := &Relay{
		scrapeLeague:  make(chan string),
		scrapeDetails: make(chan []string),
		getLeague:     make(chan string),
		fetchLeague:   make(chan string),
		hashChange:    make(chan string),

		scrapedLeague:  make(chan league.Info, opts.Buffer),
		scrapedDetails: make(chan []league.DetailResult, opts.Buffer),
		setLeagueData:  make(chan league.Info, opts.Buffer),
		errorGet:       make(chan string, opts.Buffer),
		urlHash:        make(chan string, opts.Buffer),

		scraper: scraper,
		fetcher: fetcher,
		repo:    repo,
		opts:    opts,
		hash:    opts.InitialHash,
		stopped: make(chan struct{}),
	}

	r.ScrapeLeagueFromHTML = r.scrapeLeague
	r.ScrapeGamesDetailsFromHTML = r.scrapeDetails
	r.GetLeague = r.getLeague
	r.FetchLeague = r.fetchLeague
	r.HashChanged = r.hashChange

	r.ScrapedLeagueHTML = r.scrapedLeague
	r.ScrapedGamesDetails = r.scrapedDetails
	r.SetLeagueData = r.setLeagueData
	r.ErrorGetFromStore = r.errorGet
	r.URLHashChanged = r.urlHash

	return r
}

// Hash returns the latest known navigation hash
func (r *Relay) Hash() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hash
}

// Run announces the initial hash, then serves requests until ctx is done.
// In-flight handlers are awaited before the outbound channels are closed.
func (r *Relay) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		close(r.scrapedLeague)
		close(r.scrapedDetails)
		close(r.setLeagueData)
		close(r.errorGet)
		close(r.urlHash)
		close(r.stopped)
	}()

	logger.Info("relay started", logger.Fields{
		"initial_hash":    r.Hash(),
		"persist_scraped": r.opts.PersistScraped,
		"detail_workers":  r.opts.DetailWorkers,
	})

	if !r.emitHash(ctx, r.Hash()) {
		return nil
	}

	// Hash changes form one navigation stream and keep their order
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.hashLoop(ctx)
	}()

	handle := func(event string, fn func()) {
		logger.IncrCounter("relay.requests." + event)
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("relay stopping", nil)
			return nil
		case html := <-r.scrapeLeague:
			handle(EventScrapeLeagueFromHTML, func() { r.handleScrapeLeague(ctx, html) })
		case pages := <-r.scrapeDetails:
			handle(EventScrapeGamesDetailsFromHTML, func() { r.handleScrapeDetails(ctx, pages) })
		case id := <-r.getLeague:
			handle(EventGetFromCouchDB, func() { r.handleGetLeague(ctx, id) })
		case id := <-r.fetchLeague:
			handle(EventFetchLeague, func() { r.handleFetchLeague(ctx, id) })
		}
	}
}

func (r *Relay) handleScrapeLeague(ctx context.Context, html string) {
	info, err := r.scraper.Scrape(strings.NewReader(html))
	if err != nil {
		r.unhandled(EventScrapeLeagueFromHTML, err)
		return
	}
	r.publishLeague(ctx, info)
}

func (r *Relay) handleFetchLeague(ctx context.Context, id string) {
	if r.fetcher == nil {
		r.unhandled(EventFetchLeague, errors.New("fetching by league id is not configured"))
		return
	}
	info, err := r.fetcher.Fetch(ctx, id)
	if err != nil {
		r.unhandled(EventFetchLeague, err)
		return
	}
	r.publishLeague(ctx, info)
}

// publishLeague emits a scraped league and persists it when configured
func (r *Relay) publishLeague(ctx context.Context, info *league.Info) {
	logger.Info("league scraped", logger.Fields{
		"league_id": info.LeagueID,
		"games":     len(info.Games),
		"ranking":   len(info.Ranking),
	})
	if !emit(ctx, r.scrapedLeague, *info, EventScrapedLeagueHTML) {
		return
	}

	if r.opts.PersistScraped && r.repo != nil {
		// The result is logged by the repository and goes nowhere else
		r.repo.Save(ctx, info)
	}
}

func (r *Relay) handleScrapeDetails(ctx context.Context, pages []string) {
	results := r.scrapeDetailBatch(pages)
	emit(ctx, r.scrapedDetails, results, EventScrapedGamesDetails)
}

// scrapeDetailBatch scrapes every page on a bounded pool. The result has one
// entry per page, in page order, with the error marker for failed pages.
func (r *Relay) scrapeDetailBatch(pages []string) []league.DetailResult {
	start := time.Now()
	results := make([]league.DetailResult, len(pages))
	if len(pages) == 0 {
		return results
	}

	scrapeOne := func(i int) {
		defer func() {
			if p := recover(); p != nil {
				results[i] = r.detailFailed(i, fmt.Errorf("panic: %v", p))
			}
		}()
		detail, err := r.scraper.ScrapeDetail(strings.NewReader(pages[i]))
		if err != nil {
			results[i] = r.detailFailed(i, err)
			return
		}
		results[i] = league.DetailOK(detail)
	}

	pool, err := ants.NewPool(min(r.opts.DetailWorkers, len(pages)))
	if err != nil {
		logger.Warn("detail pool unavailable, scraping inline", logger.Fields{"error": err.Error()})
		for i := range pages {
			scrapeOne(i)
		}
		return results
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range pages {
		i := i
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			scrapeOne(i)
		}); err != nil {
			wg.Done()
			results[i] = r.detailFailed(i, errors.Wrap(err, "submit to detail pool"))
		}
	}
	wg.Wait()

	logger.RecordTiming("relay.detail_batch", time.Since(start))
	return results
}

func (r *Relay) detailFailed(index int, err error) league.DetailResult {
	logger.IncrCounter("relay.detail_failures")
	logger.Warn("game detail scrape failed", logger.Fields{
		"index": index,
		"error": err.Error(),
	})
	return league.DetailFailed()
}

func (r *Relay) handleGetLeague(ctx context.Context, id string) {
	if r.repo == nil {
		emit(ctx, r.errorGet, "no document store configured", EventErrorGetFromPouchDB)
		return
	}

	info, err := r.repo.Load(ctx, id)
	if err != nil {
		reason := leaguestore.Reason(err)
		logger.Warn("league load failed", logger.Fields{
			"league_id": id,
			"reason":    reason,
		})
		emit(ctx, r.errorGet, reason, EventErrorGetFromPouchDB)
		return
	}
	emit(ctx, r.setLeagueData, *info, EventSetLeagueData)
}

// hashLoop records and mirrors hash changes one at a time, so Hash and
// the emitted sequence always end on the newest navigation
func (r *Relay) hashLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case hash := <-r.hashChange:
			logger.IncrCounter("relay.requests." + EventHashChange)
			r.mu.Lock()
			r.hash = hash
			r.mu.Unlock()
			if !r.emitHash(ctx, hash) {
				return
			}
		}
	}
}

func (r *Relay) emitHash(ctx context.Context, hash string) bool {
	return emit(ctx, r.urlHash, hash, EventURLHashChanged)
}

// unhandled is the failure path for league scrapes: the error is logged and
// counted, and the UI gets no response.
func (r *Relay) unhandled(event string, err error) {
	logger.IncrCounter("relay.unhandled_failures")
	logger.Error("unhandled failure in relay handler", logger.Fields{"event": event}, err)
	if r.opts.OnUnhandled != nil {
		r.opts.OnUnhandled(event, err)
	}
}

func emit[T any](ctx context.Context, ch chan<- T, v T, name string) bool {
	select {
	case ch <- v:
		logger.IncrCounter("relay.events." + name)
		return true
	case <-ctx.Done():
		logger.Debug("dropping event on shutdown", logger.Fields{"event": name})
		return false
	}
}
