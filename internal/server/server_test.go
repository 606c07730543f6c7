package server

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/razfaz/razfaz/internal/leaguestore"
	"github.com/razfaz/razfaz/internal/logger"
	"github.com/razfaz/razfaz/internal/notifier"
	"github.com/razfaz/razfaz/internal/relay"
	"github.com/razfaz/razfaz/internal/scraper"
	"github.com/razfaz/razfaz/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.SetDefault(logger.New(logger.LevelError, io.Discard))
	os.Exit(m.Run())
}

type dispatched struct {
	name    string
	payload string
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []dispatched
	err   error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, name string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, dispatched{name, string(payload)})
	return f.err
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := New(&fakeDispatcher{}, NewHub(), Options{})

	rec := do(t, s.Handler(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetrics(t *testing.T) {
	s := New(&fakeDispatcher{}, NewHub(), Options{})
	logger.IncrCounter("server.test_counter")

	rec := do(t, s.Handler(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"server.test_counter"`)
}

func TestPostEvent(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		err        error
		wantStatus int
		wantCall   *dispatched
	}{
		{
			name:       "accepted",
			path:       "/api/v1/events/getFromCouchDb",
			body:       `{"payload":"9446"}`,
			wantStatus: http.StatusAccepted,
			wantCall:   &dispatched{"getFromCouchDb", `"9446"`},
		},
		{
			name:       "list payload passes through",
			path:       "/api/v1/events/scrapeGamesDetailsFromHtml",
			body:       `{"payload":["<a>","<b>"]}`,
			wantStatus: http.StatusAccepted,
			wantCall:   &dispatched{"scrapeGamesDetailsFromHtml", `["<a>","<b>"]`},
		},
		{
			name:       "unknown event",
			path:       "/api/v1/events/nope",
			body:       `{"payload":"x"}`,
			err:        errors.Wrap(relay.ErrUnknownEvent, "nope"),
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "bad payload",
			path:       "/api/v1/events/getFromCouchDb",
			body:       `{"payload":42}`,
			err:        errors.Wrap(relay.ErrBadPayload, "getFromCouchDb"),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "relay stopped",
			path:       "/api/v1/events/hashchange",
			body:       `{"payload":"#x"}`,
			err:        context.Canceled,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "missing payload",
			path:       "/api/v1/events/hashchange",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "not json",
			path:       "/api/v1/events/hashchange",
			body:       `payload=x`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDispatcher{err: tt.err}
			s := New(d, NewHub(), Options{})

			rec := do(t, s.Handler(), http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantCall != nil {
				require.Len(t, d.calls, 1)
				assert.Equal(t, tt.wantCall.name, d.calls[0].name)
				assert.JSONEq(t, tt.wantCall.payload, d.calls[0].payload)
			}
		})
	}
}

func TestUnknownEventListsInboundEvents(t *testing.T) {
	s := New(&fakeDispatcher{err: relay.ErrUnknownEvent}, NewHub(), Options{})

	rec := do(t, s.Handler(), http.MethodPost, "/api/v1/events/nope", `{"payload":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	for _, name := range relay.InboundEvents {
		assert.Contains(t, rec.Body.String(), name)
	}
}

func TestPostEventToStoppedRelay(t *testing.T) {
	r := relay.New(scraper.New(), nil, nil, relay.Options{Buffer: 1})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	require.Equal(t, "", <-r.URLHashChanged)
	cancel()
	require.NoError(t, <-done)

	s := New(r, NewHub(), Options{})
	rec := do(t, s.Handler(), http.MethodPost, "/api/v1/events/getFromCouchDb", `{"payload":"9446"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORS(t *testing.T) {
	s := New(&fakeDispatcher{}, NewHub(), Options{AllowedOrigins: []string{"https://razfaz.ch"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/events/hashchange", nil)
	req.Header.Set("Origin", "https://razfaz.ch")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Contains(t, []int{http.StatusOK, http.StatusNoContent}, rec.Code)
	assert.Equal(t, "https://razfaz.ch", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSConfigAllowsAllByDefault(t *testing.T) {
	assert.True(t, corsConfig(nil).AllowAllOrigins)
	assert.True(t, corsConfig([]string{"*"}).AllowAllOrigins)

	cfg := corsConfig([]string{"https://a.example", "https://b.example"})
	assert.False(t, cfg.AllowAllOrigins)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowOrigins)
}

type sseEvent struct {
	name string
	data string
}

// readEvents parses server-sent events from body onto a channel
func readEvents(body io.Reader) <-chan sseEvent {
	out := make(chan sseEvent, 16)
	go func() {
		defer close(out)
		var ev sseEvent
		scanner := bufio.NewScanner(body)
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				ev.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				ev.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			case line == "":
				if ev.name != "" {
					out <- ev
				}
				ev = sseEvent{}
			}
		}
	}()
	return out
}

func nextEvent(t *testing.T, events <-chan sseEvent) sseEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream event")
	}
	return sseEvent{}
}

func TestStreamEndToEnd(t *testing.T) {
	r := relay.New(scraper.New(), nil, leaguestore.New(store.NewMemoryStore()), relay.Options{InitialHash: "#/league/9446"})
	hub := NewHub()
	s := New(r, hub, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go notifier.Pump(r.Stream(), hub)
	go r.Run(ctx)

	// Wait until the initial hash reached the hub
	require.Eventually(t, func() bool {
		ch, unsubscribe := hub.Subscribe()
		defer unsubscribe()
		return len(ch) == 1
	}, 2*time.Second, 10*time.Millisecond)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	reqCtx, stopStream := context.WithCancel(context.Background())
	defer stopStream()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, ts.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	events := readEvents(resp.Body)
	assert.Equal(t, sseEvent{relay.EventURLHashChanged, `"#/league/9446"`}, nextEvent(t, events))

	post := func(path, body string) {
		resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	}

	post("/api/v1/events/hashchange", `{"payload":"#/league/10233"}`)
	assert.Equal(t, sseEvent{relay.EventURLHashChanged, `"#/league/10233"`}, nextEvent(t, events))

	post("/api/v1/events/getFromCouchDb", `{"payload":"404"}`)
	ev := nextEvent(t, events)
	assert.Equal(t, relay.EventErrorGetFromPouchDB, ev.name)
	assert.Contains(t, ev.data, "not found")

	post("/api/v1/events/scrapeGamesDetailsFromHtml", `{"payload":["<p>nothing</p>"]}`)
	assert.Equal(t, sseEvent{relay.EventScrapedGamesDetails, `[{"error":"error"}]`}, nextEvent(t, events))
}

func TestHubReplaysLatestHash(t *testing.T) {
	hub := NewHub()

	early, cancelEarly := hub.Subscribe()
	defer cancelEarly()
	assert.Len(t, early, 0, "nothing to replay yet")

	require.NoError(t, hub.Notify(relay.Event{Name: relay.EventURLHashChanged, Payload: "#a"}))
	require.NoError(t, hub.Notify(relay.Event{Name: relay.EventSetLeagueData, Payload: "x"}))
	require.NoError(t, hub.Notify(relay.Event{Name: relay.EventURLHashChanged, Payload: "#b"}))
	assert.Len(t, early, 3)

	late, cancelLate := hub.Subscribe()
	defer cancelLate()
	require.Len(t, late, 1)
	assert.Equal(t, relay.Event{Name: relay.EventURLHashChanged, Payload: "#b"}, <-late)
}

func TestHubCancelAndClose(t *testing.T) {
	hub := NewHub()

	a, cancelA := hub.Subscribe()
	b, _ := hub.Subscribe()
	assert.Equal(t, 2, hub.Subscribers())

	cancelA()
	cancelA()
	_, ok := <-a
	assert.False(t, ok)
	assert.Equal(t, 1, hub.Subscribers())

	hub.Close()
	_, ok = <-b
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Subscribers())

	c, _ := hub.Subscribe()
	_, ok = <-c
	assert.False(t, ok, "subscriptions after Close are closed")
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer+10; i++ {
		require.NoError(t, hub.Notify(relay.Event{Name: relay.EventSetLeagueData}))
	}
	assert.Len(t, ch, subscriberBuffer)
}
