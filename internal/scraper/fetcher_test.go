package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
)

func newTestFetcher(serverURL string, opts ...FetcherOption) *Fetcher {
	opts = append([]FetcherOption{WithURLTemplate(serverURL + "/index.php?group_ID=%s")}, opts...)
	f := NewFetcher(New(), opts...)
	f.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return f
}

func TestFetcher_Fetch(t *testing.T) {
	page, err := os.ReadFile(filepath.Join("testdata", "league_9446.html"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		status    []int // status per attempt, last one repeats
		body      string
		retries   int
		wantErr   bool
		wantCalls int32
		wantID    string
	}{
		{
			name:      "successful fetch",
			status:    []int{http.StatusOK},
			body:      string(page),
			retries:   3,
			wantCalls: 1,
			wantID:    "9446",
		},
		{
			name:      "retries server errors",
			status:    []int{http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusOK},
			body:      string(page),
			retries:   3,
			wantCalls: 3,
			wantID:    "9446",
		},
		{
			name:      "gives up after max retries",
			status:    []int{http.StatusInternalServerError},
			retries:   2,
			wantErr:   true,
			wantCalls: 3,
		},
		{
			name:      "client error is permanent",
			status:    []int{http.StatusNotFound},
			retries:   3,
			wantErr:   true,
			wantCalls: 1,
		},
		{
			name:      "page without id takes requested id",
			status:    []int{http.StatusOK},
			body:      `<table><tr><th>Rang</th><th>Team</th></tr><tr><td>1</td><td>A</td></tr></table>`,
			retries:   0,
			wantCalls: 1,
			wantID:    "4242",
		},
		{
			name:      "maintenance page fails to scrape",
			status:    []int{http.StatusOK},
			body:      `<p>Wartung</p>`,
			retries:   0,
			wantErr:   true,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := int(calls.Add(1)) - 1
				if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "razfaz") {
					t.Errorf("User-Agent = %q, should contain 'razfaz'", ua)
				}
				status := tt.status[len(tt.status)-1]
				if n < len(tt.status) {
					status = tt.status[n]
				}
				w.WriteHeader(status)
				if status == http.StatusOK {
					w.Write([]byte(tt.body)) // nolint:errcheck
				}
			}))
			defer server.Close()

			leagueID := tt.wantID
			if leagueID == "" {
				leagueID = "9446"
			}

			f := newTestFetcher(server.URL, WithMaxRetries(tt.retries))
			info, err := f.Fetch(context.Background(), leagueID)

			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("server called %d times, want %d", got, tt.wantCalls)
			}
			if tt.wantErr {
				if err == nil {
					t.Fatal("Fetch() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Fetch() unexpected error: %v", err)
			}
			if info.LeagueID != tt.wantID {
				t.Errorf("LeagueID = %q, want %q", info.LeagueID, tt.wantID)
			}
			if !strings.HasPrefix(info.SourceURL, server.URL) {
				t.Errorf("SourceURL = %q, want prefix %q", info.SourceURL, server.URL)
			}
		})
	}
}

func TestFetcher_ScrapeErrorIsWrapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<p>nothing</p>`)) // nolint:errcheck
	}))
	defer server.Close()

	_, err := newTestFetcher(server.URL).Fetch(context.Background(), "1")
	if !errors.Is(err, ErrNotLeaguePage) {
		t.Errorf("Fetch() error = %v, want ErrNotLeaguePage", err)
	}
}

func TestFetcher_Proxy(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`<input name="group_ID" value="1"><table><tr><th>Rang</th><th>Team</th></tr></table>`)) // nolint:errcheck
	}))
	defer server.Close()

	f := NewFetcher(nil,
		WithProxy(server.URL+"/proxy/"),
		WithURLTemplate("https://league.example/?group_ID=%s"),
	)
	f.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }

	if _, err := f.FetchHTML(context.Background(), "1"); err != nil {
		t.Fatalf("FetchHTML() error: %v", err)
	}
	if !strings.HasPrefix(gotPath, "/proxy/https:/") {
		t.Errorf("proxy received path %q, want the league URL appended", gotPath)
	}
}

func TestFetcher_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newTestFetcher(server.URL).FetchHTML(ctx, "1"); err == nil {
		t.Error("FetchHTML() with canceled context should fail")
	}
}

func TestFetcher_PageTooLarge(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(strings.Repeat("a", maxBodyBytes+1))) // nolint:errcheck
	}))
	defer server.Close()

	_, err := newTestFetcher(server.URL).FetchHTML(context.Background(), "1")
	if !errors.Is(err, ErrPageTooLarge) {
		t.Fatalf("FetchHTML() error = %v, want ErrPageTooLarge", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server called %d times, want 1 (no retry)", got)
	}
}

func TestFetcher_PageAtLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", maxBodyBytes))) // nolint:errcheck
	}))
	defer server.Close()

	body, err := newTestFetcher(server.URL).FetchHTML(context.Background(), "1")
	if err != nil {
		t.Fatalf("FetchHTML() error: %v", err)
	}
	if len(body) != maxBodyBytes {
		t.Errorf("got %d bytes, want %d", len(body), maxBodyBytes)
	}
}

func TestNewFetcher_Defaults(t *testing.T) {
	f := NewFetcher(nil)

	if f.scraper == nil {
		t.Error("fetcher scraper is nil")
	}
	if f.client == nil || f.client.Timeout != Timeout {
		t.Error("fetcher client not configured with default timeout")
	}
	if f.URL("9446") != "https://www.svrz.ch/index.php?id=73&nextPage=2&group_ID=9446" {
		t.Errorf("URL() = %q", f.URL("9446"))
	}
	if f.maxRetries != DefaultMaxRetries {
		t.Errorf("maxRetries = %d, want %d", f.maxRetries, DefaultMaxRetries)
	}
}
