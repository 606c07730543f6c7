package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/razfaz/razfaz/internal/config"
	"github.com/razfaz/razfaz/internal/league"
	"github.com/razfaz/razfaz/internal/leaguestore"
	"github.com/razfaz/razfaz/internal/logger"
	"github.com/razfaz/razfaz/internal/notifier"
	"github.com/razfaz/razfaz/internal/relay"
	"github.com/razfaz/razfaz/internal/scraper"
	"github.com/razfaz/razfaz/internal/server"
	"github.com/razfaz/razfaz/internal/store"
	"github.com/spf13/cobra"
)

const (
	ExitSuccess = 0
	ExitError   = 1
)

var (
	flagLogLevel    string
	flagStore       string
	flagDataDir     string
	flagCouchURL    string
	flagCouchDB     string
	flagPostgresURL string
	flagVerbose     bool

	flagAddr   string
	flagFile   string
	flagSave   bool
	flagFormat string
	flagSort   string
)

// cfg is loaded from the environment before every command and then
// overridden by the flags the user set
var cfg config.Config

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "razfaz",
		Short: "Relay SVRZ volleyball league pages between a UI, a scraper and a document store",
		Long: `razfaz scrapes SVRZ league and game detail pages, keeps leagues in a
revisioned document store and relays events to a UI over HTTP.
Settings come from RAZFAZ_* environment variables; flags override them.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadConfig,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.StringVar(&flagStore, "store", "", "Document store: file, memory, couch or postgres")
	pf.StringVar(&flagDataDir, "data-dir", "", "Data directory for the file store (default "+config.DefaultDataDir+")")
	pf.StringVar(&flagCouchURL, "couch-url", "", "CouchDB server URL")
	pf.StringVar(&flagCouchDB, "couch-db", "", "CouchDB database name")
	pf.StringVar(&flagPostgresURL, "postgres-url", "", "Postgres connection string")
	pf.BoolVar(&flagVerbose, "verbose", false, "Enable verbose logging")

	cmd.AddCommand(newServeCmd(), newScrapeCmd(), newDetailsCmd(), newGetCmd(), newMigrateCmd())

	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay and its HTTP transport until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().StringVar(&flagAddr, "addr", "", "Listen address (default from RAZFAZ_HTTP_ADDR)")
	return cmd
}

func newScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape <leagueID>",
		Short: "Scrape a league page from the web or from a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runScrape,
	}
	cmd.Flags().StringVar(&flagFile, "file", "", "Read the league page from this file instead of fetching it")
	cmd.Flags().BoolVar(&flagSave, "save", false, "Save the scraped league to the document store")
	addOutputFlags(cmd)
	return cmd
}

func newDetailsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "details <file>...",
		Short: "Scrape game detail pages; pages that fail are reported as errors",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runDetails,
	}
	cmd.Flags().StringVar(&flagFormat, "format", "text", "Output format: text or json")
	return cmd
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <leagueID>",
		Short: "Load a league from the document store",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}
	addOutputFlags(cmd)
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagFormat, "format", "text", "Output format: text or json")
	cmd.Flags().StringVar(&flagSort, "sort", "", "Sort games by: number, date or team")
}

// loadConfig reads the environment, applies flag overrides and installs the logger
func loadConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		level, err := logger.ParseLevel(flagLogLevel)
		if err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
		loaded.LogLevel = level
	}
	if flagVerbose {
		loaded.LogLevel = logger.LevelDebug
	}
	if flags.Changed("store") {
		loaded.Store = strings.ToLower(strings.TrimSpace(flagStore))
	}
	if flags.Changed("data-dir") {
		loaded.DataDir = flagDataDir
	}
	if flags.Changed("couch-url") {
		loaded.CouchURL = flagCouchURL
	}
	if flags.Changed("couch-db") {
		loaded.CouchDB = flagCouchDB
	}
	if flags.Changed("postgres-url") {
		loaded.PostgresURL = flagPostgresURL
	}
	if flags.Changed("addr") {
		loaded.HTTPAddr = flagAddr
	}

	if err := loaded.Validate(); err != nil {
		return err
	}

	logger.SetDefault(logger.New(loaded.LogLevel, cmd.ErrOrStderr()))
	cfg = loaded
	return nil
}

// openStore opens the configured document store. Couch databases are
// created and Postgres schemas migrated on the way.
func openStore(ctx context.Context, c config.Config) (store.Store, error) {
	switch c.Store {
	case config.StoreMemory:
		return store.NewMemoryStore(), nil
	case config.StoreFile:
		return store.NewFileStore(c.DataDir)
	case config.StoreCouch:
		cs, err := store.NewCouchStore(c.CouchURL, c.CouchDB, &http.Client{Timeout: c.FetchTimeout})
		if err != nil {
			return nil, err
		}
		if err := cs.EnsureDatabase(ctx); err != nil {
			return nil, err
		}
		return cs, nil
	case config.StorePostgres:
		if _, err := store.Migrate(c.PostgresURL); err != nil {
			return nil, err
		}
		return store.OpenPostgres(ctx, c.PostgresURL)
	default:
		return nil, fmt.Errorf("unknown store: %s", c.Store)
	}
}

func newFetcher(c config.Config, sc *scraper.Scraper) *scraper.Fetcher {
	return scraper.NewFetcher(sc,
		scraper.WithURLTemplate(c.LeagueURLTemplate),
		scraper.WithProxy(c.CORSProxy),
		scraper.WithTimeout(c.FetchTimeout),
		scraper.WithMaxRetries(c.FetchRetries),
	)
}

func parseOutputFlags() (OutputFormat, SortOrder, error) {
	format := OutputFormat(strings.ToLower(flagFormat))
	if format != FormatText && format != FormatJSON {
		return "", "", fmt.Errorf("invalid format: %s (must be 'text' or 'json')", flagFormat)
	}
	order := SortOrder(strings.ToLower(flagSort))
	switch order {
	case "", SortByNumber, SortByDate, SortByTeam:
	default:
		return "", "", fmt.Errorf("invalid sort: %s (must be 'number', 'date' or 'team')", flagSort)
	}
	return format, order, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Store, err)
	}
	defer st.Close()

	sc := scraper.New()
	r := relay.New(sc, newFetcher(cfg, sc), leaguestore.New(st), relay.Options{
		InitialHash:    cfg.InitialHash,
		PersistScraped: cfg.PersistScraped,
		DetailWorkers:  cfg.DetailWorkers,
	})

	hub := server.NewHub()
	var sink notifier.Notifier = hub
	if flagVerbose {
		sink = notifier.Multi{hub, notifier.NewConsole(cmd.ErrOrStderr())}
	}

	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		notifier.Pump(r.Stream(), sink)
	}()

	relayDone := make(chan error, 1)
	go func() { relayDone <- r.Run(ctx) }()

	srv := server.New(r, hub, server.Options{
		Addr:           cfg.HTTPAddr,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})
	serveErr := srv.ListenAndServe(ctx)

	// The server can fail before ctx is done; take the relay down with it
	stop()
	if err := <-relayDone; err != nil {
		return err
	}
	<-pumped

	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	logger.Info("shut down cleanly", nil)
	return nil
}

func runScrape(cmd *cobra.Command, args []string) error {
	format, order, err := parseOutputFlags()
	if err != nil {
		return err
	}
	id := strings.TrimSpace(args[0])
	ctx := cmd.Context()

	sc := scraper.New()
	var info *league.Info
	if flagFile != "" {
		info, err = scrapeFile(sc, flagFile)
		if err != nil {
			return err
		}
		if info.LeagueID != id {
			return fmt.Errorf("%s is the page of league %s, not %s", flagFile, info.LeagueID, id)
		}
	} else {
		fetcher := newFetcher(cfg, sc)
		logger.Debug("fetching league", logger.Fields{"league_id": id, "url": fetcher.URL(id)})
		info, err = fetcher.Fetch(ctx, id)
		if err != nil {
			return fmt.Errorf("fetching league %s: %w", id, err)
		}
	}

	if flagSave {
		st, err := openStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("opening %s store: %w", cfg.Store, err)
		}
		defer st.Close()

		result := leaguestore.New(st).Save(ctx, info)
		if !result.OK() {
			return fmt.Errorf("saving league %s: %w", id, result.Err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Saved league %s (%s, rev %s)\n", id, result.Branch(), result.Rev)
	}

	sortGames(info.Games, order)
	return WriteLeague(cmd.OutOrStdout(), info, format, flagVerbose)
}

func scrapeFile(sc *scraper.Scraper, path string) (*league.Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening league page: %w", err)
	}
	defer f.Close()

	info, err := sc.Scrape(f)
	if err != nil {
		return nil, fmt.Errorf("scraping %s: %w", path, err)
	}
	return info, nil
}

func runDetails(cmd *cobra.Command, args []string) error {
	format, _, err := parseOutputFlags()
	if err != nil {
		return err
	}

	pages := make([]string, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading detail page: %w", err)
		}
		pages = append(pages, string(data))
	}

	results, err := scrapeDetails(cmd.Context(), pages)
	if err != nil {
		return err
	}
	return WriteDetails(cmd.OutOrStdout(), args, results, format)
}

// scrapeDetails runs pages through a relay so the batch gets the same
// pooling and per-page error markers the UI sees
func scrapeDetails(ctx context.Context, pages []string) ([]league.DetailResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := relay.New(scraper.New(), nil, nil, relay.Options{
		DetailWorkers: cfg.DetailWorkers,
		Buffer:        1,
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	select {
	case r.ScrapeGamesDetailsFromHTML <- pages:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case results := <-r.ScrapedGamesDetails:
		return results, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func runGet(cmd *cobra.Command, args []string) error {
	format, order, err := parseOutputFlags()
	if err != nil {
		return err
	}
	id := strings.TrimSpace(args[0])
	ctx := cmd.Context()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Store, err)
	}
	defer st.Close()

	info, err := leaguestore.New(st).Load(ctx, id)
	if err != nil {
		return fmt.Errorf("league %s: %s", id, leaguestore.Reason(err))
	}

	sortGames(info.Games, order)
	return WriteLeague(cmd.OutOrStdout(), info, format, flagVerbose)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	if cfg.PostgresURL == "" {
		return fmt.Errorf("--postgres-url or RAZFAZ_POSTGRES_URL is required")
	}
	version, err := store.Migrate(cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("migrating: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Schema at version %d\n", version)
	return nil
}

// Execute runs the CLI
func Execute() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitError
	}
	return ExitSuccess
}
