package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"roomfree/internal/config"
	"roomfree/internal/ics"
	appLog "roomfree/internal/log"
	"roomfree/internal/model"
	"roomfree/internal/query"
	"roomfree/internal/roominfo"
	"roomfree/internal/store"
	"roomfree/internal/viewport"
	"roomfree/internal/web"
)

// defaultWatch is the refresh schedule --watch uses when the config has none.
const defaultWatch = "@every 5m"

// flagConfig holds CLI flag values; set flags override the config file.
type flagConfig struct {
	configPath string
	date       string
	clock      string
	area       string
	building   string
	catalog    string
	listen     string
	trial      int

	fixedSeating bool
	unavailable  bool
	later        bool
	seats        bool

	plain bool
	serve bool
	watch bool
	debug bool

	set func(name string) bool
}

func main() {
	flags := parseFlags()
	if err := run(flags); err != nil {
		appLog.Error("roomfree failed", err)
		fmt.Fprintln(os.Stderr, "roomfree:", err)
		os.Exit(1)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig
	fs := pflag.NewFlagSet("roomfree", pflag.ExitOnError)

	fs.StringVarP(&cfg.configPath, "config", "c", config.DefaultPath(), "Path to config file")
	fs.StringVarP(&cfg.date, "date", "d", "", "Query day as YYYY-MM-DD (default today)")
	fs.StringVarP(&cfg.clock, "time", "t", "", "Query time as HH:MM (default now)")
	fs.StringVarP(&cfg.area, "area", "a", "", "Area regex")
	fs.StringVarP(&cfg.building, "building", "b", "", "Building regex")
	fs.StringVar(&cfg.catalog, "catalog", "", "Read the room catalog from a CSV file")
	fs.StringVar(&cfg.listen, "listen", "", "HTTP listen address for --serve (overrides config if set)")
	fs.IntVar(&cfg.trial, "trial", 0, "Only check the first N rooms")
	fs.BoolVarP(&cfg.fixedSeating, "fixed-seating", "f", false, "Include rooms with fixed seating")
	fs.BoolVarP(&cfg.unavailable, "unavailable", "u", false, "List unavailable rooms")
	fs.BoolVarP(&cfg.later, "later", "l", false, "List rooms that become available later today")
	fs.BoolVarP(&cfg.seats, "seats", "s", false, "Show seat counts")
	fs.BoolVar(&cfg.plain, "plain", false, "Print the listing instead of the interactive dashboard")
	fs.BoolVar(&cfg.serve, "serve", false, "Serve the HTTP JSON API instead of the dashboard")
	fs.BoolVarP(&cfg.watch, "watch", "w", false, "Re-run the query on the refresh schedule")
	fs.BoolVar(&cfg.debug, "debug", false, "Debug logging")

	_ = fs.Parse(os.Args[1:])
	cfg.set = func(name string) bool { return fs.Changed(name) }
	return cfg
}

// applyFlags lets explicitly set flags override the config file.
func applyFlags(conf *config.Config, flags flagConfig) {
	if flags.set("area") {
		conf.Area = flags.area
	}
	if flags.set("building") {
		conf.Building = flags.building
	}
	if flags.set("fixed-seating") {
		conf.ShowFixedSeating = flags.fixedSeating
	}
	if flags.set("unavailable") {
		conf.ShowUnavailable = flags.unavailable
	}
	if flags.set("later") {
		conf.ShowLater = flags.later
	}
	if flags.set("seats") {
		conf.ShowSeats = flags.seats
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.debug {
		conf.LogLevel = "debug"
	}
	if flags.watch && conf.Refresh == "" {
		conf.Refresh = defaultWatch
	}
}

// queryBuilder turns the config and flags into a Query. With no explicit
// --time the query instant follows the clock, so watch mode stays current.
type queryBuilder struct {
	conf     *config.Config
	loc      *time.Location
	date     string
	clock    string
	trial    int
	area     *regexp.Regexp
	building *regexp.Regexp
}

func newQueryBuilder(conf *config.Config, flags flagConfig, loc *time.Location) (*queryBuilder, error) {
	b := &queryBuilder{conf: conf, loc: loc, date: flags.date, clock: flags.clock, trial: flags.trial}
	var err error
	if conf.Area != "" {
		if b.area, err = regexp.Compile(conf.Area); err != nil {
			return nil, fmt.Errorf("area: %w", err)
		}
	}
	if conf.Building != "" {
		if b.building, err = regexp.Compile(conf.Building); err != nil {
			return nil, fmt.Errorf("building: %w", err)
		}
	}
	if _, err := b.build(time.Now()); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *queryBuilder) build(now time.Time) (model.Query, error) {
	now = now.In(b.loc)
	y, m, d := now.Date()
	if b.date != "" {
		day, err := time.ParseInLocation("2006-01-02", b.date, b.loc)
		if err != nil {
			return model.Query{}, fmt.Errorf("--date %q: want YYYY-MM-DD", b.date)
		}
		y, m, d = day.Date()
	}
	hour, minute := now.Hour(), now.Minute()
	if b.clock != "" {
		c, err := time.Parse("15:04", b.clock)
		if err != nil {
			return model.Query{}, fmt.Errorf("--time %q: want HH:MM", b.clock)
		}
		hour, minute = c.Hour(), c.Minute()
	}
	return model.Query{
		At:               time.Date(y, m, d, hour, minute, 0, 0, b.loc),
		AreaFilter:       b.area,
		BuildingFilter:   b.building,
		ShowFixedSeating: b.conf.ShowFixedSeating,
		ShowUnavailable:  b.conf.ShowUnavailable,
		ShowLater:        b.conf.ShowLater,
		ShowSeats:        b.conf.ShowSeats,
		TrialLimit:       b.trial,
	}, nil
}

// staticCatalog is a catalog read once from a CSV file.
type staticCatalog []model.Room

func (c staticCatalog) Catalog(context.Context) ([]model.Room, error) { return c, nil }

func loadCSVCatalog(path string) (staticCatalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rooms, err := roominfo.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rooms, nil
}

func run(flags flagConfig) error {
	conf, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", flags.configPath, err)
	}
	applyFlags(conf, flags)
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	loc, err := conf.Location()
	if err != nil {
		return fmt.Errorf("timezone %q: %w", conf.Timezone, err)
	}
	builder, err := newQueryBuilder(conf, flags, loc)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(conf.CacheDir, 0o700); err != nil {
		return err
	}

	interactive := !flags.plain && !flags.serve
	console := newConsole()
	if interactive && !console.IsTerminal() {
		interactive = false
	}
	if interactive {
		// The dashboard owns the terminal; nothing else may write to it.
		closer, err := appLog.OpenFile(conf.LogPath())
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer closer.Close()
	}

	appLog.Info("effective config",
		"config", flags.configPath,
		"timezone", conf.Timezone,
		"area", conf.Area,
		"building", conf.Building,
		"cache_dir", conf.CacheDir,
		"cache_max_bytes", conf.CacheMaxBytes,
		"concurrency", conf.Concurrency,
		"refresh", conf.Refresh,
		"ics_count", len(conf.ICS),
		"plain", flags.plain,
		"serve", flags.serve,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(store.Config{
		Path:        filepath.Join(conf.CacheDir, "roomfree.db"),
		MaxBytes:    conf.CacheMaxBytes,
		KeepBuckets: conf.CacheKeepBuckets,
	})
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer st.Close()

	client := roominfo.New(roominfo.Config{
		BaseURL:    conf.APIBase,
		Timeout:    conf.RequestTimeout.Std(),
		TTL:        conf.CacheTTL.Std(),
		RetryDelay: 500 * time.Millisecond,
		Location:   loc,
		Store:      st,
	})

	var catalog query.Catalog = client
	if flags.catalog != "" {
		rooms, err := loadCSVCatalog(flags.catalog)
		if err != nil {
			return err
		}
		appLog.Info("catalog loaded from CSV", "path", flags.catalog, "rooms", len(rooms))
		catalog = rooms
	}

	router := query.Router{Default: client}
	if len(conf.ICS) > 0 {
		fetcher := ics.NewFetcher(filepath.Join(conf.CacheDir, "ics"), conf.RequestTimeout.Std())
		router.Feeds = ics.NewProvider(fetcher, conf.ICS, loc)
	}
	engine := query.New(router,
		query.WithConcurrency(conf.Concurrency),
		query.WithMinGap(conf.MinGap.Std()),
	)

	runQuery := func(ctx context.Context, q model.Query) (model.Report, error) {
		return engine.Query(ctx, catalog, q)
	}

	if flags.serve {
		srv := web.NewServer(conf, loc, runQuery)
		return srv.Serve(ctx)
	}

	formatter := viewport.Formatter{
		Display: viewport.Display{
			ShowFixedSeating: conf.ShowFixedSeating,
			ShowUnavailable:  conf.ShowUnavailable,
			ShowLater:        conf.ShowLater,
			ShowSeats:        conf.ShowSeats,
		},
		Links:      viewport.Links{Base: conf.LinkBase},
		CommonType: conf.CommonRoomType,
	}

	q, err := builder.build(time.Now())
	if err != nil {
		return err
	}
	if interactive {
		fmt.Fprintf(os.Stderr, "Checking rooms for %s...\r\n", q.At.Format("Mon 2006-01-02 15:04"))
	}
	report, err := runQuery(ctx, q)
	if err != nil {
		return err
	}
	formatter.Links.Range = q.Range()

	if !interactive {
		return printPlain(os.Stdout, formatter, report)
	}

	var watcher *query.Watcher
	if conf.Refresh != "" {
		watcher, err = query.NewWatcher(conf.Refresh, loc, func(ctx context.Context) (model.Report, error) {
			q, err := builder.build(time.Now())
			if err != nil {
				return model.Report{}, err
			}
			return runQuery(ctx, q)
		})
		if err != nil {
			return err
		}
	}

	err = runDashboard(ctx, console, formatter, report, watcher, builder)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
