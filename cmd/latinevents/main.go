package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"latinevents/internal/config"
	"latinevents/internal/feed"
	appLog "latinevents/internal/log"
	"latinevents/internal/metrics"
	"latinevents/internal/refresh"
	"latinevents/internal/scheduler"
	"latinevents/internal/session"
	"latinevents/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	feedURL    string
	once       bool
	debug      bool
}

func main() {
	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}
	appLog.Info("latinevents starting", "version", version)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	conf.ApplyEnv()

	// CLI flags override file and environment.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.feedURL != "" {
		conf.FeedURL = flags.feedURL
	}
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if !flags.debug {
		appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"feed_url", conf.FeedURL,
		"refresh", conf.RefreshCron,
		"window_days", conf.WindowDays,
		"dedupe", conf.DedupeEnabled(),
		"session_ttl", conf.SessionTTL.String(),
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, flags.once); err != nil {
		appLog.Error("latinevents exited with error", err)
		os.Exit(1)
	}
	appLog.Info("latinevents exiting")
}

func run(ctx context.Context, conf *config.Config, once bool) error {
	loc := conf.Location()
	m := metrics.New()

	fetcher := feed.NewFetcher(conf.CacheDir, 0)
	loader := feed.NewLoader(fetcher, feed.LoaderConfig{
		URL:      conf.FeedURL,
		Location: loc,
		Dedupe:   conf.DedupeEnabled(),
		Metrics:  m,
	})

	opts := session.Options{
		Location:   loc,
		Defaults:   conf.Filters(),
		WindowDays: conf.WindowDays,
	}

	if once {
		return printSchedule(ctx, os.Stdout, loader, opts)
	}

	registry := session.NewRegistry(loader, opts, conf.SessionTTL, m)
	runner := refresh.NewRunner(refresh.Config{
		Command: conf.Crawler.Command,
		Dir:     conf.Crawler.Dir,
		Timeout: conf.Crawler.Timeout,
	}, m)

	sched, err := scheduler.New(conf.RefreshCron, registry, loc)
	if err != nil {
		return err
	}
	sched.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sched.Stop(stopCtx)
	}()
	appLog.Info("next scheduled reload", "at", sched.NextReload().Format(time.RFC3339))

	srv := web.NewServer(conf, web.Deps{
		Sessions:  registry,
		Refresher: runner,
		Metrics:   m,
	})
	return web.StartServer(ctx, conf, srv.Handler())
}

// printSchedule loads the feed once and prints the default view grouped by
// day.
func printSchedule(ctx context.Context, w io.Writer, src session.Source, opts session.Options) error {
	s := session.New("cli", src, opts)
	if err := s.Reload(ctx, session.ReloadOptions{}); err != nil {
		return err
	}
	v := s.View()
	for _, day := range v.GroupedEvents {
		fmt.Fprintln(w, day.Date)
		for _, ev := range day.Events {
			fmt.Fprintf(w, "  %-5s %s (%s)\n", ev.Time, ev.Name, ev.City)
		}
	}
	fmt.Fprintf(w, "%d of %d events shown (filtered %d), window ends %s\n",
		v.VisibleCount, v.TotalCount, v.FilteredCount, v.WindowEnd)
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.feedURL, "feed", "", "Events CSV URL or path (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Load the feed once, print the default view and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
