package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"house-prices/internal/config"
	"house-prices/internal/db"
	"house-prices/internal/houses"
	"house-prices/internal/parser"
	"house-prices/internal/scraper"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to YAML config file")
	dbDriver := flag.String("driver", "", "Database driver: sqlite or postgres")
	dsn := flag.String("db", "", "SQLite path or Postgres connection string")
	maxPage := flag.Int("pages", 0, "Pages 1 to N-1 of each search are scraped")
	interval := flag.Duration("interval", 0, "Minimum delay between requests")
	fetch := flag.String("fetch", "", "Fetch mode: http, browser or scrapingbee")
	headless := flag.Bool("headless", true, "Run browser in headless mode (set false to see browser)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the loaded config
	if *dbDriver != "" {
		cfg.Database.Driver = *dbDriver
	}
	if *dsn != "" {
		cfg.Database.DSN = *dsn
	}
	if *maxPage > 0 {
		cfg.Scraper.MaxPage = *maxPage
	}
	if *interval > 0 {
		cfg.Scraper.RequestInterval = *interval
	}
	if *fetch != "" {
		cfg.Scraper.Fetch = *fetch
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "headless" {
			cfg.Scraper.Headless = *headless
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal(err)
	}

	log.Printf("Using %s database: %s", cfg.Database.Driver, cfg.Database.DSN)

	// Initialize database
	database, err := db.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	fetcher, stop, err := scraper.NewFetcher(scraper.FetcherOptions{
		Mode:           cfg.Scraper.Fetch,
		Timeout:        cfg.Scraper.HTTPTimeout,
		Interval:       cfg.Scraper.RequestInterval,
		UserAgent:      cfg.Scraper.UserAgent,
		Headless:       cfg.Scraper.Headless,
		ScrapingBeeKey: cfg.Scraper.ScrapingBeeKey,
	})
	if err != nil {
		log.Fatalf("Failed to create fetcher: %v", err)
	}
	defer stop()

	pipeline := scraper.New(fetcher, parser.New(loc), houses.NewReconciler(database), scraper.Config{
		SearchURLs: cfg.Scraper.SearchURLs,
		MaxPage:    cfg.Scraper.MaxPage,
	})

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received interrupt signal, shutting down...")
		cancel()
	}()

	// Run the pipeline
	log.Printf("Starting house scraper (%s fetch)...", cfg.Scraper.Fetch)
	startTime := time.Now()

	res, err := pipeline.Run(ctx)
	if err != nil {
		if ctx.Err() == context.Canceled {
			log.Println("Scraper cancelled by user")
			return
		}
		log.Fatalf("Scraper failed: %v", err)
	}

	for _, h := range res.Created {
		log.Printf("New: %s", h)
	}
	log.Printf("Scraping completed in %s", time.Since(startTime))
}
