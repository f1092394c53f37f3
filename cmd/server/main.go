package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"house-prices/internal/api"
	"house-prices/internal/config"
	"house-prices/internal/db"
	"house-prices/internal/houses"
	"house-prices/internal/parser"
	"house-prices/internal/scraper"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to YAML config file")
	port := flag.Int("port", 0, "Port to listen on")
	dsn := flag.String("db", "", "SQLite path or Postgres connection string")
	allowScrape := flag.Bool("scrape", true, "Allow POST /api/scrape/trigger to start a pipeline run")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *dsn != "" {
		cfg.Database.DSN = *dsn
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal(err)
	}

	// Static files are optional
	staticDir := cfg.Server.StaticDir
	if _, err := os.Stat(staticDir); os.IsNotExist(err) {
		staticDir = ""
	}

	log.Printf("Database: %s (%s)", cfg.Database.DSN, cfg.Database.Driver)
	log.Printf("Static files: %s", staticDir)

	// Initialize database
	database, err := db.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	var runner api.Runner
	if *allowScrape {
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
		runner = scraper.New(fetcher, parser.New(loc), houses.NewReconciler(database), scraper.Config{
			SearchURLs: cfg.Scraper.SearchURLs,
			MaxPage:    cfg.Scraper.MaxPage,
		})
	}

	// Create router
	router := api.NewRouter(database, staticDir, runner, loc)

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on http://localhost%s", addr)

	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
