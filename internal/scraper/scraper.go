package scraper

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"house-prices/internal/models"
	"house-prices/internal/parser"
)

// Config holds scraper configuration
type Config struct {
	// SearchURLs are olx.pl search result pages, walked one after another
	SearchURLs []string
	// MaxPage caps pagination; pages 1 to MaxPage-1 are requested
	MaxPage int
}

// DefaultConfig returns default scraper settings
func DefaultConfig() Config {
	return Config{
		SearchURLs: []string{
			"https://www.olx.pl/nieruchomosci/mieszkania/sprzedaz/wielkopolskie/?search%5Bfilter_float_price%3Ato%5D=1000000",
		},
		MaxPage: 15,
	}
}

// Reconciler writes a parsed batch to storage
type Reconciler interface {
	Reconcile(ctx context.Context, batch []models.House) ([]models.House, error)
}

// RunResult summarises one pipeline run
type RunResult struct {
	RunID       string
	Scraped     int
	Parsed      int
	ParseErrors []*parser.OfferError
	Created     []models.House
	Duration    time.Duration
}

// Pipeline scrapes the configured searches, parses the offers and
// reconciles them with storage
type Pipeline struct {
	config     Config
	scraper    *HouseScraper
	parser     *parser.Parser
	reconciler Reconciler
}

// New creates a new Pipeline
func New(fetcher Fetcher, p *parser.Parser, r Reconciler, config Config) *Pipeline {
	return &Pipeline{
		config:     config,
		scraper:    NewHouseScraper(fetcher, config.MaxPage),
		parser:     p,
		reconciler: r,
	}
}

// Run executes one full scrape. Offers that fail to parse are logged and
// skipped; fetch and storage errors end the run.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	res := &RunResult{RunID: uuid.NewString()}
	log.Printf("Starting run %s over %d searches...", res.RunID, len(p.config.SearchURLs))
	startTime := time.Now()

	var offers []models.RawOffer
	for _, searchURL := range p.config.SearchURLs {
		found, err := p.scraper.Scrape(ctx, searchURL)
		if err != nil {
			return nil, fmt.Errorf("run %s: scraping %s: %w", res.RunID, searchURL, err)
		}
		log.Printf("Found %d offers for %s", len(found), searchURL)
		offers = append(offers, found...)
	}
	res.Scraped = len(offers)

	parsed := p.parser.Parse(offers)
	for _, err := range parsed.Errors {
		log.Printf("Skipping unparsable %v", err)
	}
	res.Parsed = len(parsed.Houses)
	res.ParseErrors = parsed.Errors

	created, err := p.reconciler.Reconcile(ctx, parsed.Houses)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", res.RunID, err)
	}
	res.Created = created

	res.Duration = time.Since(startTime)
	log.Printf("Run %s complete: %s offers scraped, %s parsed, %s new in %s",
		res.RunID, humanize.Comma(int64(res.Scraped)), humanize.Comma(int64(res.Parsed)),
		humanize.Comma(int64(len(created))), res.Duration.Round(time.Millisecond))

	return res, nil
}
