package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"house-prices/internal/models"
)

// Site identifies one of the supported listing sites
type Site int

const (
	SiteUnknown Site = iota
	SiteOLX
	SiteOtodom
)

// Domains matched against detail page URLs, in priority order
const (
	OlxDomain    = "www.olx.pl"
	OtodomDomain = "www.otodom.pl"
)

// ErrUnknownSite is returned for detail links outside the supported sites
var ErrUnknownSite = errors.New("unsupported listing site")

func (s Site) String() string {
	switch s {
	case SiteOLX:
		return "olx"
	case SiteOtodom:
		return "otodom"
	default:
		return "unknown"
	}
}

// SiteForURL picks the site by substring match on the link, first match wins
func SiteForURL(link string) Site {
	switch {
	case strings.Contains(link, OlxDomain):
		return SiteOLX
	case strings.Contains(link, OtodomDomain):
		return SiteOtodom
	default:
		return SiteUnknown
	}
}

// DetailFetcher loads a listing's detail page and extracts the fields the
// search results page does not show
type DetailFetcher struct {
	fetcher    Fetcher
	extractors map[Site]FieldExtractor
}

// NewDetailFetcher creates a DetailFetcher for olx.pl and otodom.pl
func NewDetailFetcher(fetcher Fetcher) *DetailFetcher {
	d := &DetailFetcher{
		fetcher:    fetcher,
		extractors: make(map[Site]FieldExtractor),
	}
	d.Register(NewOlxExtractor())
	d.Register(NewOtodomExtractor())
	return d
}

// Register adds or replaces the extractor for its site
func (d *DetailFetcher) Register(e FieldExtractor) {
	d.extractors[e.Site()] = e
}

// FetchDetail fetches link and returns its area, rooms, building type and
// market text. Fetch and parse errors are returned as is.
func (d *DetailFetcher) FetchDetail(ctx context.Context, link string) (models.RawOffer, error) {
	site := SiteForURL(link)
	extractor, ok := d.extractors[site]
	if !ok {
		return models.RawOffer{}, fmt.Errorf("%w: %s", ErrUnknownSite, link)
	}

	body, err := d.fetcher.Fetch(ctx, link)
	if err != nil {
		return models.RawOffer{}, fmt.Errorf("fetching %s detail %s: %w", site, link, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return models.RawOffer{}, fmt.Errorf("parsing %s detail %s: %w", site, link, err)
	}

	return extractor.ExtractDetail(doc), nil
}
