package scraper

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"house-prices/internal/models"
)

// OfferError wraps a failure confined to a single offer: its fragment had
// the wrong shape or its detail link points at an unsupported site
type OfferError struct {
	Page int
	URL  string
	Err  error
}

func (e *OfferError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("offer on page %d: %v", e.Page, e.Err)
	}
	return fmt.Sprintf("offer %s on page %d: %v", e.URL, e.Page, e.Err)
}

func (e *OfferError) Unwrap() error {
	return e.Err
}

// HouseScraper walks the pages of a search results URL and yields one raw
// offer per listing, merged with the listing's detail fields
type HouseScraper struct {
	fetcher Fetcher
	summary SummaryExtractor
	details *DetailFetcher
	maxPage int
}

// NewHouseScraper creates a scraper requesting pages 1 to maxPage-1
func NewHouseScraper(fetcher Fetcher, maxPage int) *HouseScraper {
	return &HouseScraper{
		fetcher: fetcher,
		summary: NewOlxExtractor(),
		details: NewDetailFetcher(fetcher),
		maxPage: maxPage,
	}
}

// Offers returns a lazy sequence over every offer of searchURL. Every page
// in range is requested; pages past the last real one simply hold no offers.
// Per-offer failures are yielded as *OfferError and the walk continues;
// any other error is yielded once and ends the sequence. Ranging over the
// sequence again fetches everything anew.
func (s *HouseScraper) Offers(ctx context.Context, searchURL string) iter.Seq2[models.RawOffer, error] {
	return func(yield func(models.RawOffer, error) bool) {
		for page := 1; page < s.maxPage; page++ {
			if err := ctx.Err(); err != nil {
				yield(models.RawOffer{}, err)
				return
			}

			log.Printf("Scraping data from page %d...", page)

			pageURL, err := withPage(searchURL, page)
			if err != nil {
				yield(models.RawOffer{}, err)
				return
			}

			body, err := s.fetcher.Fetch(ctx, pageURL.String())
			if err != nil {
				yield(models.RawOffer{}, fmt.Errorf("fetching page %d: %w", page, err))
				return
			}

			doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
			if err != nil {
				yield(models.RawOffer{}, fmt.Errorf("parsing page %d: %w", page, err))
				return
			}

			fragments := doc.Find(s.summary.OfferSelector())
			log.Printf("Found %d offers on page %d", fragments.Length(), page)

			for i := range fragments.Length() {
				offer, err := s.offer(ctx, fragments.Eq(i), pageURL, page)
				if err != nil {
					var offerErr *OfferError
					if !yield(models.RawOffer{}, err) || !errors.As(err, &offerErr) {
						return
					}
					continue
				}
				if !yield(offer, nil) {
					return
				}
			}
		}
	}
}

// Scrape collects Offers into a slice. Per-offer failures are logged and
// skipped.
func (s *HouseScraper) Scrape(ctx context.Context, searchURL string) ([]models.RawOffer, error) {
	var offers []models.RawOffer
	for offer, err := range s.Offers(ctx, searchURL) {
		if err != nil {
			var offerErr *OfferError
			if errors.As(err, &offerErr) {
				log.Printf("Skipping offer: %v", err)
				continue
			}
			return offers, err
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

func (s *HouseScraper) offer(ctx context.Context, fragment *goquery.Selection, pageURL *url.URL, page int) (models.RawOffer, error) {
	offer, err := s.summary.ExtractSummary(fragment, pageURL)
	if err != nil {
		return models.RawOffer{}, &OfferError{Page: page, Err: err}
	}

	detail, err := s.details.FetchDetail(ctx, offer.Website)
	if err != nil {
		if errors.Is(err, ErrUnknownSite) {
			return models.RawOffer{}, &OfferError{Page: page, URL: offer.Website, Err: err}
		}
		return models.RawOffer{}, err
	}

	offer.MergeDetail(detail)
	return offer, nil
}

// withPage sets the page query parameter on searchURL
func withPage(searchURL string, page int) (*url.URL, error) {
	u, err := url.Parse(searchURL)
	if err != nil {
		return nil, fmt.Errorf("invalid search URL %q: %w", searchURL, err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u, nil
}
