package scraper

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"

	"house-prices/internal/models"
)

// Field labels as printed on the detail pages of both sites
const (
	LabelArea     = "Powierzchnia"
	LabelRooms    = "Liczba pokoi"
	LabelBuilding = "Rodzaj zabudowy"
	LabelMarket   = "Rynek"
)

var (
	// ErrFooterShape means a summary footer did not hold exactly a location and a date
	ErrFooterShape = errors.New("unexpected offer footer shape")
	// ErrMissingLink means a summary fragment had no detail page link
	ErrMissingLink = errors.New("offer has no detail link")
)

// FieldExtractor pulls the detail-page fields out of a listing page.
// Missing fields come back as empty strings.
type FieldExtractor interface {
	Site() Site
	ExtractDetail(doc *goquery.Document) models.RawOffer
}

// SummaryExtractor pulls the fields of one offer out of a search results page
type SummaryExtractor interface {
	OfferSelector() string
	ExtractSummary(offer *goquery.Selection, base *url.URL) (models.RawOffer, error)
}

// detailFields applies the shared label convention: look the label up with
// find and strip the label from whatever text comes back
func detailFields(find func(label string) string) models.RawOffer {
	value := func(label string) string {
		return strings.TrimSpace(strings.ReplaceAll(find(label), label, ""))
	}
	return models.RawOffer{
		AreaText:         value(LabelArea),
		RoomsCountText:   value(LabelRooms),
		BuildingTypeText: value(LabelBuilding),
		MarketText:       value(LabelMarket),
	}
}

// nodeText is the single place DOM content becomes plain text
func nodeText(s *goquery.Selection) string {
	return strings.TrimSpace(norm.NFC.String(s.Text()))
}

// OlxExtractor reads olx.pl pages. Detail fields are found by searching the
// page text for the label, so labels embedded in free text are matched too.
type OlxExtractor struct {
	patterns map[string]*regexp.Regexp
}

// NewOlxExtractor creates an extractor for olx.pl
func NewOlxExtractor() *OlxExtractor {
	patterns := make(map[string]*regexp.Regexp)
	for _, label := range []string{LabelArea, LabelRooms, LabelBuilding, LabelMarket} {
		patterns[label] = regexp.MustCompile(regexp.QuoteMeta(label))
	}
	return &OlxExtractor{patterns: patterns}
}

func (e *OlxExtractor) Site() Site { return SiteOLX }

func (e *OlxExtractor) OfferSelector() string { return "div.offer-wrapper" }

// ExtractDetail implements FieldExtractor
func (e *OlxExtractor) ExtractDetail(doc *goquery.Document) models.RawOffer {
	return detailFields(func(label string) string {
		return findText(doc.Selection, e.patterns[label])
	})
}

// ExtractSummary reads one div.offer-wrapper fragment. The footer must hold
// exactly two breadcrumbs, location first and date second.
func (e *OlxExtractor) ExtractSummary(offer *goquery.Selection, base *url.URL) (models.RawOffer, error) {
	footer := offer.Find("td.bottom-cell").First().Find("small.breadcrumb")
	if footer.Length() != 2 {
		return models.RawOffer{}, fmt.Errorf("%w: %d breadcrumbs", ErrFooterShape, footer.Length())
	}

	href, ok := offer.Find("a[href]").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return models.RawOffer{}, ErrMissingLink
	}
	link, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return models.RawOffer{}, fmt.Errorf("invalid detail link %q: %w", href, err)
	}
	if base != nil {
		link = base.ResolveReference(link)
	}

	return models.RawOffer{
		Name:         nodeText(offer.Find("strong").First()),
		PriceText:    nodeText(offer.Find("p.price").First()),
		LocationText: nodeText(footer.Eq(0)),
		DatetimeText: nodeText(footer.Eq(1)),
		Website:      link.String(),
	}, nil
}

// findText returns the first text node below root matching re, skipping
// script and style content
func findText(root *goquery.Selection, re *regexp.Regexp) string {
	var found string
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return false
		}
		if n.Type == html.TextNode && re.MatchString(n.Data) {
			found = n.Data
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	for _, n := range root.Nodes {
		if walk(n) {
			break
		}
	}
	return norm.NFC.String(found)
}

// OtodomExtractor reads otodom.pl pages, where every parameter is a div
// annotated with aria-label set to the field label
type OtodomExtractor struct{}

func NewOtodomExtractor() *OtodomExtractor { return &OtodomExtractor{} }

func (e *OtodomExtractor) Site() Site { return SiteOtodom }

// ExtractDetail implements FieldExtractor
func (e *OtodomExtractor) ExtractDetail(doc *goquery.Document) models.RawOffer {
	return detailFields(func(label string) string {
		sel := doc.Find(fmt.Sprintf(`div[aria-label=%q]`, label)).First()
		if sel.Length() == 0 {
			return ""
		}
		return nodeText(sel)
	})
}
