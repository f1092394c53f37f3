// Package parser turns the raw text fragments scraped from listing pages into
// typed house records. All Polish formatting conventions live here.
package parser

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"house-prices/internal/models"
)

var (
	ErrInvalidPrice    = errors.New("invalid price")
	ErrInvalidDatetime = errors.New("invalid datetime")
)

// aftermarketPattern matches the "wtórny" (secondary market) phrasing,
// optionally still prefixed by the "Rynek" label.
var aftermarketPattern = regexp.MustCompile(`^(rynek)?wt\p{L}*y$`)

// OfferError reports why a single offer could not be parsed
type OfferError struct {
	Name    string
	Website string
	Err     error
}

func (e *OfferError) Error() string {
	return fmt.Sprintf("offer %q (%s): %v", e.Name, e.Website, e.Err)
}

func (e *OfferError) Unwrap() error {
	return e.Err
}

// Result holds the houses parsed from a batch and the offers that were skipped
type Result struct {
	Houses []models.House
	Errors []*OfferError
}

// Parser converts raw offers into houses
type Parser struct {
	// Now returns the current instant; relative dates are resolved against it
	Now func() time.Time
	// Location is the timezone the listing sites display times in
	Location *time.Location
}

// New creates a parser resolving dates in loc against the wall clock
func New(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	return &Parser{Now: time.Now, Location: loc}
}

// Parse converts every offer. Offers with an unparsable price or date are
// collected in Result.Errors instead of aborting the batch.
func (p *Parser) Parse(offers []models.RawOffer) Result {
	var res Result
	for _, offer := range offers {
		h, err := p.ParseOffer(offer)
		if err != nil {
			res.Errors = append(res.Errors, &OfferError{Name: offer.Name, Website: offer.Website, Err: err})
			continue
		}
		res.Houses = append(res.Houses, h)
	}
	return res
}

// ParseOffer converts a single offer
func (p *Parser) ParseOffer(offer models.RawOffer) (models.House, error) {
	offer = Normalize(offer)

	price, err := ParsePrice(offer.PriceText)
	if err != nil {
		return models.House{}, err
	}

	at, err := p.ParseDatetime(offer.DatetimeText)
	if err != nil {
		return models.House{}, err
	}

	city, region := ParseLocation(offer.LocationText)

	h := models.House{
		Name:         offer.Name,
		Datetime:     at,
		Price:        price,
		Website:      offer.Website,
		LocationCity: city,
		Market:       ParseMarket(offer.MarketText),
	}
	if region != "" {
		h.LocationRegion = sql.NullString{String: region, Valid: true}
	}
	if area, ok := ParseArea(offer.AreaText); ok {
		h.Area = sql.NullFloat64{Float64: area, Valid: true}
	}
	if rooms, ok := ParseRooms(offer.RoomsCountText); ok {
		h.RoomsCount = sql.NullInt64{Int64: rooms, Valid: true}
	}
	if bt := ParseBuildingType(offer.BuildingTypeText); bt != "" {
		h.BuildingType = sql.NullString{String: bt, Valid: true}
	}

	return h, nil
}

// Normalize converts every field to trimmed NFC text with non-breaking
// spaces replaced by plain ones
func Normalize(offer models.RawOffer) models.RawOffer {
	clean := func(s string) string {
		s = norm.NFC.String(s)
		s = strings.ReplaceAll(s, "\u00a0", " ")
		return strings.TrimSpace(s)
	}
	return models.RawOffer{
		Name:             clean(offer.Name),
		PriceText:        clean(offer.PriceText),
		DatetimeText:     clean(offer.DatetimeText),
		LocationText:     clean(offer.LocationText),
		AreaText:         clean(offer.AreaText),
		RoomsCountText:   clean(offer.RoomsCountText),
		BuildingTypeText: clean(offer.BuildingTypeText),
		MarketText:       clean(offer.MarketText),
		Website:          clean(offer.Website),
	}
}

// ParsePrice parses texts like "350,5 zł" or "450 000 zł"
func ParsePrice(text string) (float64, error) {
	v, ok := parseDecimal(text)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, text)
	}
	return v, nil
}

// ParseArea parses texts like "54,2 m²". Empty or digitless text is unknown.
func ParseArea(text string) (float64, bool) {
	text = strings.ReplaceAll(text, "²", "")
	return parseDecimal(text)
}

// ParseRooms keeps only the digits of texts like "3 pokoje"
func ParseRooms(text string) (int64, bool) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, text)
	if digits == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseDecimal keeps the digits and the first decimal separator. Comma is
// the decimal separator; spaces and dots group thousands.
func parseDecimal(text string) (float64, bool) {
	var b strings.Builder
	seenSep := false
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ',' && !seenSep && b.Len() > 0:
			b.WriteByte('.')
			seenSep = true
		}
	}
	s := strings.TrimSuffix(b.String(), ".")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseLocation splits "Poznań, Wielkopolskie" into city and region
func ParseLocation(text string) (city, region string) {
	city, region, _ = strings.Cut(text, ",")
	return strings.TrimSpace(city), strings.TrimSpace(region)
}

// ParseBuildingType keeps only the letters of the building type tag
func ParseBuildingType(text string) string {
	return lettersOnly(text)
}

// ParseMarket classifies market text. Empty text has no market.
func ParseMarket(text string) models.Market {
	cleaned := strings.ToLower(lettersOnly(text))
	if cleaned == "" {
		return ""
	}
	if aftermarketPattern.MatchString(cleaned) {
		return models.MarketAftermarket
	}
	return models.MarketPrimary
}

func lettersOnly(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return r
		}
		return -1
	}, text)
}
