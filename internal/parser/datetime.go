package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Relative day tokens as shown by OLX, e.g. "dzisiaj o 14:05"
const (
	tokenToday     = "dzisiaj"
	tokenYesterday = "wczoraj"
)

// Polish month abbreviations keyed by their last three characters
var months = map[string]time.Month{
	"sty": time.January,
	"lut": time.February,
	"mar": time.March,
	"kwi": time.April,
	"wie": time.April, // "kwie"
	"maj": time.May,
	"cze": time.June,
	"lip": time.July,
	"sie": time.August,
	"wrz": time.September,
	"paź": time.October,
	"lis": time.November,
	"gru": time.December,
}

// ParseDatetime parses the listing footer date. Two shapes are recognised:
// a relative day followed by the time ("wczoraj o 09:10") and a day with an
// abbreviated month ("3 sty") in the current year.
func (p *Parser) ParseDatetime(text string) (time.Time, error) {
	now := p.Now().In(p.location())
	r := []rune(strings.TrimSpace(text))

	if len(r) > 6 {
		core := strings.ToLower(strings.TrimSpace(string(r[:len(r)-6])))
		switch strings.TrimSuffix(core, " o") {
		case tokenToday:
			return restoreTime(now, r)
		case tokenYesterday:
			return restoreTime(now.AddDate(0, 0, -1), r)
		}
	}

	if len(r) < 5 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDatetime, text)
	}
	month, ok := months[string(r[len(r)-3:])]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: unknown month in %q", ErrInvalidDatetime, text)
	}
	day, err := strconv.Atoi(strings.TrimSpace(string(r[:len(r)-4])))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDatetime, text)
	}
	at := time.Date(now.Year(), month, day, 0, 0, 0, 0, p.location())
	if at.Day() != day {
		return time.Time{}, fmt.Errorf("%w: day %d out of range in %q", ErrInvalidDatetime, day, text)
	}
	return at, nil
}

// restoreTime sets the clock of day from the trailing "HH:MM" of text
func restoreTime(day time.Time, text []rune) (time.Time, error) {
	clock, err := time.Parse("15:04", string(text[len(text)-5:]))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidDatetime, string(text), err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, day.Location()), nil
}

func (p *Parser) location() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}
