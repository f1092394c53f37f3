// Package stats computes the aggregates the dashboard charts are drawn from.
package stats

import (
	"fmt"
	"math"
	"sort"
	"time"

	"house-prices/internal/models"
)

// Period is the bucket size averages are grouped by
type Period string

const (
	Day   Period = "day"
	Week  Period = "week"
	Month Period = "month"
	Year  Period = "year"
)

// ParsePeriod validates a period name, defaulting to Day for empty input
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case "":
		return Day, nil
	case Day, Week, Month, Year:
		return p, nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// TrimPercent is the share of listings dropped from each end of the price
// range before averaging
const TrimPercent = 5

// Point is the average price per square meter within one period
type Point struct {
	Period        string    `json:"period"`
	Start         time.Time `json:"start"`
	PricePerMeter float64   `json:"price_per_meter"`
	Count         int       `json:"count"`
	Cities        []string  `json:"cities"`
}

// Averages holds one series per market
type Averages struct {
	Aftermarket   []Point `json:"aftermarket"`
	PrimaryMarket []Point `json:"primary_market"`
}

// AveragePrices splits houses by market and averages their price per square
// meter per period. Points starting outside [from, to] are dropped; zero
// bounds are open.
func AveragePrices(houses []models.House, by Period, from, to time.Time) Averages {
	var after, primary []models.House
	for _, h := range houses {
		switch h.Market {
		case models.MarketAftermarket:
			after = append(after, h)
		case models.MarketPrimary:
			primary = append(primary, h)
		}
	}
	return Averages{
		Aftermarket:   between(average(after, by), from, to),
		PrimaryMarket: between(average(primary, by), from, to),
	}
}

func average(houses []models.House, by Period) []Point {
	var priced []models.House
	for _, h := range houses {
		if h.Area.Valid && h.Area.Float64 > 0 {
			priced = append(priced, h)
		}
	}
	priced = TrimEdges(priced)

	type bucket struct {
		start  time.Time
		sum    float64
		count  int
		cities map[string]bool
	}
	buckets := make(map[string]*bucket)
	for _, h := range priced {
		key, start := periodOf(h.Datetime, by)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{start: start, cities: make(map[string]bool)}
			buckets[key] = b
		}
		b.sum += h.Price / h.Area.Float64
		b.count++
		b.cities[h.LocationCity] = true
	}

	points := make([]Point, 0, len(buckets))
	for key, b := range buckets {
		cities := make([]string, 0, len(b.cities))
		for c := range b.cities {
			cities = append(cities, c)
		}
		sort.Strings(cities)
		points = append(points, Point{
			Period:        key,
			Start:         b.start,
			PricePerMeter: math.Round(b.sum/float64(b.count)*100) / 100,
			Count:         b.count,
			Cities:        cities,
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Start.Before(points[j].Start) })
	return points
}

// TrimEdges sorts houses by price and drops TrimPercent of them from each end
func TrimEdges(houses []models.House) []models.House {
	sorted := make([]models.House, len(houses))
	copy(sorted, houses)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Price < sorted[j].Price })

	cut := len(sorted) * TrimPercent / 100
	return sorted[cut : len(sorted)-cut]
}

// periodOf returns the bucket key and the bucket start for t. Weeks start
// on Sunday and are numbered like strftime's %U.
func periodOf(t time.Time, by Period) (string, time.Time) {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	switch by {
	case Week:
		start := day.AddDate(0, 0, -int(day.Weekday()))
		week := (day.YearDay() + 6 - int(day.Weekday())) / 7
		return fmt.Sprintf("%d-%02d", y, week), start
	case Month:
		return fmt.Sprintf("%d-%02d", y, m), time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
	case Year:
		return fmt.Sprintf("%d", y), time.Date(y, 1, 1, 0, 0, 0, 0, t.Location())
	default:
		return day.Format("2006-01-02"), day
	}
}

func between(points []Point, from, to time.Time) []Point {
	out := points[:0]
	for _, p := range points {
		if !from.IsZero() && p.Start.Before(from) {
			continue
		}
		if !to.IsZero() && p.Start.After(to) {
			continue
		}
		out = append(out, p)
	}
	return out
}
