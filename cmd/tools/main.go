package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"house-prices/internal/config"
	"house-prices/internal/db"
	"house-prices/internal/models"
	"house-prices/internal/parser"
	"house-prices/internal/scraper"
	"house-prices/internal/stats"
)

func main() {
	// Sub-commands
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	os.Args = os.Args[1:] // Shift args for flag parsing

	switch cmd {
	case "clear":
		clearHouses()
	case "remove":
		removeHouse()
	case "count":
		countHouses()
	case "stats":
		printStats()
	case "parse":
		parseSaved()
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: tools <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  clear   Delete every stored house")
	fmt.Println("  remove  Delete houses by exact name (-name)")
	fmt.Println("  count   Print the number of stored houses")
	fmt.Println("  stats   Print per-city counts and monthly average prices")
	fmt.Println("  parse   Extract and parse a saved detail page (-file, -url)")
}

// openDB registers the shared -config and -db flags, parses the command
// line and opens the configured database
func openDB(fs *flag.FlagSet) *db.DB {
	configPath := fs.String("config", "", "Path to YAML config file")
	dsn := fs.String("db", "", "SQLite path or Postgres connection string")
	fs.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dsn != "" {
		cfg.Database.DSN = *dsn
	}

	database, err := db.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	return database
}

func clearHouses() {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	database := openDB(fs)
	defer database.Close()

	n, err := database.DeleteAll(context.Background())
	if err != nil {
		log.Fatalf("Failed to clear houses: %v", err)
	}
	log.Printf("Deleted %s houses", humanize.Comma(n))
}

func removeHouse() {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	name := fs.String("name", "", "Exact listing name")
	database := openDB(fs)
	defer database.Close()

	if *name == "" {
		log.Fatal("-name is required")
	}

	n, err := database.RemoveByName(context.Background(), *name)
	if err != nil {
		log.Fatalf("Failed to remove %q: %v", *name, err)
	}
	log.Printf("Removed %d houses named %q", n, *name)
}

func countHouses() {
	fs := flag.NewFlagSet("count", flag.ExitOnError)
	database := openDB(fs)
	defer database.Close()

	count, err := database.Count(context.Background())
	if err != nil {
		log.Fatalf("Failed to count houses: %v", err)
	}
	fmt.Println(humanize.Comma(int64(count)))
}

func printStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	period := fs.String("period", "month", "Average bucket: day, week, month or year")
	database := openDB(fs)
	defer database.Close()

	by, err := stats.ParsePeriod(*period)
	if err != nil {
		log.Fatal(err)
	}

	all, err := database.GetAll(context.Background())
	if err != nil {
		log.Fatalf("Failed to load houses: %v", err)
	}

	perCity := make(map[string]int)
	for _, h := range all {
		perCity[h.LocationCity]++
	}
	cities := make([]string, 0, len(perCity))
	for c := range perCity {
		cities = append(cities, c)
	}
	sort.Slice(cities, func(i, j int) bool { return perCity[cities[i]] > perCity[cities[j]] })

	fmt.Printf("%s houses in %d cities\n", humanize.Comma(int64(len(all))), len(cities))
	for _, c := range cities {
		fmt.Printf("  %-24s %s\n", c, humanize.Comma(int64(perCity[c])))
	}

	avg := stats.AveragePrices(all, by, time.Time{}, time.Time{})
	printSeries(string(models.MarketAftermarket), avg.Aftermarket)
	printSeries(string(models.MarketPrimary), avg.PrimaryMarket)
}

func printSeries(title string, points []stats.Point) {
	fmt.Printf("\n%s (price per m²)\n", title)
	if len(points) == 0 {
		fmt.Println("  no data")
		return
	}
	for _, p := range points {
		fmt.Printf("  %-10s %12s zł  (%s listings)\n", p.Period,
			humanize.CommafWithDigits(p.PricePerMeter, 2), humanize.Comma(int64(p.Count)))
	}
}

// fileFetcher serves a saved page for every URL
type fileFetcher struct {
	path string
}

func (f fileFetcher) Fetch(ctx context.Context, url string) (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func parseSaved() {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	file := fs.String("file", "", "Saved detail page HTML")
	link := fs.String("url", "", "Original listing URL, selects the site layout")
	fs.Parse(os.Args[1:])

	if *file == "" || *link == "" {
		log.Fatal("-file and -url are required")
	}

	details := scraper.NewDetailFetcher(fileFetcher{path: *file})
	raw, err := details.FetchDetail(context.Background(), *link)
	if err != nil {
		log.Fatalf("Failed to extract %s: %v", *file, err)
	}

	fmt.Printf("%s: %q\n", scraper.LabelArea, raw.AreaText)
	fmt.Printf("%s: %q\n", scraper.LabelRooms, raw.RoomsCountText)
	fmt.Printf("%s: %q\n", scraper.LabelBuilding, raw.BuildingTypeText)
	fmt.Printf("%s: %q\n", scraper.LabelMarket, raw.MarketText)

	raw = parser.Normalize(raw)
	if area, ok := parser.ParseArea(raw.AreaText); ok {
		fmt.Printf("area: %.2f m²\n", area)
	}
	if rooms, ok := parser.ParseRooms(raw.RoomsCountText); ok {
		fmt.Printf("rooms: %d\n", rooms)
	}
	fmt.Printf("building type: %s\n", parser.ParseBuildingType(raw.BuildingTypeText))
	fmt.Printf("market: %s\n", parser.ParseMarket(raw.MarketText))
}
