package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"house-prices/internal/db"
	"house-prices/internal/houses"
	"house-prices/internal/models"
	"house-prices/internal/parser"
)

type fakeFetcher struct {
	pages    map[string]string
	errs     map[string]error
	requests []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.requests = append(f.requests, url)
	if err, ok := f.errs[url]; ok {
		return "", err
	}
	return f.pages[url], nil
}

func (f *fakeFetcher) count(prefix string) int {
	n := 0
	for _, r := range f.requests {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

const searchURL = "https://www.olx.pl/nieruchomosci/mieszkania/sprzedaz/"

func offerHTML(name, price, link string, breadcrumbs ...string) string {
	var b strings.Builder
	b.WriteString(`<div class="offer-wrapper"><table><tr><td>`)
	b.WriteString(`<a href="` + link + `"><strong>` + name + `</strong></a>`)
	b.WriteString(`<p class="price">` + price + `</p></td></tr><tr><td class="bottom-cell">`)
	for _, c := range breadcrumbs {
		b.WriteString(`<small class="breadcrumb"><span>` + c + `</span></small>`)
	}
	b.WriteString(`</td></tr></table></div>`)
	return b.String()
}

func listPage(offers ...string) string {
	return "<html><body>" + strings.Join(offers, "") + "</body></html>"
}

const olxDetail = `<html><head><script>var x = "Powierzchnia: 999 m²";</script></head><body>
<ul>
<li><p>Prywatne</p></li>
<li><p>Poziom: 2</p></li>
<li><p>Powierzchnia: 54,2 m²</p></li>
<li><p>Liczba pokoi: 3 pokoje</p></li>
<li><p>Rynek: Wtórny</p></li>
<li><p>Rodzaj zabudowy: Blok</p></li>
</ul></body></html>`

const otodomDetail = `<html><body>
<div aria-label="Powierzchnia"><div>Powierzchnia</div><div>72 m²</div></div>
<div aria-label="Liczba pokoi"><div>Liczba pokoi</div><div>4</div></div>
<div aria-label="Rynek"><div>Rynek</div><div>pierwotny</div></div>
</body></html>`

func doc(t *testing.T, body string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return d
}

func TestSiteForURL(t *testing.T) {
	tests := []struct {
		url  string
		want Site
	}{
		{"https://www.olx.pl/d/oferta/mieszkanie-CID3-ID1.html", SiteOLX},
		{"https://www.otodom.pl/pl/oferta/mieszkanie-ID4", SiteOtodom},
		{"https://www.otodom.pl/redirect?to=www.olx.pl", SiteOLX},
		{"https://gratka.pl/nieruchomosci/1", SiteUnknown},
	}
	for _, tt := range tests {
		if got := SiteForURL(tt.url); got != tt.want {
			t.Errorf("SiteForURL(%q) = %v; want %v", tt.url, got, tt.want)
		}
	}
}

func TestOlxExtractDetail(t *testing.T) {
	got := NewOlxExtractor().ExtractDetail(doc(t, olxDetail))
	want := models.RawOffer{
		AreaText:         ": 54,2 m²",
		RoomsCountText:   ": 3 pokoje",
		BuildingTypeText: ": Blok",
		MarketText:       ": Wtórny",
	}
	if got != want {
		t.Errorf("ExtractDetail = %+v; want %+v", got, want)
	}
}

func TestOtodomExtractDetail(t *testing.T) {
	got := NewOtodomExtractor().ExtractDetail(doc(t, otodomDetail))
	want := models.RawOffer{
		AreaText:       "72 m²",
		RoomsCountText: "4",
		MarketText:     "pierwotny",
	}
	if got != want {
		t.Errorf("ExtractDetail = %+v; want %+v", got, want)
	}
}

func TestExtractDetailMissingFields(t *testing.T) {
	empty := doc(t, "<html><body><p>Nic tu nie ma</p></body></html>")
	for _, e := range []FieldExtractor{NewOlxExtractor(), NewOtodomExtractor()} {
		if got := e.ExtractDetail(empty); got != (models.RawOffer{}) {
			t.Errorf("%v ExtractDetail on empty page = %+v", e.Site(), got)
		}
	}
}

func TestOlxExtractSummary(t *testing.T) {
	page := doc(t, listPage(offerHTML("Mieszkanie 3 pokoje", "450 000 zł", "/d/oferta/m-ID1.html", "Poznań, Wielkopolskie", "dzisiaj o 12:00")))
	base, _ := url.Parse("https://www.olx.pl/nieruchomosci/?page=1")

	got, err := NewOlxExtractor().ExtractSummary(page.Find("div.offer-wrapper").First(), base)
	if err != nil {
		t.Fatalf("ExtractSummary: %v", err)
	}
	want := models.RawOffer{
		Name:         "Mieszkanie 3 pokoje",
		PriceText:    "450 000 zł",
		LocationText: "Poznań, Wielkopolskie",
		DatetimeText: "dzisiaj o 12:00",
		Website:      "https://www.olx.pl/d/oferta/m-ID1.html",
	}
	if got != want {
		t.Errorf("ExtractSummary = %+v; want %+v", got, want)
	}
}

func TestOlxExtractSummaryFooterShape(t *testing.T) {
	e := NewOlxExtractor()
	for _, crumbs := range [][]string{{"Poznań"}, {"Poznań", "dzisiaj o 12:00", "extra"}, nil} {
		page := doc(t, listPage(offerHTML("M", "1 zł", "https://www.olx.pl/1", crumbs...)))
		_, err := e.ExtractSummary(page.Find("div.offer-wrapper").First(), nil)
		if !errors.Is(err, ErrFooterShape) {
			t.Errorf("%d breadcrumbs: err = %v; want ErrFooterShape", len(crumbs), err)
		}
	}
}

func TestOlxExtractSummaryMissingLink(t *testing.T) {
	page := doc(t, `<div class="offer-wrapper"><strong>M</strong><table><tr><td class="bottom-cell">
		<small class="breadcrumb">Poznań</small><small class="breadcrumb">3 sty</small></td></tr></table></div>`)
	_, err := NewOlxExtractor().ExtractSummary(page.Find("div.offer-wrapper").First(), nil)
	if !errors.Is(err, ErrMissingLink) {
		t.Errorf("err = %v; want ErrMissingLink", err)
	}
}

func TestFetchDetailDispatch(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://www.olx.pl/d/oferta/a.html": olxDetail,
		"https://www.otodom.pl/pl/oferta/b":  otodomDetail,
	}}
	d := NewDetailFetcher(f)
	ctx := context.Background()

	olx, err := d.FetchDetail(ctx, "https://www.olx.pl/d/oferta/a.html")
	if err != nil || olx.AreaText != ": 54,2 m²" {
		t.Errorf("olx detail = %+v, %v", olx, err)
	}
	otodom, err := d.FetchDetail(ctx, "https://www.otodom.pl/pl/oferta/b")
	if err != nil || otodom.AreaText != "72 m²" {
		t.Errorf("otodom detail = %+v, %v", otodom, err)
	}

	if _, err := d.FetchDetail(ctx, "https://gratka.pl/1"); !errors.Is(err, ErrUnknownSite) {
		t.Errorf("unknown site err = %v", err)
	}
	if len(f.requests) != 2 {
		t.Errorf("requests = %v; unknown sites must not be fetched", f.requests)
	}

	boom := errors.New("connection reset")
	f.errs = map[string]error{"https://www.olx.pl/broken": boom}
	if _, err := d.FetchDetail(ctx, "https://www.olx.pl/broken"); !errors.Is(err, boom) {
		t.Errorf("fetch err = %v; want wrapped %v", err, boom)
	}
}

func TestScrapeRequestsEveryPageBelowMax(t *testing.T) {
	tests := []struct {
		maxPage int
		want    int
	}{
		{maxPage: 1, want: 0},
		{maxPage: 0, want: 0},
		{maxPage: 2, want: 1},
		{maxPage: 15, want: 14},
	}

	for _, tt := range tests {
		f := &fakeFetcher{pages: map[string]string{
			searchURL + "?page=1":  listPage(offerHTML("M", "1 zł", "https://www.olx.pl/1", "Poznań", "3 sty")),
			"https://www.olx.pl/1": olxDetail,
		}}
		offers, err := NewHouseScraper(f, tt.maxPage).Scrape(context.Background(), searchURL)
		if err != nil {
			t.Fatalf("maxPage %d: Scrape: %v", tt.maxPage, err)
		}
		if got := f.count(searchURL); got != tt.want {
			t.Errorf("maxPage %d: %d page requests; want %d", tt.maxPage, got, tt.want)
		}
		if tt.want > 0 && len(offers) != 1 {
			t.Errorf("maxPage %d: %d offers; want 1", tt.maxPage, len(offers))
		}
	}
}

func TestScrapeMergesDetailsAndSkipsBrokenOffers(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		searchURL + "?page=1": listPage(
			offerHTML("A", "100 zł", "https://www.olx.pl/a", "Poznań, Wielkopolskie", "dzisiaj o 12:00"),
			offerHTML("Broken", "100 zł", "https://www.olx.pl/x", "Poznań"),
			offerHTML("Elsewhere", "100 zł", "https://gratka.pl/g", "Poznań", "3 sty"),
		),
		searchURL + "?page=2": listPage(
			offerHTML("B", "200 zł", "https://www.otodom.pl/b", "Gniezno", "wczoraj o 09:10"),
		),
		"https://www.olx.pl/a":    olxDetail,
		"https://www.otodom.pl/b": otodomDetail,
	}}

	offers, err := NewHouseScraper(f, 4).Scrape(context.Background(), searchURL)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(offers) != 2 {
		t.Fatalf("offers = %+v; want A and B", offers)
	}
	a, b := offers[0], offers[1]
	if a.Name != "A" || a.RoomsCountText != ": 3 pokoje" || a.LocationText != "Poznań, Wielkopolskie" {
		t.Errorf("A = %+v", a)
	}
	if b.Name != "B" || b.AreaText != "72 m²" || b.DatetimeText != "wczoraj o 09:10" {
		t.Errorf("B = %+v", b)
	}
	if f.count(searchURL) != 3 {
		t.Errorf("%d page requests; want 3", f.count(searchURL))
	}
}

func TestOffersYieldsOfferErrors(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		searchURL + "?page=1": listPage(offerHTML("Broken", "1 zł", "https://www.olx.pl/x", "Poznań")),
	}}

	var offerErrs int
	for _, err := range NewHouseScraper(f, 2).Offers(context.Background(), searchURL) {
		var oe *OfferError
		if !errors.As(err, &oe) || oe.Page != 1 {
			t.Fatalf("err = %v; want *OfferError on page 1", err)
		}
		offerErrs++
	}
	if offerErrs != 1 {
		t.Errorf("offer errors = %d; want 1", offerErrs)
	}
}

func TestScrapeAbortsOnFetchError(t *testing.T) {
	boom := errors.New("timeout")
	f := &fakeFetcher{
		pages: map[string]string{
			searchURL + "?page=1": listPage(offerHTML("A", "1 zł", "https://www.olx.pl/a", "Poznań", "3 sty")),
		},
		errs: map[string]error{"https://www.olx.pl/a": boom},
	}

	_, err := NewHouseScraper(f, 5).Scrape(context.Background(), searchURL)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v; want %v", err, boom)
	}
	if f.count(searchURL) != 1 {
		t.Errorf("kept paging after a failed detail fetch: %v", f.requests)
	}
}

func TestScrapeStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &fakeFetcher{}
	_, err := NewHouseScraper(f, 5).Scrape(ctx, searchURL)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v; want context.Canceled", err)
	}
	if len(f.requests) != 0 {
		t.Errorf("requests = %v", f.requests)
	}
}

func TestWithPageKeepsQuery(t *testing.T) {
	u, err := withPage("https://www.olx.pl/nieruchomosci/?search%5Bfilter_float_price%3Ato%5D=1000000", 3)
	if err != nil {
		t.Fatalf("withPage: %v", err)
	}
	q := u.Query()
	if q.Get("page") != "3" || q.Get("search[filter_float_price:to]") != "1000000" {
		t.Errorf("query = %v", q)
	}
}

func TestHTTPFetcher(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5*time.Second, 0, "house-prices-test")
	body, err := f.Fetch(context.Background(), srv.URL+"/page")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if body != "<html>ok</html>" || gotUA != "house-prices-test" {
		t.Errorf("body = %q, UA = %q", body, gotUA)
	}

	if _, err := f.Fetch(context.Background(), srv.URL+"/missing"); err == nil || !strings.Contains(err.Error(), "HTTP 404") {
		t.Errorf("err = %v; want HTTP 404", err)
	}
}

func TestScrapingBeeFetcher(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		w.Write([]byte("<html>proxied</html>"))
	}))
	defer srv.Close()

	f := NewScrapingBeeFetcher("key", 0, DefaultListingOptions())
	f.baseURL = srv.URL + "/"

	body, err := f.Fetch(context.Background(), "https://www.otodom.pl/pl/oferta/b")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if body != "<html>proxied</html>" {
		t.Errorf("body = %q", body)
	}
	if got.Get("api_key") != "key" || got.Get("url") != "https://www.otodom.pl/pl/oferta/b" || got.Get("country_code") != "pl" {
		t.Errorf("query = %v", got)
	}
}

func TestPipelineRun(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	now := time.Date(2026, 10, 19, 18, 0, 0, 0, loc)
	p := &parser.Parser{Now: func() time.Time { return now }, Location: loc}

	database, err := db.New(db.DriverSQLite, filepath.Join(t.TempDir(), "houses.db"))
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	defer database.Close()

	f := &fakeFetcher{pages: map[string]string{
		searchURL + "?page=1": listPage(
			offerHTML("Mieszkanie", "450 000 zł", "https://www.olx.pl/a", "Poznań, Wielkopolskie", "dzisiaj o 12:00"),
			offerHTML("Mieszkanie", "450 000 zł", "https://www.olx.pl/a", "Poznań, Wielkopolskie", "dzisiaj o 12:00"),
			offerHTML("Zamiana", "Zamienię", "https://www.olx.pl/z", "Poznań", "3 sty"),
		),
		"https://www.olx.pl/a": olxDetail,
		"https://www.olx.pl/z": olxDetail,
	}}

	config := Config{SearchURLs: []string{searchURL}, MaxPage: 3}
	pipeline := New(f, p, houses.NewReconciler(database), config)

	res, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RunID == "" || res.Scraped != 3 || res.Parsed != 2 || len(res.ParseErrors) != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Created) != 1 {
		t.Fatalf("created = %+v; want one deduplicated house", res.Created)
	}

	h := res.Created[0]
	if h.Price != 450000 || h.Area.Float64 != 54.2 || h.RoomsCount.Int64 != 3 ||
		h.Market != models.MarketAftermarket || h.BuildingType.String != "Blok" {
		t.Errorf("stored house = %+v", h)
	}
	if want := time.Date(2026, 10, 19, 12, 0, 0, 0, loc); !h.Datetime.Equal(want) {
		t.Errorf("datetime = %v; want %v", h.Datetime, want)
	}

	// A second run updates instead of duplicating
	if _, err := pipeline.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	count, err := database.Count(context.Background())
	if err != nil || count != 1 {
		t.Errorf("count = %d, %v; want 1", count, err)
	}
}

func TestNewFetcher(t *testing.T) {
	tests := []struct {
		name    string
		opts    FetcherOptions
		want    string
		wantErr bool
	}{
		{"default is http", FetcherOptions{}, "*scraper.HTTPFetcher", false},
		{"scrapingbee", FetcherOptions{Mode: "scrapingbee", ScrapingBeeKey: "k"}, "*scraper.ScrapingBeeFetcher", false},
		{"scrapingbee without key", FetcherOptions{Mode: "scrapingbee"}, "", true},
		{"unknown", FetcherOptions{Mode: "ftp"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, stop, err := NewFetcher(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFetcher() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer stop()
			if got := fmt.Sprintf("%T", f); got != tt.want {
				t.Errorf("NewFetcher() = %s, want %s", got, tt.want)
			}
		})
	}
}
