package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"house-prices/internal/db"
	"house-prices/internal/models"
	"house-prices/internal/scraper"
	"house-prices/internal/stats"
)

// Runner executes one scrape pipeline run
type Runner interface {
	Run(ctx context.Context) (*scraper.RunResult, error)
}

// RunStatus reports the background scrape state
type RunStatus struct {
	Running   bool       `json:"running"`
	LastRunID string     `json:"last_run_id,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	Created   int        `json:"created"`
	Error     string     `json:"error,omitempty"`
}

// Handlers contains HTTP handlers and their dependencies
type Handlers struct {
	db     *db.DB
	runner Runner
	loc    *time.Location

	mu     sync.Mutex
	status RunStatus
	// runs tracks background scrapes so tests can wait for them
	runs sync.WaitGroup
}

// NewHandlers creates a new Handlers instance
func NewHandlers(database *db.DB, runner Runner, loc *time.Location) *Handlers {
	if loc == nil {
		loc = time.Local
	}
	return &Handlers{db: database, runner: runner, loc: loc}
}

// ListHouses handles GET /api/houses
func (h *Handlers) ListHouses(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	filter.Limit = 100
	if v := q.Get("limit"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 && val <= 1000 {
			filter.Limit = val
		}
	}
	if v := q.Get("offset"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val >= 0 {
			filter.Offset = val
		}
	}

	found, err := h.db.ListHouses(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	details := make([]models.HouseDetail, len(found))
	for i, house := range found {
		details[i] = house.Detail()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"houses": details,
		"count":  len(details),
	})
}

// GetHouse handles GET /api/houses/{id}
func (h *Handlers) GetHouse(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid house ID", http.StatusBadRequest)
		return
	}

	house, err := h.db.GetHouse(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "house not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, house.Detail())
}

// GetFilterOptions handles GET /api/filters/options
func (h *Handlers) GetFilterOptions(w http.ResponseWriter, r *http.Request) {
	options, err := h.db.GetFilterOptions(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, options)
}

// GetAverages handles GET /api/averages
func (h *Handlers) GetAverages(w http.ResponseWriter, r *http.Request) {
	period, err := stats.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	filter, err := h.parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	found, err := h.db.ListHouses(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Bucket in local time so a day means a Polish calendar day
	for i := range found {
		found[i].Datetime = found[i].Datetime.In(h.loc)
	}

	// The date range was already applied by the query
	writeJSON(w, http.StatusOK, stats.AveragePrices(found, period, time.Time{}, time.Time{}))
}

// TriggerScrape handles POST /api/scrape/trigger
func (h *Handlers) TriggerScrape(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		http.Error(w, "scraping is not configured", http.StatusServiceUnavailable)
		return
	}

	h.mu.Lock()
	if h.status.Running {
		h.mu.Unlock()
		writeJSON(w, http.StatusConflict, map[string]string{
			"status":  "running",
			"message": "A scrape is already in progress",
		})
		return
	}
	h.status.Running = true
	h.mu.Unlock()

	h.runs.Add(1)
	go func() {
		defer h.runs.Done()
		h.runScrape()
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "queued",
		"message": "Scrape job has been queued",
	})
}

func (h *Handlers) runScrape() {
	// Detached from the request, which ends as soon as the job is queued
	res, err := h.runner.Run(context.Background())

	now := time.Now()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = RunStatus{LastRunAt: &now}
	if err != nil {
		log.Printf("Triggered scrape failed: %v", err)
		h.status.Error = err.Error()
		return
	}
	h.status.LastRunID = res.RunID
	h.status.Created = len(res.Created)
}

// ScrapeStatus handles GET /api/scrape/status
func (h *Handlers) ScrapeStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	status := h.status
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, status)
}

// parseFilter reads the listing filters shared by ListHouses and GetAverages
func (h *Handlers) parseFilter(r *http.Request) (db.HouseFilter, error) {
	q := r.URL.Query()
	filter := db.HouseFilter{}

	if v := q.Get("cities"); v != "" {
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				filter.Cities = append(filter.Cities, c)
			}
		}
	}

	if v := q.Get("start_date"); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, h.loc)
		if err != nil {
			return filter, errors.New("invalid start_date, want YYYY-MM-DD")
		}
		filter.StartDate = &t
	}
	if v := q.Get("end_date"); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, h.loc)
		if err != nil {
			return filter, errors.New("invalid end_date, want YYYY-MM-DD")
		}
		// The whole end day is included
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		filter.EndDate = &t
	}

	// Parse price and area filters
	var err error
	if filter.PriceFrom, err = floatParam(q.Get("price_from")); err != nil {
		return filter, err
	}
	if filter.PriceTo, err = floatParam(q.Get("price_to")); err != nil {
		return filter, err
	}
	if filter.AreaFrom, err = floatParam(q.Get("area_from")); err != nil {
		return filter, err
	}
	if filter.AreaTo, err = floatParam(q.Get("area_to")); err != nil {
		return filter, err
	}

	if v := q.Get("market"); v != "" {
		m := models.Market(v)
		if !m.Valid() {
			return filter, errors.New("invalid market")
		}
		filter.Market = m
	}

	return filter, nil
}

func floatParam(v string) (*float64, error) {
	if v == "" {
		return nil, nil
	}
	val, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, errors.New("invalid number " + strconv.Quote(v))
	}
	return &val, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
