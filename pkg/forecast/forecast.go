// Package forecast loads solar yield forecasts from the Solcast rooftop API
// and caches a day's responses in a local JSON file so repeated runs don't
// burn through the API call allowance.
package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"time"

	"github.com/gridpilot/gridpilot/pkg/log"
	"github.com/gridpilot/gridpilot/pkg/types"
)

// ReloadMode controls how Fetch treats the cache file.
type ReloadMode int

const (
	// ReloadIfStale uses the cache file only when its date is today.
	ReloadIfStale ReloadMode = iota
	// ReloadForce discards the cache file and always calls the API.
	ReloadForce
	// ReloadNever uses the cache file regardless of its date.
	ReloadNever
)

// RateLimitError indicates the daily Solcast API call allowance is spent.
type RateLimitError struct {
	Endpoint string
}

func (e RateLimitError) Error() string {
	return fmt.Sprintf("solcast: rate limited fetching %s", e.Endpoint)
}

var (
	// ErrNoAPIKey is returned when no API key is configured.
	ErrNoAPIKey = errors.New("solcast: api key not set")
	// ErrNoSites is returned when no rooftop site IDs are configured.
	ErrNoSites = errors.New("solcast: site ids not set")
)

var dataSets = [2]string{"forecasts", "estimated_actuals"}

// sample is a single 30 minute slot as returned by the API. PVEstimate is
// average kW over the slot ending at PeriodEnd.
type sample struct {
	PeriodEnd  string  `json:"period_end"`
	PVEstimate float64 `json:"pv_estimate"`
}

// document is the cache file layout: the raw per-site responses for both
// data sets, keyed by the date they were fetched. It round-trips losslessly
// so a cached day aggregates identically to a fresh one.
type document struct {
	Date             string              `json:"date"`
	Forecasts        map[string][]sample `json:"forecasts"`
	EstimatedActuals map[string][]sample `json:"estimated_actuals"`
}

func (d *document) sets() [2]map[string][]sample {
	return [2]map[string][]sample{d.Forecasts, d.EstimatedActuals}
}

// Day is the aggregated yield for one whole date across all sites.
type Day struct {
	Date string
	// Forecast is true when the date came from the forward-looking data set
	// rather than estimated actuals.
	Forecast bool
	// KWh is the calibrated yield for the day.
	KWh float64
}

// Yield is the aggregated output of a Fetch.
type Yield struct {
	// Days is sorted by date. The partial first and last dates of the raw
	// response are already dropped.
	Days       []Day
	TotalKWh   float64
	AverageKWh float64
}

// ForecastTomorrow returns the yield expected for the first full forecast
// day after today, rounded to 1 decimal place. ok is false when the data
// doesn't reach that far.
func (y *Yield) ForecastTomorrow() (float64, bool) {
	next := y.ForecastNext(1)
	if len(next) == 0 {
		return 0, false
	}
	return next[0], true
}

// ForecastNext returns up to n daily yields from the forecast-flagged days,
// skipping the first of them since it is already underway. Values are
// rounded to 1 decimal place.
func (y *Yield) ForecastNext(n int) []float64 {
	var vals []float64
	first := true
	for _, d := range y.Days {
		if !d.Forecast {
			continue
		}
		if first {
			first = false
			continue
		}
		vals = append(vals, types.Round1(d.KWh))
		if len(vals) == n {
			break
		}
	}
	return vals
}

// Solcast fetches rooftop forecasts and estimated actuals.
type Solcast struct {
	client  *http.Client
	baseURL string

	apiKey  string
	siteIDs []string

	// cachePath holds the day's raw responses; empty disables caching.
	cachePath string
	// calibration scales the yields handed out, not the cached data.
	calibration float64

	now func() time.Time
}

// New returns a Solcast client. A zero calibration is treated as 1.
func New(client *http.Client, apiKey string, siteIDs []string, cachePath string, calibration float64) *Solcast {
	if calibration == 0 {
		calibration = 1.0
	}
	return &Solcast{
		client:      client,
		baseURL:     "https://api.solcast.com.au/",
		apiKey:      apiKey,
		siteIDs:     siteIDs,
		cachePath:   cachePath,
		calibration: calibration,
		now:         time.Now,
	}
}

// Fetch returns aggregated daily yields covering roughly days of estimated
// actuals and days of forecast. The API returns 168 half-hour slots each
// way, so more than requested may be available; the range is trimmed
// symmetrically until at most 2*days remain.
func (s *Solcast) Fetch(ctx context.Context, days int, reload ReloadMode) (*Yield, error) {
	today := s.now().Format(types.DateFormat)
	if reload == ReloadForce && s.cachePath != "" {
		os.Remove(s.cachePath)
	}

	doc := s.loadCache(ctx, today, reload)
	if doc == nil {
		var err error
		doc, err = s.download(ctx, today)
		if err != nil {
			return nil, err
		}
		s.saveCache(ctx, doc)
	}
	return s.aggregate(doc, days), nil
}

func (s *Solcast) loadCache(ctx context.Context, today string, reload ReloadMode) *document {
	if s.cachePath == "" {
		return nil
	}
	raw, err := os.ReadFile(s.cachePath)
	if err != nil {
		return nil
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil || doc.Date == "" {
		log.Ctx(ctx).Warn("ignoring unreadable forecast cache", "path", s.cachePath)
		return nil
	}
	if reload == ReloadIfStale && doc.Date != today {
		return nil
	}
	log.Ctx(ctx).Debug("using cached forecast", "date", doc.Date, "path", s.cachePath)
	return &doc
}

func (s *Solcast) saveCache(ctx context.Context, doc *document) {
	if s.cachePath == "" {
		return
	}
	raw, err := json.MarshalIndent(doc, "", "    ")
	if err == nil {
		err = os.WriteFile(s.cachePath, raw, 0o644)
	}
	if err != nil {
		log.Ctx(ctx).Warn("failed to save forecast cache", "path", s.cachePath, "error", err)
	}
}

func (s *Solcast) download(ctx context.Context, today string) (*document, error) {
	if s.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if len(s.siteIDs) == 0 {
		return nil, ErrNoSites
	}
	log.Ctx(ctx).Info("downloading forecast", "date", today, "sites", len(s.siteIDs))
	doc := &document{
		Date:             today,
		Forecasts:        map[string][]sample{},
		EstimatedActuals: map[string][]sample{},
	}
	sets := doc.sets()
	for i, set := range dataSets {
		for _, rid := range s.siteIDs {
			samples, err := s.fetchSet(ctx, rid, set)
			if err != nil {
				return nil, err
			}
			sets[i][rid] = samples
		}
	}
	return doc, nil
}

func (s *Solcast) fetchSet(ctx context.Context, rid, set string) ([]sample, error) {
	endpoint := s.baseURL + "rooftop_sites/" + url.PathEscape(rid) + "/" + set
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("format", "json")
	q.Set("hours", "168")
	q.Set("period", "PT30M")
	req.URL.RawQuery = q.Encode()
	req.SetBasicAuth(s.apiKey, "")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("solcast: fetching %s for %s: %w", set, rid, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, RateLimitError{Endpoint: set}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("solcast: fetching %s for %s: status %d", set, rid, resp.StatusCode)
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("solcast: decoding %s for %s: %w", set, rid, err)
	}
	var samples []sample
	if raw, ok := body[set]; ok {
		if err := json.Unmarshal(raw, &samples); err != nil {
			return nil, fmt.Errorf("solcast: decoding %s for %s: %w", set, rid, err)
		}
	}
	return samples, nil
}

// aggregate sums pv_estimate/2 per half-hour slot into per-date kWh. Both
// data sets cover the current time, so a site's slot is only counted once
// per date no matter which set it appears in.
func (s *Solcast) aggregate(doc *document, days int) *Yield {
	type dayAgg struct {
		forecast bool
		kwh      float64
		seen     map[string]map[string]bool
	}
	daily := map[string]*dayAgg{}
	sets := doc.sets()
	for i, set := range dataSets {
		for rid, samples := range sets[i] {
			for _, f := range samples {
				if len(f.PeriodEnd) < 16 {
					continue
				}
				date, slot := f.PeriodEnd[:10], f.PeriodEnd[11:16]
				d := daily[date]
				if d == nil {
					d = &dayAgg{forecast: set == "forecasts", seen: map[string]map[string]bool{}}
					daily[date] = d
				}
				if d.seen[rid] == nil {
					d.seen[rid] = map[string]bool{}
				}
				if d.seen[rid][slot] {
					continue
				}
				d.seen[rid][slot] = true
				d.kwh += f.PVEstimate / 2
			}
		}
	}

	keys := make([]string, 0, len(daily))
	for k := range daily {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	// first and last dates only cover part of the day
	if len(keys) >= 2 {
		keys = keys[1 : len(keys)-1]
	} else {
		keys = nil
	}
	for len(keys) > 2*days {
		keys = keys[1 : len(keys)-1]
	}

	y := &Yield{}
	for _, k := range keys {
		d := daily[k]
		kwh := d.kwh * s.calibration
		y.Days = append(y.Days, Day{Date: k, Forecast: d.forecast, KWh: kwh})
		y.TotalKWh += kwh
	}
	if len(y.Days) > 0 {
		y.AverageKWh = y.TotalKWh / float64(len(y.Days))
	}
	return y
}
