package places

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/joelkehle/trip-planner/internal/itinerary"
)

// fakeMaps serves the three Maps endpoints from in-memory fixtures and
// counts requests per endpoint.
type fakeMaps struct {
	mu           sync.Mutex
	geocodeHits  int
	searchHits   int
	detailsHits  int
	geocodeBody  any
	searchBody   any
	detailsByID  map[string]any
	lastSearchQP map[string]string
}

func (f *fakeMaps) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(geocodePath, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.geocodeHits++
		f.mu.Unlock()
		writeJSON(w, f.geocodeBody)
	})
	mux.HandleFunc(textSearchPath, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.searchHits++
		f.lastSearchQP = map[string]string{
			"query":  r.URL.Query().Get("query"),
			"radius": r.URL.Query().Get("radius"),
		}
		f.mu.Unlock()
		writeJSON(w, f.searchBody)
	})
	mux.HandleFunc(detailsPath, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.detailsHits++
		f.mu.Unlock()
		body, ok := f.detailsByID[r.URL.Query().Get("place_id")]
		if !ok {
			writeJSON(w, map[string]any{"status": "NOT_FOUND"})
			return
		}
		writeJSON(w, body)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func geocodeOsaka() any {
	return map[string]any{
		"status": "OK",
		"results": []any{map[string]any{
			"geometry": map[string]any{"location": map[string]float64{"lat": 34.6937, "lng": 135.5023}},
			"address_components": []any{map[string]any{
				"short_name": "JP", "types": []string{"country", "political"},
			}},
		}},
	}
}

func searchResult(entries ...map[string]any) any {
	return map[string]any{"status": "OK", "results": entries}
}

func candidateJSON(placeID string, lat, lng float64) map[string]any {
	return map[string]any{
		"place_id": placeID,
		"name":     placeID,
		"geometry": map[string]any{"location": map[string]float64{"lat": lat, "lng": lng}},
	}
}

func detailJSON(placeID string, rating float64, reviews int, status string) map[string]any {
	return map[string]any{
		"status": "OK",
		"result": map[string]any{
			"place_id":           placeID,
			"name":               placeID,
			"business_status":    status,
			"rating":             rating,
			"user_ratings_total": reviews,
			"geometry":           map[string]any{"location": map[string]float64{"lat": 34.70, "lng": 135.50}},
		},
	}
}

func newTestVerifier(t *testing.T, f *fakeMaps) *Verifier {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	client, err := NewClient(ClientConfig{APIKey: "test-key", BaseURL: srv.URL, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return NewVerifier(client, VerifierConfig{})
}

func baseQuery() itinerary.VerifyQuery {
	return itinerary.VerifyQuery{
		Place:              "오사카성",
		City:               "오사카",
		RadiusKm:           60,
		MinRating:          4.0,
		MinReviews:         20,
		RequireOperational: true,
	}
}

func TestVerifyHappyPath(t *testing.T) {
	f := &fakeMaps{
		geocodeBody: geocodeOsaka(),
		searchBody:  searchResult(candidateJSON("castle", 34.70, 135.50)),
		detailsByID: map[string]any{"castle": detailJSON("castle", 4.5, 1200, "OPERATIONAL")},
	}
	v := newTestVerifier(t, f)

	out, err := v.Verify(context.Background(), baseQuery())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !out.OK {
		t.Fatal("expected verification success")
	}
	if out.PlaceID != "castle" {
		t.Errorf("place id: %q", out.PlaceID)
	}
	if out.MapURL != "https://www.google.com/maps/place/?q=place_id:castle" {
		t.Errorf("map url: %q", out.MapURL)
	}
	if out.Location == nil || out.Location.Lat != 34.70 {
		t.Errorf("location: %+v", out.Location)
	}
	if f.lastSearchQP["radius"] != "50000" {
		t.Errorf("radius must be capped at 50000, got %s", f.lastSearchQP["radius"])
	}
	if f.lastSearchQP["query"] != "오사카성 오사카" {
		t.Errorf("fallback query: %q", f.lastSearchQP["query"])
	}
}

func TestVerifyFiltersDistantCandidates(t *testing.T) {
	f := &fakeMaps{
		geocodeBody: geocodeOsaka(),
		searchBody: searchResult(
			candidateJSON("too-far", 36.0, 135.5), // well over 60km north
			candidateJSON("nearby", 34.70, 135.50),
		),
		detailsByID: map[string]any{
			"too-far": detailJSON("too-far", 4.8, 900, "OPERATIONAL"),
			"nearby":  detailJSON("nearby", 4.2, 300, "OPERATIONAL"),
		},
	}
	v := newTestVerifier(t, f)
	out, err := v.Verify(context.Background(), baseQuery())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !out.OK || out.PlaceID != "nearby" {
		t.Fatalf("expected nearby candidate, got %+v", out)
	}
}

func TestVerifyQualityFilters(t *testing.T) {
	f := &fakeMaps{
		geocodeBody: geocodeOsaka(),
		searchBody: searchResult(
			candidateJSON("low-rating", 34.695, 135.503),
			candidateJSON("few-reviews", 34.696, 135.504),
			candidateJSON("closed-down", 34.697, 135.505),
			candidateJSON("good", 34.72, 135.52),
		),
		detailsByID: map[string]any{
			"low-rating":  detailJSON("low-rating", 3.2, 500, "OPERATIONAL"),
			"few-reviews": detailJSON("few-reviews", 4.9, 3, "OPERATIONAL"),
			"closed-down": detailJSON("closed-down", 4.6, 800, "CLOSED_PERMANENTLY"),
			"good":        detailJSON("good", 4.3, 150, "OPERATIONAL"),
		},
	}
	v := newTestVerifier(t, f)
	out, err := v.Verify(context.Background(), baseQuery())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !out.OK || out.PlaceID != "good" {
		t.Fatalf("expected the only passing candidate, got %+v", out)
	}
}

func TestVerifySkipsClosedAtDesiredTime(t *testing.T) {
	// Open Wednesdays only; desired date 2026-10-05 is a Monday.
	closedMonday := detailJSON("wed-only", 4.5, 400, "OPERATIONAL")
	closedMonday["result"].(map[string]any)["opening_hours"] = map[string]any{
		"periods": []any{map[string]any{
			"open":  map[string]any{"day": 3, "time": "1000"},
			"close": map[string]any{"day": 3, "time": "1800"},
		}},
	}
	f := &fakeMaps{
		geocodeBody: geocodeOsaka(),
		searchBody: searchResult(
			candidateJSON("wed-only", 34.695, 135.503),
			candidateJSON("always", 34.72, 135.52),
		),
		detailsByID: map[string]any{
			"wed-only": closedMonday,
			"always":   detailJSON("always", 4.2, 150, "OPERATIONAL"),
		},
	}
	v := newTestVerifier(t, f)
	q := baseQuery()
	q.DesiredDate = "2026-10-05"
	q.DesiredTime = "12:00"
	out, err := v.Verify(context.Background(), q)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !out.OK || out.PlaceID != "always" {
		t.Fatalf("closed place must be skipped, got %+v", out)
	}
}

func TestVerifyUnresolvedCity(t *testing.T) {
	f := &fakeMaps{
		geocodeBody: map[string]any{"status": "ZERO_RESULTS", "results": []any{}},
	}
	v := newTestVerifier(t, f)
	out, err := v.Verify(context.Background(), baseQuery())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if out.OK {
		t.Fatal("unresolvable city must fail verification")
	}
	if f.searchHits != 0 {
		t.Errorf("no search should run without a center, got %d", f.searchHits)
	}
}

func TestVerifyCityGeocodedOnce(t *testing.T) {
	f := &fakeMaps{
		geocodeBody: geocodeOsaka(),
		searchBody:  searchResult(candidateJSON("castle", 34.70, 135.50)),
		detailsByID: map[string]any{"castle": detailJSON("castle", 4.5, 1200, "OPERATIONAL")},
	}
	v := newTestVerifier(t, f)
	for i := 0; i < 3; i++ {
		if _, err := v.Verify(context.Background(), baseQuery()); err != nil {
			t.Fatalf("Verify #%d: %v", i, err)
		}
	}
	if f.geocodeHits != 1 {
		t.Fatalf("city must geocode once, got %d", f.geocodeHits)
	}
}

func TestVerifyFailedGeocodeNotCached(t *testing.T) {
	f := &fakeMaps{
		geocodeBody: map[string]any{"status": "ZERO_RESULTS", "results": []any{}},
	}
	v := newTestVerifier(t, f)
	for i := 0; i < 2; i++ {
		if _, err := v.Verify(context.Background(), baseQuery()); err != nil {
			t.Fatalf("Verify #%d: %v", i, err)
		}
	}
	if f.geocodeHits != 2 {
		t.Fatalf("failed lookups must not cache, got %d hits", f.geocodeHits)
	}
}

func TestDetailCacheExpiry(t *testing.T) {
	f := &fakeMaps{
		geocodeBody: geocodeOsaka(),
		searchBody:  searchResult(candidateJSON("castle", 34.70, 135.50)),
		detailsByID: map[string]any{"castle": detailJSON("castle", 4.5, 1200, "OPERATIONAL")},
	}
	v := newTestVerifier(t, f)

	current := time.Now()
	v.details.now = func() time.Time { return current }

	if _, err := v.OpeningPeriods(context.Background(), "castle"); err != nil {
		t.Fatalf("OpeningPeriods: %v", err)
	}
	if _, err := v.OpeningPeriods(context.Background(), "castle"); err != nil {
		t.Fatalf("OpeningPeriods: %v", err)
	}
	if f.detailsHits != 1 {
		t.Fatalf("second lookup must hit the cache, got %d", f.detailsHits)
	}

	current = current.Add(DetailCacheTTL + time.Minute)
	if _, err := v.OpeningPeriods(context.Background(), "castle"); err != nil {
		t.Fatalf("OpeningPeriods: %v", err)
	}
	if f.detailsHits != 2 {
		t.Fatalf("expired entry must refetch, got %d", f.detailsHits)
	}
}

func TestOpeningPeriodsParsed(t *testing.T) {
	det := detailJSON("castle", 4.5, 1200, "OPERATIONAL")
	det["result"].(map[string]any)["opening_hours"] = map[string]any{
		"periods": []any{map[string]any{
			"open":  map[string]any{"day": 1, "time": "0930"},
			"close": map[string]any{"day": 1, "time": "1730"},
		}},
	}
	f := &fakeMaps{detailsByID: map[string]any{"castle": det}}
	v := newTestVerifier(t, f)

	periods, err := v.OpeningPeriods(context.Background(), "castle")
	if err != nil {
		t.Fatalf("OpeningPeriods: %v", err)
	}
	if len(periods) != 1 {
		t.Fatalf("expected 1 period, got %d", len(periods))
	}
	p := periods[0]
	if p.Open.Day != 1 || p.Open.Minute != 570 {
		t.Errorf("open endpoint: %+v", p.Open)
	}
	if p.Close == nil || p.Close.Day != 1 || p.Close.Minute != 1050 {
		t.Errorf("close endpoint: %+v", p.Close)
	}
}

func TestHaversineKm(t *testing.T) {
	osaka := itinerary.LatLng{Lat: 34.6937, Lng: 135.5023}
	kyoto := itinerary.LatLng{Lat: 35.0116, Lng: 135.7681}
	d := haversineKm(osaka, kyoto)
	if d < 40 || d > 45 {
		t.Errorf("Osaka-Kyoto distance out of range: %f", d)
	}
	if got := haversineKm(osaka, osaka); got != 0 {
		t.Errorf("self distance: %f", got)
	}
}
