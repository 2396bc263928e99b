// Package places is the Google Maps web service boundary: geocoding,
// text search and place details, plus the verifier that checks
// itinerary visits against the directory.
package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joelkehle/trip-planner/internal/itinerary"
)

const (
	defaultBaseURL = "https://maps.googleapis.com"

	geocodePath    = "/maps/api/geocode/json"
	textSearchPath = "/maps/api/place/textsearch/json"
	detailsPath    = "/maps/api/place/details/json"

	// Text search rejects radii above 50km regardless of the
	// configured verification radius.
	maxSearchRadiusMeters = 50000
)

type ClientConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Client is a thin typed wrapper over the Maps web endpoints with
// bounded retries on transient failures.
type Client struct {
	cfg ClientConfig
}

func NewClient(cfg ClientConfig) (*Client, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, errors.New("GOOGLE_MAPS_API_KEY not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{cfg: cfg}, nil
}

func NewClientFromEnv() (*Client, error) {
	return NewClient(ClientConfig{APIKey: os.Getenv("GOOGLE_MAPS_API_KEY")})
}

type GeocodeResult struct {
	Location    itinerary.LatLng
	CountryCode string
}

type SearchCandidate struct {
	PlaceID  string
	Name     string
	Location itinerary.LatLng
}

type Detail struct {
	PlaceID        string
	Name           string
	BusinessStatus string
	Rating         *float64
	ReviewCount    *int
	Location       *itinerary.LatLng
	Periods        []itinerary.Period
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location latLngJSON `json:"location"`
		} `json:"geometry"`
		AddressComponents []struct {
			ShortName string   `json:"short_name"`
			Types     []string `json:"types"`
		} `json:"address_components"`
	} `json:"results"`
}

type latLngJSON struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type textSearchResponse struct {
	Status  string `json:"status"`
	Results []struct {
		PlaceID  string `json:"place_id"`
		Name     string `json:"name"`
		Geometry *struct {
			Location latLngJSON `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

type periodPointJSON struct {
	Day  int    `json:"day"`
	Time string `json:"time"` // "0900"
}

type detailsResponse struct {
	Status string `json:"status"`
	Result *struct {
		PlaceID        string   `json:"place_id"`
		Name           string   `json:"name"`
		BusinessStatus string   `json:"business_status"`
		Rating         *float64 `json:"rating"`
		ReviewCount    *int     `json:"user_ratings_total"`
		Geometry       *struct {
			Location latLngJSON `json:"location"`
		} `json:"geometry"`
		OpeningHours *struct {
			Periods []struct {
				Open  *periodPointJSON `json:"open"`
				Close *periodPointJSON `json:"close"`
			} `json:"periods"`
		} `json:"opening_hours"`
	} `json:"result"`
}

// Geocode resolves a free-text city to coordinates and a country
// code. A nil result with nil error means the service answered but
// found no usable geometry.
func (c *Client) Geocode(ctx context.Context, address, region, language string) (*GeocodeResult, error) {
	params := url.Values{}
	params.Set("address", address)
	params.Set("region", region)
	params.Set("language", language)

	var parsed geocodeResponse
	if err := c.getJSON(ctx, geocodePath, params, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Results) == 0 {
		return nil, nil
	}
	first := parsed.Results[0]
	out := &GeocodeResult{
		Location: itinerary.LatLng{Lat: first.Geometry.Location.Lat, Lng: first.Geometry.Location.Lng},
	}
	for _, comp := range first.AddressComponents {
		for _, t := range comp.Types {
			if t == "country" {
				out.CountryCode = comp.ShortName
			}
		}
	}
	return out, nil
}

// TextSearch runs a text query biased around a center point. Radius is
// capped at the service maximum.
func (c *Client) TextSearch(ctx context.Context, query string, center *itinerary.LatLng, radiusMeters int, language, region string) ([]SearchCandidate, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("language", language)
	params.Set("region", region)
	if center != nil {
		params.Set("location", fmt.Sprintf("%f,%f", center.Lat, center.Lng))
		if radiusMeters > maxSearchRadiusMeters {
			radiusMeters = maxSearchRadiusMeters
		}
		params.Set("radius", strconv.Itoa(radiusMeters))
	}

	var parsed textSearchResponse
	if err := c.getJSON(ctx, textSearchPath, params, &parsed); err != nil {
		return nil, err
	}
	out := make([]SearchCandidate, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.PlaceID == "" || r.Geometry == nil {
			continue
		}
		out = append(out, SearchCandidate{
			PlaceID:  r.PlaceID,
			Name:     r.Name,
			Location: itinerary.LatLng{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
		})
	}
	return out, nil
}

// Details fetches the directory record for one POI. A nil result with
// nil error means the directory has no record.
func (c *Client) Details(ctx context.Context, placeID, language, region string) (*Detail, error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("language", language)
	params.Set("region", region)
	params.Set("fields", "place_id,geometry,opening_hours,rating,user_ratings_total,business_status,name")

	var parsed detailsResponse
	if err := c.getJSON(ctx, detailsPath, params, &parsed); err != nil {
		return nil, err
	}
	if parsed.Result == nil {
		return nil, nil
	}
	r := parsed.Result
	det := &Detail{
		PlaceID:        r.PlaceID,
		Name:           r.Name,
		BusinessStatus: r.BusinessStatus,
		Rating:         r.Rating,
		ReviewCount:    r.ReviewCount,
	}
	if r.Geometry != nil {
		det.Location = &itinerary.LatLng{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng}
	}
	if r.OpeningHours != nil {
		for _, p := range r.OpeningHours.Periods {
			if p.Open == nil {
				continue
			}
			period := itinerary.Period{Open: periodEndpoint(*p.Open)}
			if p.Close != nil {
				pe := periodEndpoint(*p.Close)
				period.Close = &pe
			}
			det.Periods = append(det.Periods, period)
		}
	}
	return det, nil
}

// periodEndpoint converts the directory's "0930"-style clock field.
func periodEndpoint(p periodPointJSON) itinerary.PeriodEndpoint {
	minute := 0
	if len(p.Time) == 4 {
		h, errH := strconv.Atoi(p.Time[:2])
		m, errM := strconv.Atoi(p.Time[2:])
		if errH == nil && errM == nil {
			minute = h*60 + m
		}
	}
	return itinerary.PeriodEndpoint{Day: p.Day, Minute: minute}
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		err := c.getJSONOnce(ctx, path, params, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) || attempt == 3 {
			return err
		}
		if err := sleepCtx(ctx, backoffDelay(attempt)); err != nil {
			return err
		}
	}
	return lastErr
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("status code: %d body=%s", e.status, e.body)
}

func (c *Client) getJSONOnce(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("key", c.cfg.APIKey)
	u := strings.TrimRight(c.cfg.BaseURL, "/") + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(res.Body, 2<<20))
	if res.StatusCode >= 400 {
		return &httpStatusError{status: res.StatusCode, body: string(b)}
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var se *httpStatusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= 500
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 500 * time.Millisecond
	}
	return time.Second
}
