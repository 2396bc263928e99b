package places

import (
	"context"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joelkehle/trip-planner/internal/itinerary"
)

type VerifierConfig struct {
	Region    string
	Language  string
	DetailTTL time.Duration
}

// Verifier checks visits against the POI directory: resolve the city
// center, search near it, rank candidates by distance and accept the
// first one passing the operational/rating/opening filters.
type Verifier struct {
	client  *Client
	cfg     VerifierConfig
	cities  *cityCache
	details *detailCache
}

func NewVerifier(client *Client, cfg VerifierConfig) *Verifier {
	if cfg.Region == "" {
		cfg.Region = itinerary.DefaultRegion
	}
	if cfg.Language == "" {
		cfg.Language = itinerary.DefaultLanguage
	}
	if cfg.DetailTTL <= 0 {
		cfg.DetailTTL = DetailCacheTTL
	}
	return &Verifier{
		client:  client,
		cfg:     cfg,
		cities:  newCityCache(),
		details: newDetailCache(cfg.DetailTTL),
	}
}

// ResolveCity geocodes a city once per process; later calls hit the
// cache. Returns nil when the lookup fails or yields no geometry, and
// callers continue without a distance bias.
func (v *Verifier) ResolveCity(ctx context.Context, city string) *GeocodeResult {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil
	}
	key := city + "|" + v.cfg.Language
	if cached, ok := v.cities.get(key); ok {
		return cached
	}
	res, err := v.client.Geocode(ctx, city, v.cfg.Region, v.cfg.Language)
	if err != nil {
		log.Printf("trip-planner geocode failed city=%q err=%v", city, err)
		return nil
	}
	if res == nil {
		return nil
	}
	v.cities.put(key, res)
	return res
}

func (v *Verifier) fetchDetail(ctx context.Context, placeID string) (*Detail, error) {
	if cached, ok := v.details.get(placeID); ok {
		return cached, nil
	}
	det, err := v.client.Details(ctx, placeID, v.cfg.Language, v.cfg.Region)
	if err != nil {
		return nil, err
	}
	if det != nil {
		v.details.put(placeID, det)
	}
	return det, nil
}

// Verify implements itinerary.PlaceVerifier. Transport failures and
// empty result sets produce a not-OK outcome; the error return is
// reserved for context cancellation so sibling verifications keep
// going.
func (v *Verifier) Verify(ctx context.Context, q itinerary.VerifyQuery) (itinerary.VerifyOutcome, error) {
	if err := ctx.Err(); err != nil {
		return itinerary.VerifyOutcome{}, err
	}

	center := v.ResolveCity(ctx, q.City)
	query := strings.TrimSpace(q.Query)
	if query == "" {
		query = strings.TrimSpace(strings.TrimSpace(q.Place) + " " + strings.TrimSpace(q.City))
	}
	if center == nil || query == "" {
		return itinerary.VerifyOutcome{}, nil
	}

	radiusKm := q.RadiusKm
	if radiusKm <= 0 {
		radiusKm = itinerary.DefaultRadiusKm
	}
	candidates, err := v.client.TextSearch(ctx, query, &center.Location, int(radiusKm*1000), v.cfg.Language, v.cfg.Region)
	if err != nil {
		if ctx.Err() != nil {
			return itinerary.VerifyOutcome{}, ctx.Err()
		}
		log.Printf("trip-planner text search failed query=%q err=%v", query, err)
		return itinerary.VerifyOutcome{}, nil
	}
	if len(candidates) == 0 {
		return itinerary.VerifyOutcome{}, nil
	}

	type ranked struct {
		cand SearchCandidate
		dist float64
	}
	within := make([]ranked, 0, len(candidates))
	for _, c := range candidates {
		d := haversineKm(center.Location, c.Location)
		if d > radiusKm {
			continue
		}
		within = append(within, ranked{cand: c, dist: d})
	}
	sort.Slice(within, func(i, j int) bool { return within[i].dist < within[j].dist })

	weekday := -1
	if q.DesiredDate != "" {
		if t, err := time.Parse("2006-01-02", q.DesiredDate); err == nil {
			weekday = int(t.Weekday())
		}
	}
	minute := parseClock(q.DesiredTime)

	for _, r := range within {
		if err := ctx.Err(); err != nil {
			return itinerary.VerifyOutcome{}, err
		}
		det, err := v.fetchDetail(ctx, r.cand.PlaceID)
		if err != nil || det == nil {
			continue
		}
		if q.RequireOperational && det.BusinessStatus != "" && det.BusinessStatus != "OPERATIONAL" {
			continue
		}
		if det.ReviewCount != nil && *det.ReviewCount < q.MinReviews {
			continue
		}
		if det.Rating != nil && *det.Rating < q.MinRating {
			continue
		}
		if weekday >= 0 && minute >= 0 && len(det.Periods) > 0 {
			// Unknown opening data passes; only an explicit
			// "closed" rejects.
			if itinerary.OpenStatusAt(det.Periods, weekday, minute) == itinerary.OpenNo {
				continue
			}
		}
		loc := det.Location
		if loc == nil {
			l := r.cand.Location
			loc = &l
		}
		return itinerary.VerifyOutcome{
			OK:       true,
			PlaceID:  r.cand.PlaceID,
			MapURL:   "https://www.google.com/maps/place/?q=place_id:" + r.cand.PlaceID,
			Location: loc,
		}, nil
	}
	return itinerary.VerifyOutcome{}, nil
}

// OpeningPeriods implements itinerary.PlaceVerifier via the detail
// cache, so the shifter reuses the record fetched during verification.
func (v *Verifier) OpeningPeriods(ctx context.Context, placeID string) ([]itinerary.Period, error) {
	det, err := v.fetchDetail(ctx, placeID)
	if err != nil {
		return nil, err
	}
	if det == nil {
		return nil, nil
	}
	return det.Periods, nil
}

func parseClock(hhmm string) int {
	parts := strings.SplitN(strings.TrimSpace(hhmm), ":", 2)
	if len(parts) != 2 {
		return -1
	}
	h, errH := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	if errH != nil || errM != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return -1
	}
	return h*60 + m
}
