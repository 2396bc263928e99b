package itinerary

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Config bounds the verification and scheduling stages. Zero values
// take the package defaults.
type Config struct {
	MinGapMinutes int
	DayStart      string
	DayEnd        string
	RadiusKm      float64
	MinRating     float64
	MinReviews    int
	// AllowNonOperational keeps candidates whose directory entry
	// reports a non-operational business status. Off by default:
	// operational status is required.
	AllowNonOperational bool
}

func (c Config) withDefaults() Config {
	if c.MinGapMinutes <= 0 {
		c.MinGapMinutes = DefaultMinGapMinutes
	}
	if parseHHmm(c.DayStart) < 0 {
		c.DayStart = DefaultDayStart
	}
	if parseHHmm(c.DayEnd) < 0 {
		c.DayEnd = DefaultDayEnd
	}
	if c.RadiusKm <= 0 {
		c.RadiusKm = DefaultRadiusKm
	}
	if c.MinRating <= 0 {
		c.MinRating = DefaultMinRating
	}
	if c.MinReviews <= 0 {
		c.MinReviews = DefaultMinReviews
	}
	return c
}

// Pipeline validates and repairs candidate itineraries: normalize,
// verify against the POI directory, shift into opening hours, enforce
// minimum gaps, normalize day numbering. Refine additionally merges
// partial regeneration with locked base entries first.
type Pipeline struct {
	gen      Generator
	verifier PlaceVerifier
	cfg      Config
	tracer   trace.Tracer
}

func NewPipeline(gen Generator, verifier PlaceVerifier, cfg Config) *Pipeline {
	return &Pipeline{
		gen:      gen,
		verifier: verifier,
		cfg:      cfg.withDefaults(),
		tracer:   otel.Tracer("trip-planner/itinerary"),
	}
}

// Generate produces a complete itinerary for the trip constraints.
// Returns MalformedCandidateError when the generator output cannot be
// parsed, and InsufficientFillError when any day ends below one item.
func (p *Pipeline) Generate(ctx context.Context, req TripRequest) (*Itinerary, error) {
	ctx, span := p.tracer.Start(ctx, "itinerary.Generate",
		trace.WithAttributes(attribute.String("trip.city", req.City)))
	defer span.End()

	if strings.TrimSpace(req.City) == "" {
		return nil, fmt.Errorf("city is required")
	}
	days := deriveDays(req, 0)

	cand, err := p.runGenerator(ctx, req, days)
	if err != nil {
		return nil, err
	}
	cleaned := p.stageNormalize(ctx, cand.Details)
	result, err := p.runRepair(ctx, cleaned, req.City, req.StartDate, days, nil)
	if err != nil {
		return nil, err
	}

	return &Itinerary{
		Title:     fixupTitle(cand.Title, req.City, days),
		City:      req.City,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Days:      result,
	}, nil
}

// Refine merges partial regeneration with the locked remainder of a
// base itinerary, then re-runs verification, opening-hours shifting,
// gap enforcement and day normalization on the merged result.
func (p *Pipeline) Refine(ctx context.Context, req RefineRequest) (*Itinerary, error) {
	ctx, span := p.tracer.Start(ctx, "itinerary.Refine",
		trace.WithAttributes(
			attribute.String("trip.city", req.City),
			attribute.Int("trip.removals", len(req.Remove)),
		))
	defer span.End()

	city := req.City
	if strings.TrimSpace(city) == "" {
		city = req.Base.City
	}
	targetDays := deriveDays(req.TripRequest, len(req.Base.Days))

	plan := partitionBase(req.Base.Days, req.Remove)

	forbidden := make([]string, 0, len(plan.forbidden))
	for place := range plan.forbidden {
		forbidden = append(forbidden, place)
	}
	sort.Strings(forbidden)

	cand, err := p.gen.ProposeFill(ctx, FillRequest{
		City:           city,
		TargetDays:     targetDays,
		StartDate:      req.StartDate,
		Locked:         plan.locked,
		RequiredPerDay: plan.requiredPerDay,
		Forbidden:      forbidden,
	})
	if err != nil {
		return nil, err
	}

	proposed := p.stageNormalize(ctx, cand.Details)
	merged := mergeRefinement(plan, proposed)

	result, err := p.runRepair(ctx, merged, city, req.StartDate, targetDays, plan.requiredPerDay)
	if err != nil {
		return nil, err
	}

	return &Itinerary{
		Title:     fixupTitle(cand.Title, city, targetDays),
		City:      city,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Days:      result,
	}, nil
}

func (p *Pipeline) runGenerator(ctx context.Context, req TripRequest, days int) (Candidate, error) {
	ctx, span := p.tracer.Start(ctx, "itinerary.generate_candidate")
	defer span.End()
	start := time.Now()
	cand, err := p.gen.GenerateCandidate(ctx, req, days)
	if err != nil {
		return Candidate{}, err
	}
	log.Printf("trip-planner candidate generated city=%q days=%d elapsed=%s", req.City, len(cand.Details), time.Since(start).Round(time.Millisecond))
	return cand, nil
}

func (p *Pipeline) stageNormalize(ctx context.Context, details []CandidateDay) []DayPlan {
	_, span := p.tracer.Start(ctx, "itinerary.normalize")
	defer span.End()
	return cleanCandidate(details)
}

// runRepair runs verification, opening-hours shifting, gap enforcement
// and day normalization, then checks fill quotas. requiredPerDay may be
// nil for initial generation; every day then requires at least 1 item.
func (p *Pipeline) runRepair(ctx context.Context, days []DayPlan, city, startDate string, targetDays int, requiredPerDay map[int]int) ([]DayPlan, error) {
	verified := p.stageVerify(ctx, days, city, startDate)
	verified = p.stageOpeningHours(ctx, verified, startDate)
	verified = p.stageGap(ctx, verified)
	normalized := normalizeToDays(verified, targetDays)

	var lacks []FillDeficit
	for _, d := range normalized {
		need := 1
		if r, ok := requiredPerDay[d.Day]; ok && r > need {
			need = r
		}
		if len(d.Plan) < need {
			lacks = append(lacks, FillDeficit{Day: d.Day, Required: need, Actual: len(d.Plan)})
		}
	}
	if len(lacks) > 0 {
		return nil, &InsufficientFillError{Lacks: lacks}
	}
	return normalized, nil
}

// stageVerify fans out one verification per unlocked visit. Failures
// are absorbed per item: an unverifiable or errored visit is dropped,
// siblings always complete. Locked entries pass through untouched.
func (p *Pipeline) stageVerify(ctx context.Context, days []DayPlan, city, startDate string) []DayPlan {
	ctx, span := p.tracer.Start(ctx, "itinerary.verify")
	defer span.End()

	results := make([][]*VisitItem, len(days))
	var wg sync.WaitGroup
	for di, d := range days {
		dateISO := dayDate(startDate, d.Day)
		results[di] = make([]*VisitItem, len(d.Plan))
		for i, it := range d.Plan {
			if it.Locked {
				copied := it
				results[di][i] = &copied
				continue
			}
			wg.Add(1)
			go func(slot []*VisitItem, idx int, item VisitItem) {
				defer wg.Done()
				q := item.Query
				if q == "" {
					q = buildSearchQuery(item.Place, city)
				}
				outcome, err := p.verifier.Verify(ctx, VerifyQuery{
					Place:              item.Place,
					City:               city,
					Query:              q,
					RadiusKm:           p.cfg.RadiusKm,
					DesiredDate:        dateISO,
					DesiredTime:        item.Time,
					MinRating:          p.cfg.MinRating,
					MinReviews:         p.cfg.MinReviews,
					RequireOperational: !p.cfg.AllowNonOperational,
				})
				if err != nil {
					log.Printf("trip-planner verify failed place=%q err=%v", item.Place, err)
					return
				}
				if !outcome.OK {
					return
				}
				item.Query = q
				item.PlaceID = outcome.PlaceID
				item.MapURL = outcome.MapURL
				item.Location = outcome.Location
				slot[idx] = &item
			}(results[di], i, it)
		}
	}
	wg.Wait()

	out := make([]DayPlan, len(days))
	for di, d := range days {
		kept := make([]VisitItem, 0, len(d.Plan))
		for _, r := range results[di] {
			if r != nil {
				kept = append(kept, *r)
			}
		}
		sortByTime(kept)
		out[di] = DayPlan{Day: d.Day, Plan: kept}
	}
	return out
}

func (p *Pipeline) stageOpeningHours(ctx context.Context, days []DayPlan, startDate string) []DayPlan {
	ctx, span := p.tracer.Start(ctx, "itinerary.opening_hours")
	defer span.End()
	return applyOpeningHours(ctx, days, startDate, p.verifier)
}

func (p *Pipeline) stageGap(ctx context.Context, days []DayPlan) []DayPlan {
	_, span := p.tracer.Start(ctx, "itinerary.min_gap")
	defer span.End()
	return enforceMinGap(days, GapConfig{
		MinGapMinutes: p.cfg.MinGapMinutes,
		DayStart:      p.cfg.DayStart,
		DayEnd:        p.cfg.DayEnd,
	})
}

// deriveDays resolves the target day count: inclusive date range,
// then explicit day count, then duration text, then the base day
// count, then 2.
func deriveDays(req TripRequest, baseDays int) int {
	if d := diffDaysInclusive(req.StartDate, req.EndDate); d > 0 {
		return d
	}
	if req.Days > 0 {
		return req.Days
	}
	if d := parseDurationDays(req.Duration); d > 0 {
		return d
	}
	if baseDays > 0 {
		return baseDays
	}
	return 2
}

// dayDate maps trip day d to its calendar date, or "" without a
// usable start date.
func dayDate(startDate string, day int) string {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(startDate))
	if err != nil || day < 1 {
		return ""
	}
	return t.AddDate(0, 0, day-1).Format("2006-01-02")
}

func buildSearchQuery(place, city string) string {
	place = strings.TrimSpace(place)
	city = strings.TrimSpace(city)
	if place != "" && city != "" {
		return place + " " + city
	}
	if place != "" {
		return place
	}
	return city
}
