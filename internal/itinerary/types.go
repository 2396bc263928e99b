package itinerary

import (
	"context"
	"fmt"
	"strings"
)

const (
	DefaultMinGapMinutes = 90
	DefaultDayStart      = "09:00"
	DefaultDayEnd        = "21:00"
	DefaultRadiusKm      = 60
	DefaultMinRating     = 4.0
	DefaultMinReviews    = 20
	DefaultRegion        = "jp"
	DefaultLanguage      = "ko"

	// Unparseable times sort last so the gap scheduler drops them.
	sentinelTime = "23:59"
)

// OpenNoteShifted marks a visit whose time was moved forward to the
// POI's next opening window.
const OpenNoteShifted = "shifted_to_open"

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PeriodEndpoint is one boundary of an opening period, expressed as a
// weekday (0=Sunday) and minutes since midnight.
type PeriodEndpoint struct {
	Day    int `json:"day"`
	Minute int `json:"minute"`
}

// Period is a weekday-anchored opening window. A nil Close means the
// directory reported an always-open place.
type Period struct {
	Open  PeriodEndpoint  `json:"open"`
	Close *PeriodEndpoint `json:"close"`
}

type VisitItem struct {
	Time     string  `json:"time"`
	Place    string  `json:"place"`
	Memo     string  `json:"memo"`
	Query    string  `json:"query,omitempty"`
	PlaceID  string  `json:"place_id,omitempty"`
	MapURL   string  `json:"map_url,omitempty"`
	Location *LatLng `json:"loc,omitempty"`
	Locked   bool    `json:"locked,omitempty"`
	OpenNote string  `json:"open_note,omitempty"`
}

// Verified reports whether the item carries directory-backed identity.
func (v VisitItem) Verified() bool { return v.PlaceID != "" }

type DayPlan struct {
	Day  int         `json:"day"`
	Plan []VisitItem `json:"plan"`
}

type Itinerary struct {
	Title     string    `json:"title"`
	City      string    `json:"city"`
	StartDate string    `json:"startdate,omitempty"`
	EndDate   string    `json:"enddate,omitempty"`
	Days      []DayPlan `json:"details"`
}

// TripRequest carries the structured trip constraints handed to the
// generator and the pipeline.
type TripRequest struct {
	City      string `json:"city"`
	StartDate string `json:"startdate,omitempty"`
	EndDate   string `json:"enddate,omitempty"`
	Duration  string `json:"duration,omitempty"`
	Companion string `json:"companion,omitempty"`
	Theme     string `json:"theme,omitempty"`
	Pace      string `json:"pace,omitempty"`
	Days      int    `json:"days,omitempty"`
}

// RemoveKey identifies one base entry to discard during refinement.
// Matching is exact on all three fields.
type RemoveKey struct {
	Day   int    `json:"day"`
	Time  string `json:"time"`
	Place string `json:"place"`
}

type RefineRequest struct {
	Base   Itinerary   `json:"base"`
	Remove []RemoveKey `json:"remove"`
	TripRequest
}

// Candidate is the untrusted day/plan structure proposed by the
// generator. It has not passed normalization or verification.
type Candidate struct {
	Title   string         `json:"title"`
	Details []CandidateDay `json:"details"`
}

type CandidateDay struct {
	Day  int             `json:"day"`
	Plan []CandidateItem `json:"plan"`
}

type CandidateItem struct {
	Time  string `json:"time"`
	Place string `json:"place"`
	Memo  string `json:"memo"`
	Query string `json:"query,omitempty"`
}

// FillRequest asks the generator for replacement entries during
// refinement. Locked entries are context only and must not be echoed.
type FillRequest struct {
	City           string      `json:"city"`
	TargetDays     int         `json:"target_days"`
	StartDate      string      `json:"startdate,omitempty"`
	Locked         []DayPlan   `json:"locked"`
	RequiredPerDay map[int]int `json:"required_per_day"`
	Forbidden      []string    `json:"forbidden_places"`
}

// VerifyQuery is one visit's verification request against the POI
// directory.
type VerifyQuery struct {
	Place       string
	City        string
	Query       string
	RadiusKm    float64
	DesiredDate string // "YYYY-MM-DD", empty when no start date is known
	DesiredTime string // "HH:mm"
	MinRating   float64
	MinReviews  int
	// RequireOperational rejects candidates whose directory entry
	// reports a non-operational business status.
	RequireOperational bool
}

type VerifyOutcome struct {
	OK       bool
	PlaceID  string
	MapURL   string
	Location *LatLng
}

// PlaceVerifier is the POI directory boundary consumed by the
// pipeline. Implementations absorb their own transport failures by
// returning a not-OK outcome; an error return is reserved for context
// cancellation.
type PlaceVerifier interface {
	Verify(ctx context.Context, q VerifyQuery) (VerifyOutcome, error)
	// OpeningPeriods returns the structured opening periods for a
	// verified POI, or nil when the directory reports none.
	OpeningPeriods(ctx context.Context, placeID string) ([]Period, error)
}

type MalformedCandidateError struct {
	Raw string
	Err error
}

func (e *MalformedCandidateError) Error() string {
	return fmt.Sprintf("malformed candidate: %v", e.Err)
}
func (e *MalformedCandidateError) Unwrap() error { return e.Err }

// FillDeficit records one day that ended below its required item
// count after the full pipeline ran.
type FillDeficit struct {
	Day      int `json:"day"`
	Required int `json:"need"`
	Actual   int `json:"got"`
}

type InsufficientFillError struct {
	Lacks []FillDeficit
}

func (e *InsufficientFillError) Error() string {
	parts := make([]string, 0, len(e.Lacks))
	for _, l := range e.Lacks {
		parts = append(parts, fmt.Sprintf("day %d need %d got %d", l.Day, l.Required, l.Actual))
	}
	return "insufficient fill: " + strings.Join(parts, "; ")
}
