package itinerary

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	timeRe     = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::\d{2})?$`)
	durationRe = regexp.MustCompile(`(\d+)\s*박\s*(\d+)\s*일`)
	daysOnlyRe = regexp.MustCompile(`(\d+)\s*일`)
)

// Category words used literally as a place name. A generator that
// answers "cafe" instead of a proper noun produced nothing verifiable.
var genericPlaceNames = map[string]struct{}{
	"카페": {}, "공원": {}, "미술관": {}, "박물관": {}, "식당": {}, "레스토랑": {},
	"해변": {}, "시장": {}, "쇼핑몰": {}, "백화점": {}, "사원": {}, "절": {},
	"성당": {}, "교회": {}, "테마파크": {}, "온천": {}, "역": {}, "터미널": {},
	"호텔": {}, "숙소": {}, "장소": {}, "고유명사": {},
	"cafe": {}, "park": {}, "museum": {}, "restaurant": {}, "beach": {},
	"market": {}, "mall": {}, "temple": {}, "shrine": {}, "church": {},
	"station": {}, "hotel": {}, "place": {}, "landmark": {},
}

func isGenericPlace(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	if len([]rune(v)) < 2 {
		return true
	}
	_, ok := genericPlaceNames[v]
	return ok
}

// reformatTime accepts "H:mm", "HH:mm" and "H:mm:ss" and returns
// zero-padded "HH:mm", or "" when unparseable.
func reformatTime(raw string) string {
	m := timeRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return ""
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if h > 23 || mm > 59 {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", h, mm)
}

// parseHHmm returns minutes since midnight, or -1 when malformed.
func parseHHmm(s string) int {
	m := timeRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return -1
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if h > 23 || mm > 59 {
		return -1
	}
	return h*60 + mm
}

func formatHHmm(min int) string {
	if min < 0 {
		min = 0
	}
	if min > 23*60+59 {
		min = 23*60 + 59
	}
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}

// timeKey sorts malformed times after every valid one.
func timeKey(hhmm string) int {
	if m := parseHHmm(hhmm); m >= 0 {
		return m
	}
	return 24 * 60 * 10
}

// cleanCandidate is the candidate normalizer: it reformats times,
// trims fields, rejects empty and generic place names, deduplicates
// by (time, lowercased place) and sorts each day by time. Malformed
// entries are dropped silently; the transform never fails.
func cleanCandidate(days []CandidateDay) []DayPlan {
	out := make([]DayPlan, 0, len(days))
	for _, d := range days {
		if d.Day <= 0 {
			continue
		}
		seen := map[string]struct{}{}
		items := make([]VisitItem, 0, len(d.Plan))
		for _, p := range d.Plan {
			t := reformatTime(p.Time)
			if t == "" {
				t = sentinelTime
			}
			place := strings.TrimSpace(p.Place)
			memo := strings.TrimSpace(p.Memo)
			if place == "" || isGenericPlace(place) {
				continue
			}
			key := t + "||" + strings.ToLower(place)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			items = append(items, VisitItem{
				Time:  t,
				Place: place,
				Memo:  memo,
				Query: strings.TrimSpace(p.Query),
			})
		}
		sortByTime(items)
		out = append(out, DayPlan{Day: d.Day, Plan: items})
	}
	return out
}

func sortByTime(items []VisitItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return timeKey(items[i].Time) < timeKey(items[j].Time)
	})
}

// normalizeToDays reshapes a sparse day association into exactly
// targetDays entries numbered 1..targetDays. Days outside the range
// are discarded; absent days become empty plans.
func normalizeToDays(days []DayPlan, targetDays int) []DayPlan {
	byDay := map[int][]VisitItem{}
	for _, d := range days {
		if d.Day < 1 || d.Day > targetDays {
			continue
		}
		byDay[d.Day] = d.Plan
	}
	out := make([]DayPlan, 0, targetDays)
	for i := 1; i <= targetDays; i++ {
		plan := byDay[i]
		if plan == nil {
			plan = []VisitItem{}
		}
		out = append(out, DayPlan{Day: i, Plan: plan})
	}
	return out
}

// diffDaysInclusive returns the inclusive day count between two
// "YYYY-MM-DD" dates, or 0 when either is missing or malformed.
func diffDaysInclusive(start, end string) int {
	s, err := time.Parse("2006-01-02", strings.TrimSpace(start))
	if err != nil {
		return 0
	}
	e, err := time.Parse("2006-01-02", strings.TrimSpace(end))
	if err != nil {
		return 0
	}
	d := int(e.Sub(s).Hours()/24) + 1
	if d <= 0 {
		return 0
	}
	return d
}

// parseDurationDays understands "2박 3일", "3일" and plain integers.
func parseDurationDays(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if m := durationRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[2])
		return n
	}
	if m := daysOnlyRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return 0
}

// fixupTitle replaces empty or placeholder generator titles and makes
// sure the city appears in the final title.
func fixupTitle(title, city string, days int) string {
	t := strings.TrimSpace(title)
	if t == "" || strings.EqualFold(t, "여행 제목") {
		return fmt.Sprintf("%s %d일 맞춤 여행", city, days)
	}
	if city != "" && !strings.Contains(t, city) {
		return city + " · " + t
	}
	return t
}
