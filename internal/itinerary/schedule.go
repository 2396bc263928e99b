package itinerary

import (
	"context"
	"log"
	"strings"
	"time"
)

// GapConfig bounds one day's schedule: a daily operating bracket and
// the minimum interval between consecutive visits.
type GapConfig struct {
	MinGapMinutes int
	DayStart      string
	DayEnd        string
}

func (c GapConfig) withDefaults() GapConfig {
	if c.MinGapMinutes <= 0 {
		c.MinGapMinutes = DefaultMinGapMinutes
	}
	if parseHHmm(c.DayStart) < 0 {
		c.DayStart = DefaultDayStart
	}
	if parseHHmm(c.DayEnd) < 0 {
		c.DayEnd = DefaultDayEnd
	}
	return c
}

// enforceMinGap is a greedy, single-pass, order-preserving compaction
// per day. Items are walked in time order; an item closer than the
// minimum gap to the last accepted time is pushed forward, and an
// item pushed past the end of the bracket is dropped. No item ever
// moves earlier than its original time.
//
// Locked items are immovable anchors: they are accepted at their own
// time, and an unlocked item that would crowd a later anchor is pushed
// past it.
func enforceMinGap(days []DayPlan, cfg GapConfig) []DayPlan {
	cfg = cfg.withDefaults()
	startM := parseHHmm(cfg.DayStart)
	endM := parseHHmm(cfg.DayEnd)

	out := make([]DayPlan, 0, len(days))
	for _, d := range days {
		items := make([]VisitItem, len(d.Plan))
		copy(items, d.Plan)
		for i := range items {
			if parseHHmm(items[i].Time) < 0 {
				items[i].Time = cfg.DayStart
			}
		}
		sortByTime(items)

		var anchors []int
		for _, it := range items {
			if it.Locked {
				anchors = append(anchors, parseHHmm(it.Time))
			}
		}

		kept := make([]VisitItem, 0, len(items))
		last := startM - cfg.MinGapMinutes
		for _, it := range items {
			t := parseHHmm(it.Time)
			if it.Locked {
				kept = append(kept, it)
				if t > last {
					last = t
				}
				continue
			}
			if t < startM {
				t = startM
			}
			if t-last < cfg.MinGapMinutes {
				t = last + cfg.MinGapMinutes
			}
			for _, a := range anchors {
				if t > a-cfg.MinGapMinutes && t < a+cfg.MinGapMinutes {
					t = a + cfg.MinGapMinutes
				}
			}
			if t > endM {
				continue
			}
			it.Time = formatHHmm(t)
			kept = append(kept, it)
			last = t
		}
		sortByTime(kept)
		out = append(out, DayPlan{Day: d.Day, Plan: kept})
	}
	return out
}

// OpenStatus is the tri-state answer of an opening-hours check.
type OpenStatus int

const (
	// OpenUnknown means the directory reported no usable periods;
	// treated as "no constraint" everywhere.
	OpenUnknown OpenStatus = iota
	OpenYes
	OpenNo
)

// OpenStatusAt checks whether a POI with the given periods is open at
// the weekday (0=Sunday) and minute of day. Periods spanning midnight
// are handled by wrapping the close boundary.
func OpenStatusAt(periods []Period, weekday, minute int) OpenStatus {
	if len(periods) == 0 || minute < 0 {
		return OpenUnknown
	}
	target := weekday*1440 + minute
	for _, p := range periods {
		if p.Close == nil {
			// Open 24/7 per directory convention.
			return OpenYes
		}
		o := p.Open.Day*1440 + p.Open.Minute
		c := p.Close.Day*1440 + p.Close.Minute
		if c > o {
			if target >= o && target < c {
				return OpenYes
			}
		} else {
			// Wraps past the end of the week.
			if target >= o || target < c {
				return OpenYes
			}
		}
	}
	return OpenNo
}

// weekdayOf returns the weekday (0=Sunday) of trip day d given the
// start date, or -1 when the date is unusable.
func weekdayOf(startDate string, day int) int {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(startDate))
	if err != nil || day < 1 {
		return -1
	}
	return (int(t.Weekday()) + day - 1) % 7
}

type shiftResult struct {
	keep bool
	time string
	note string
}

// shiftIntoOpenWindow keeps a time that already falls inside an open
// period for the weekday, shifts it forward to the next same-day open
// time otherwise, and reports drop when no open period remains that
// day. Missing opening data passes unchanged.
func shiftIntoOpenWindow(hhmm string, weekday int, periods []Period) shiftResult {
	cur := parseHHmm(hhmm)
	if len(periods) == 0 || cur < 0 {
		return shiftResult{keep: true, time: hhmm}
	}

	type slot struct{ open, close int }
	var slots []slot
	for _, p := range periods {
		if p.Close == nil {
			return shiftResult{keep: true, time: hhmm}
		}
		od, cd := p.Open.Day, p.Close.Day
		if od == weekday || (od < weekday && cd >= weekday) || (od > cd && (weekday >= od || weekday <= cd)) {
			openM := p.Open.Minute
			closeM := p.Close.Minute
			if closeM <= openM {
				closeM += 1440
			}
			slots = append(slots, slot{open: openM, close: closeM})
		}
	}
	if len(slots) == 0 {
		return shiftResult{keep: false, time: hhmm, note: "closed_today"}
	}

	var next *slot
	for i := range slots {
		s := slots[i]
		if cur >= s.open && cur <= s.close {
			return shiftResult{keep: true, time: hhmm}
		}
		if cur < s.open && (next == nil || s.open < next.open) {
			next = &slots[i]
		}
	}
	if next != nil {
		return shiftResult{keep: true, time: formatHHmm(next.open % 1440), note: OpenNoteShifted}
	}
	return shiftResult{keep: false, time: hhmm, note: "closed_today"}
}

// applyOpeningHours adjusts each verified visit's time against the
// POI's opening periods for that trip day's weekday. Visits without a
// place id or without opening data pass through unchanged, as do
// locked entries. A detail lookup failure passes the visit unchanged
// rather than dropping it.
func applyOpeningHours(ctx context.Context, days []DayPlan, startDate string, verifier PlaceVerifier) []DayPlan {
	if strings.TrimSpace(startDate) == "" || verifier == nil {
		return days
	}
	if weekdayOf(startDate, 1) < 0 {
		return days
	}

	out := make([]DayPlan, 0, len(days))
	for _, d := range days {
		weekday := weekdayOf(startDate, d.Day)
		kept := make([]VisitItem, 0, len(d.Plan))
		for _, it := range d.Plan {
			if it.Locked || !it.Verified() {
				kept = append(kept, it)
				continue
			}
			periods, err := verifier.OpeningPeriods(ctx, it.PlaceID)
			if err != nil {
				log.Printf("trip-planner opening hours lookup failed place_id=%s err=%v", it.PlaceID, err)
				kept = append(kept, it)
				continue
			}
			adj := shiftIntoOpenWindow(it.Time, weekday, periods)
			if !adj.keep {
				continue
			}
			it.Time = adj.time
			if adj.note != "" {
				it.OpenNote = adj.note
			}
			kept = append(kept, it)
		}
		sortByTime(kept)
		out = append(out, DayPlan{Day: d.Day, Plan: kept})
	}
	return out
}
