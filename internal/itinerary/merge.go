package itinerary

import (
	"sort"
	"strings"
)

// refinementPlan is the partition of a base itinerary under a remove
// list: locked survivors, the global place blacklist, per-day fill
// quotas and the set of days new entries may land on.
type refinementPlan struct {
	locked         []DayPlan
	forbidden      map[string]struct{}
	requiredPerDay map[int]int
	touchable      map[int]struct{}
}

func matchesRemove(remove []RemoveKey, day int, time, place string) bool {
	for _, r := range remove {
		if r.Day == day &&
			strings.TrimSpace(r.Time) == strings.TrimSpace(time) &&
			strings.TrimSpace(r.Place) == strings.TrimSpace(place) {
			return true
		}
	}
	return false
}

// partitionBase splits each base day into kept (locked) and removed
// entries. Every base place, kept or removed, joins the forbidden set
// so regeneration cannot reuse it. Days with at least one removal get
// a fill quota of clamp(removed, 1, 2); all other days are untouchable.
func partitionBase(base []DayPlan, remove []RemoveKey) refinementPlan {
	p := refinementPlan{
		forbidden:      map[string]struct{}{},
		requiredPerDay: map[int]int{},
		touchable:      map[int]struct{}{},
	}
	for _, d := range base {
		kept := make([]VisitItem, 0, len(d.Plan))
		for _, it := range d.Plan {
			p.forbidden[strings.ToLower(strings.TrimSpace(it.Place))] = struct{}{}
			if matchesRemove(remove, d.Day, it.Time, it.Place) {
				continue
			}
			it.Locked = true
			kept = append(kept, it)
		}
		p.locked = append(p.locked, DayPlan{Day: d.Day, Plan: kept})
	}

	removedPerDay := map[int]int{}
	for _, r := range remove {
		removedPerDay[r.Day]++
	}
	for day, cnt := range removedPerDay {
		if cnt > 2 {
			cnt = 2
		}
		if cnt < 1 {
			cnt = 1
		}
		p.requiredPerDay[day] = cnt
		p.touchable[day] = struct{}{}
	}
	return p
}

// mergeRefinement combines locked entries with normalized proposed
// entries per day. Locked entries are copied through untouched and
// always win; proposed entries are rejected when duplicate by
// (time, lowercased place), when the place is forbidden or generic,
// when the day is not touchable, or once the day's quota is spent.
// Days are keyed by number so a day the generator omitted still keeps
// its locked entries.
func mergeRefinement(p refinementPlan, proposed []DayPlan) []DayPlan {
	lockedByDay := map[int][]VisitItem{}
	for _, d := range p.locked {
		lockedByDay[d.Day] = d.Plan
	}
	proposedByDay := map[int][]VisitItem{}
	for _, d := range proposed {
		proposedByDay[d.Day] = d.Plan
	}

	daySet := map[int]struct{}{}
	for day := range lockedByDay {
		daySet[day] = struct{}{}
	}
	for day := range proposedByDay {
		daySet[day] = struct{}{}
	}
	dayNums := make([]int, 0, len(daySet))
	for day := range daySet {
		dayNums = append(dayNums, day)
	}
	sort.Ints(dayNums)

	out := make([]DayPlan, 0, len(dayNums))
	for _, day := range dayNums {
		seen := map[string]struct{}{}
		merged := make([]VisitItem, 0)

		for _, it := range lockedByDay[day] {
			key := it.Time + "||" + strings.ToLower(strings.TrimSpace(it.Place))
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, it)
		}

		added := 0
		quota := p.requiredPerDay[day]
		_, canTouch := p.touchable[day]
		for _, it := range proposedByDay[day] {
			if !canTouch || added >= quota {
				continue
			}
			placeKey := strings.ToLower(strings.TrimSpace(it.Place))
			key := it.Time + "||" + placeKey
			if _, dup := seen[key]; dup {
				continue
			}
			if it.Place == "" || isGenericPlace(it.Place) {
				continue
			}
			if _, banned := p.forbidden[placeKey]; banned {
				continue
			}
			it.Locked = false
			seen[key] = struct{}{}
			merged = append(merged, it)
			added++
		}

		sortByTime(merged)
		out = append(out, DayPlan{Day: day, Plan: merged})
	}
	return out
}
