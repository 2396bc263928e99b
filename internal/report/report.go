// Package report renders a finished itinerary as GFM markdown and,
// via headless Chromium, as a printable PDF.
package report

import (
	"fmt"
	"strings"

	"github.com/joelkehle/trip-planner/internal/itinerary"
)

// BuildMarkdown renders the itinerary day by day. Verified visits get
// a map link; shifted visits carry a note so the traveler knows the
// time moved.
func BuildMarkdown(it *itinerary.Itinerary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", sanitize(it.Title))
	if it.City != "" {
		fmt.Fprintf(&b, "- Destination: %s\n", sanitize(it.City))
	}
	if it.StartDate != "" && it.EndDate != "" {
		fmt.Fprintf(&b, "- Dates: %s ~ %s\n", it.StartDate, it.EndDate)
	}
	fmt.Fprintf(&b, "- Days: %d\n\n", len(it.Days))

	for _, day := range it.Days {
		fmt.Fprintf(&b, "## Day %d\n\n", day.Day)
		if len(day.Plan) == 0 {
			b.WriteString("_No visits scheduled._\n\n")
			continue
		}
		b.WriteString("| Time | Place | Memo |\n")
		b.WriteString("| --- | --- | --- |\n")
		for _, item := range day.Plan {
			place := sanitize(item.Place)
			if item.MapURL != "" {
				place = fmt.Sprintf("[%s](%s)", place, item.MapURL)
			}
			memo := sanitize(item.Memo)
			if item.OpenNote == itinerary.OpenNoteShifted {
				memo = strings.TrimSpace(memo + " (moved to opening hours)")
			}
			t := item.Time
			if t == "" {
				t = "-"
			}
			fmt.Fprintf(&b, "| %s | %s | %s |\n", t, place, memo)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
