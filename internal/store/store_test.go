package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/joelkehle/trip-planner/internal/itinerary"
)

func openTestStore(t *testing.T) *ScheduleStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trips.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleItinerary() *itinerary.Itinerary {
	return &itinerary.Itinerary{
		Title:     "오사카 2일 맞춤 여행",
		City:      "오사카",
		StartDate: "2026-10-05",
		EndDate:   "2026-10-06",
		Days: []itinerary.DayPlan{
			{Day: 1, Plan: []itinerary.VisitItem{
				{Time: "09:00", Place: "오사카성", Memo: "아침 산책", PlaceID: "p1",
					MapURL:   "https://www.google.com/maps/place/?q=place_id:p1",
					Location: &itinerary.LatLng{Lat: 34.687, Lng: 135.526}},
				{Time: "12:00", Place: "도톤보리", Locked: true},
			}},
			{Day: 2, Plan: []itinerary.VisitItem{
				{Time: "10:00", Place: "우메다 스카이빌딩"},
			}},
		},
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Save(ctx, "user-1", sampleItinerary())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if id <= 0 {
		t.Fatalf("bad schedule id %d", id)
	}

	sched, it, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sched.UserID != "user-1" || sched.Destination != "오사카" {
		t.Errorf("schedule header: %+v", sched)
	}
	if it.Title != "오사카 2일 맞춤 여행" || len(it.Days) != 2 {
		t.Fatalf("itinerary: %+v", it)
	}
	d1 := it.Days[0]
	if len(d1.Plan) != 2 || d1.Plan[0].Place != "오사카성" {
		t.Fatalf("day 1: %+v", d1.Plan)
	}
	if d1.Plan[0].Location == nil || d1.Plan[0].Location.Lat != 34.687 {
		t.Errorf("location lost: %+v", d1.Plan[0].Location)
	}
	if !d1.Plan[1].Locked {
		t.Error("locked flag lost")
	}
	if d1.Plan[1].Location != nil {
		t.Errorf("absent location must stay nil, got %+v", d1.Plan[1].Location)
	}
}

func TestGetUnknownSchedule(t *testing.T) {
	s := openTestStore(t)
	if _, _, err := s.Get(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListUpcomingAndPast(t *testing.T) {
	s := openTestStore(t)
	s.now = func() time.Time { return time.Date(2026, 10, 10, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	past := sampleItinerary()
	past.StartDate, past.EndDate = "2026-09-01", "2026-09-02"
	upcoming := sampleItinerary()
	upcoming.StartDate, upcoming.EndDate = "2026-11-01", "2026-11-02"

	if _, err := s.Save(ctx, "user-1", past); err != nil {
		t.Fatalf("Save past: %v", err)
	}
	if _, err := s.Save(ctx, "user-1", upcoming); err != nil {
		t.Fatalf("Save upcoming: %v", err)
	}
	if _, err := s.Save(ctx, "user-2", sampleItinerary()); err != nil {
		t.Fatalf("Save other user: %v", err)
	}

	up, err := s.List(ctx, "user-1", ListUpcoming)
	if err != nil {
		t.Fatalf("List upcoming: %v", err)
	}
	if len(up) != 1 || up[0].StartDate != "2026-11-01" {
		t.Fatalf("upcoming: %+v", up)
	}

	pa, err := s.List(ctx, "user-1", ListPast)
	if err != nil {
		t.Fatalf("List past: %v", err)
	}
	if len(pa) != 1 || pa[0].EndDate != "2026-09-02" {
		t.Fatalf("past: %+v", pa)
	}

	all, err := s.List(ctx, "user-1", ListAll)
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("all: %+v", all)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Save(ctx, "user-1", sampleItinerary())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := s.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete should be ErrNotFound, got %v", err)
	}
}
