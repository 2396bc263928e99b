// Package store persists finished itineraries to SQLite so trips can
// be listed and reloaded later.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/joelkehle/trip-planner/internal/itinerary"
)

// ErrNotFound is returned by Get for an unknown schedule id.
var ErrNotFound = errors.New("schedule not found")

// Schedule is the stored header row for a saved itinerary.
type Schedule struct {
	ID          int64  `db:"schedule_id"`
	UserID      string `db:"user_id"`
	Title       string `db:"title"`
	Destination string `db:"destination"`
	StartDate   string `db:"startdate"`
	EndDate     string `db:"enddate"`
	CreatedAt   string `db:"created_at"`
}

// ListKind selects which schedules List returns relative to today.
type ListKind string

const (
	ListAll      ListKind = ""
	ListUpcoming ListKind = "upcoming"
	ListPast     ListKind = "past"
)

const schema = `
CREATE TABLE IF NOT EXISTS schedules (
	schedule_id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     TEXT NOT NULL,
	title       TEXT NOT NULL,
	destination TEXT NOT NULL,
	startdate   TEXT NOT NULL,
	enddate     TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS plan_details (
	detail_id   INTEGER PRIMARY KEY AUTOINCREMENT,
	schedule_id INTEGER NOT NULL,
	day         INTEGER NOT NULL,
	time        TEXT NOT NULL DEFAULT '',
	place       TEXT NOT NULL,
	memo        TEXT NOT NULL DEFAULT '',
	place_id    TEXT NOT NULL DEFAULT '',
	map_url     TEXT NOT NULL DEFAULT '',
	lat         REAL,
	lng         REAL,
	locked      INTEGER NOT NULL DEFAULT 0,
	position    INTEGER NOT NULL,
	FOREIGN KEY (schedule_id) REFERENCES schedules(schedule_id)
);

CREATE INDEX IF NOT EXISTS idx_plan_details_schedule
	ON plan_details(schedule_id, day, position);
`

// ScheduleStore wraps a SQLite database holding schedules and their
// per-day plan details.
type ScheduleStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func Open(dbPath string) (*ScheduleStore, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &ScheduleStore{db: db, now: time.Now}, nil
}

func (s *ScheduleStore) Close() error {
	return s.db.Close()
}

// Save stores an itinerary and all of its day items in one
// transaction, returning the new schedule id.
func (s *ScheduleStore) Save(ctx context.Context, userID string, it *itinerary.Itinerary) (int64, error) {
	if it == nil {
		return 0, errors.New("nil itinerary")
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO schedules (user_id, title, destination, startdate, enddate, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, it.Title, it.City, it.StartDate, it.EndDate,
		s.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("insert schedule: %w", err)
	}
	scheduleID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("schedule id: %w", err)
	}

	for _, day := range it.Days {
		for pos, item := range day.Plan {
			var lat, lng any
			if item.Location != nil {
				lat, lng = item.Location.Lat, item.Location.Lng
			}
			locked := 0
			if item.Locked {
				locked = 1
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO plan_details (schedule_id, day, time, place, memo, place_id, map_url, lat, lng, locked, position)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				scheduleID, day.Day, item.Time, item.Place, item.Memo,
				item.PlaceID, item.MapURL, lat, lng, locked, pos,
			); err != nil {
				return 0, fmt.Errorf("insert plan detail: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return scheduleID, nil
}

// Get loads a schedule header and rebuilds its itinerary.
func (s *ScheduleStore) Get(ctx context.Context, scheduleID int64) (*Schedule, *itinerary.Itinerary, error) {
	var sched Schedule
	err := s.db.GetContext(ctx, &sched,
		`SELECT schedule_id, user_id, title, destination, startdate, enddate, created_at
		 FROM schedules WHERE schedule_id = ?`, scheduleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("select schedule: %w", err)
	}

	rows, err := s.db.QueryxContext(ctx,
		`SELECT day, time, place, memo, place_id, map_url, lat, lng, locked
		 FROM plan_details WHERE schedule_id = ?
		 ORDER BY day, position`, scheduleID)
	if err != nil {
		return nil, nil, fmt.Errorf("select plan details: %w", err)
	}
	defer rows.Close()

	it := &itinerary.Itinerary{
		Title:     sched.Title,
		City:      sched.Destination,
		StartDate: sched.StartDate,
		EndDate:   sched.EndDate,
	}
	byDay := map[int]int{}
	for rows.Next() {
		var (
			day, locked                     int
			t, place, memo, placeID, mapURL string
			lat, lng                        sql.NullFloat64
		)
		if err := rows.Scan(&day, &t, &place, &memo, &placeID, &mapURL, &lat, &lng, &locked); err != nil {
			return nil, nil, fmt.Errorf("scan plan detail: %w", err)
		}
		item := itinerary.VisitItem{
			Time:    t,
			Place:   place,
			Memo:    memo,
			PlaceID: placeID,
			MapURL:  mapURL,
			Locked:  locked != 0,
		}
		if lat.Valid && lng.Valid {
			item.Location = &itinerary.LatLng{Lat: lat.Float64, Lng: lng.Float64}
		}
		idx, ok := byDay[day]
		if !ok {
			idx = len(it.Days)
			byDay[day] = idx
			it.Days = append(it.Days, itinerary.DayPlan{Day: day})
		}
		it.Days[idx].Plan = append(it.Days[idx].Plan, item)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate plan details: %w", err)
	}
	return &sched, it, nil
}

// List returns a user's schedules, optionally filtered to those that
// have not started yet or those already finished.
func (s *ScheduleStore) List(ctx context.Context, userID string, kind ListKind) ([]Schedule, error) {
	query := `SELECT schedule_id, user_id, title, destination, startdate, enddate, created_at
		  FROM schedules WHERE user_id = ?`
	args := []any{userID}
	today := s.now().Format("2006-01-02")
	switch kind {
	case ListUpcoming:
		query += " AND startdate >= ?"
		args = append(args, today)
	case ListPast:
		query += " AND enddate < ?"
		args = append(args, today)
	case ListAll:
	default:
		return nil, fmt.Errorf("unknown list kind %q", string(kind))
	}
	query += " ORDER BY startdate"

	var out []Schedule
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("select schedules: %w", err)
	}
	return out, nil
}

// Delete removes a schedule and its plan details.
func (s *ScheduleStore) Delete(ctx context.Context, scheduleID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM plan_details WHERE schedule_id = ?", scheduleID); err != nil {
		return fmt.Errorf("delete plan details: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM schedules WHERE schedule_id = ?", scheduleID)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}
