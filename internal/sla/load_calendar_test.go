package sla

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type rowFunc func(dest ...any) error

type fakeRow struct{ f rowFunc }

func (r fakeRow) Scan(dest ...any) error { return r.f(dest...) }

type fakeRows struct {
	data [][]any
	i    int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Next() bool                                   { return r.i < len(r.data) }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }
func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.i]
	r.i++
	for i := range dest {
		switch d := dest[i].(type) {
		case *int:
			*d = row[i].(int)
		case *time.Time:
			*d = row[i].(time.Time)
		}
	}
	return nil
}

type fakeDB struct {
	missing  bool
	tz       string
	hours    [][]any
	holidays [][]any
}

func (db fakeDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	if len(db.hours) > 0 && sql == "select dow, start_sec, end_sec from business_hours where calendar_id=$1 order by dow, start_sec" {
		return &fakeRows{data: db.hours}, nil
	}
	if len(db.holidays) > 0 && sql == "select date from holidays where calendar_id=$1" {
		return &fakeRows{data: db.holidays}, nil
	}
	return &fakeRows{}, nil
}
func (db fakeDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	if sql == "select name, tz, active from calendars where id=$1" {
		return fakeRow{f: func(dest ...any) error {
			if db.missing {
				return pgx.ErrNoRows
			}
			*(dest[0].(*string)) = "Support hours"
			*(dest[1].(*string)) = db.tz
			*(dest[2].(*bool)) = true
			return nil
		}}
	}
	return fakeRow{f: func(dest ...any) error { return nil }}
}

func TestLoadCalendar(t *testing.T) {
	loc := "America/New_York"
	cases := []struct {
		name     string
		db       fakeDB
		validate func(t *testing.T, cal *Calendar)
	}{
		{
			name: "normalizes holidays",
			db: fakeDB{
				tz:    loc,
				hours: [][]any{{int(time.Monday), 9 * 3600, 17 * 3600}},
				holidays: [][]any{{
					time.Date(2024, 7, 4, 15, 30, 0, 0, time.UTC), // not midnight
				}},
			},
			validate: func(t *testing.T, cal *Calendar) {
				day := time.Date(2024, 7, 4, 12, 0, 0, 0, cal.Location)
				if !cal.IsHoliday(day) {
					t.Fatalf("expected holiday to be normalized")
				}
			},
		},
		{
			name: "loads split shifts",
			db: fakeDB{
				tz: loc,
				hours: [][]any{
					{int(time.Monday), 8 * 3600, 12 * 3600},
					{int(time.Monday), 13 * 3600, 17 * 3600},
				},
			},
			validate: func(t *testing.T, cal *Calendar) {
				if len(cal.Windows[time.Monday]) != 2 {
					t.Fatalf("expected two Monday windows, got %+v", cal.Windows[time.Monday])
				}
				if cal.Name != "Support hours" || !cal.Active {
					t.Fatalf("unexpected calendar header: %q active=%v", cal.Name, cal.Active)
				}
			},
		},
		{
			name: "loads varying business hours",
			db: fakeDB{
				tz: loc,
				hours: [][]any{
					{int(time.Monday), 8 * 3600, 12 * 3600},
					{int(time.Tuesday), 10 * 3600, 15 * 3600},
				},
			},
			validate: func(t *testing.T, cal *Calendar) {
				m := cal.Windows[time.Monday][0]
				if m.StartSec != 8*3600 || m.EndSec != 12*3600 {
					t.Fatalf("unexpected Monday hours: %+v", m)
				}
				tu := cal.Windows[time.Tuesday][0]
				if tu.StartSec != 10*3600 || tu.EndSec != 15*3600 {
					t.Fatalf("unexpected Tuesday hours: %+v", tu)
				}
				if len(cal.Windows[time.Wednesday]) != 0 {
					t.Fatalf("expected no Wednesday hours")
				}
			},
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			cal, err := LoadCalendar(context.Background(), tt.db, "cal-1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cal.Location == nil || cal.Location.String() == "" {
				t.Fatalf("expected location to be set")
			}
			tt.validate(t, cal)
		})
	}
}

func TestLoadCalendarNotFound(t *testing.T) {
	_, err := LoadCalendar(context.Background(), fakeDB{missing: true}, "nope")
	if !errors.Is(err, ErrCalendarNotFound) {
		t.Fatalf("expected ErrCalendarNotFound, got %v", err)
	}
}

func TestLoadCalendarRejectsOverlap(t *testing.T) {
	db := fakeDB{
		tz: "UTC",
		hours: [][]any{
			{int(time.Monday), 8 * 3600, 12 * 3600},
			{int(time.Monday), 11 * 3600, 17 * 3600},
		},
	}
	_, err := LoadCalendar(context.Background(), db, "cal-1")
	if !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestLoadCalendarBadTimezone(t *testing.T) {
	_, err := LoadCalendar(context.Background(), fakeDB{tz: "Mars/Olympus"}, "cal-1")
	if err == nil {
		t.Fatalf("expected error for unknown timezone")
	}
}
