package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/devbret/trimet-gtfs-visualization/internal/bundle"
	"github.com/devbret/trimet-gtfs-visualization/internal/gtfs"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

type ScheduleOptions struct {
	// RouteFilter keeps a single route when set.
	RouteFilter string
	// ServiceDate keeps trips whose service runs that day when non-zero.
	ServiceDate time.Time
}

// LoadSchedule reads routes, trips, stops and stop_times from a GTFS import
// into a bundle.Schedule.
func LoadSchedule(ctx context.Context, db *sql.DB, opts ScheduleOptions) (bundle.Schedule, error) {
	var s bundle.Schedule
	routes, err := fetchRoutes(ctx, db)
	if err != nil {
		return s, err
	}
	var serviceIDs []string
	if !opts.ServiceDate.IsZero() {
		serviceIDs, err = fetchActiveServiceIDs(ctx, db, opts.ServiceDate)
		if err != nil {
			return s, err
		}
		if len(serviceIDs) == 0 {
			return s, fmt.Errorf("no active services on %s", opts.ServiceDate.Format("2006-01-02"))
		}
	}
	trips, err := fetchTrips(ctx, db, opts.RouteFilter, serviceIDs)
	if err != nil {
		return s, err
	}
	if err := fillStopTimes(ctx, db, trips); err != nil {
		return s, err
	}
	stops, err := fetchStops(ctx, db)
	if err != nil {
		return s, err
	}
	s.Routes = routes
	s.Stops = stops
	s.Trips = make([]gtfs.ScheduledTrip, 0, len(trips))
	for _, t := range trips {
		s.Trips = append(s.Trips, *t)
	}
	return s, nil
}

func fetchRoutes(ctx context.Context, db *sql.DB) ([]gtfs.Route, error) {
	q := `SELECT route_id, COALESCE(route_short_name, ''), COALESCE(route_color, '') FROM routes ORDER BY route_id`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query routes: %w", err)
	}
	defer rows.Close()
	var routes []gtfs.Route
	for rows.Next() {
		var r gtfs.Route
		if err := rows.Scan(&r.ID, &r.ShortName, &r.Color); err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

// fetchTrips returns trips ordered by route then trip id.
func fetchTrips(ctx context.Context, db *sql.DB, routeFilter string, serviceIDs []string) ([]*gtfs.ScheduledTrip, error) {
	q := `SELECT trip_id, route_id, COALESCE(trip_headsign, '') FROM trips
WHERE ($1 = '' OR route_id = $1)
  AND (cardinality($2::text[]) = 0 OR service_id = ANY($2))
ORDER BY route_id, trip_id`
	if serviceIDs == nil {
		serviceIDs = []string{}
	}
	rows, err := db.QueryContext(ctx, q, routeFilter, serviceIDs)
	if err != nil {
		return nil, fmt.Errorf("query trips: %w", err)
	}
	defer rows.Close()
	var trips []*gtfs.ScheduledTrip
	for rows.Next() {
		t := &gtfs.ScheduledTrip{}
		if err := rows.Scan(&t.TripID, &t.RouteID, &t.Headsign); err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

func fillStopTimes(ctx context.Context, db *sql.DB, trips []*gtfs.ScheduledTrip) error {
	if len(trips) == 0 {
		return nil
	}
	byID := make(map[string]*gtfs.ScheduledTrip, len(trips))
	ids := make([]string, 0, len(trips))
	for _, t := range trips {
		byID[t.TripID] = t
		ids = append(ids, t.TripID)
	}
	// arrival_time and departure_time may be stored as text or interval
	q := `SELECT trip_id, stop_sequence,
       COALESCE(arrival_time::text, ''),
       COALESCE(departure_time::text, ''),
       stop_id
FROM stop_times WHERE trip_id = ANY($1)
ORDER BY trip_id, stop_sequence`
	rows, err := db.QueryContext(ctx, q, ids)
	if err != nil {
		return fmt.Errorf("query stop_times: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			tripID   string
			st       gtfs.StopTime
			arr, dep string
		)
		if err := rows.Scan(&tripID, &st.StopSequence, &arr, &dep, &st.StopID); err != nil {
			return err
		}
		st.ArrivalSec = parseDaySeconds(arr)
		st.DepartureSec = parseDaySeconds(dep)
		if t := byID[tripID]; t != nil {
			t.StopTimes = append(t.StopTimes, st)
		}
	}
	return rows.Err()
}

func fetchStops(ctx context.Context, db *sql.DB) (map[string]gtfs.Stop, error) {
	// Prefer stop_lat/stop_lon, but support PostGIS stop_loc geography as fallback
	latlonExists, err := hasColumns(ctx, db, "public", "stops", "stop_lat", "stop_lon")
	if err != nil {
		return nil, fmt.Errorf("introspect stops columns: %w", err)
	}
	var q string
	if latlonExists["stop_lat"] && latlonExists["stop_lon"] {
		q = `SELECT stop_id, COALESCE(stop_lat, 0), COALESCE(stop_lon, 0) FROM stops`
	} else {
		locExists, err := hasColumns(ctx, db, "public", "stops", "stop_loc")
		if err != nil {
			return nil, fmt.Errorf("introspect stops stop_loc: %w", err)
		}
		if !locExists["stop_loc"] {
			return nil, fmt.Errorf("stops table missing expected columns (stop_lat/lon or stop_loc)")
		}
		q = `SELECT stop_id,
       COALESCE(ST_Y(stop_loc::geometry), 0),
       COALESCE(ST_X(stop_loc::geometry), 0)
FROM stops`
	}
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query stops: %w", err)
	}
	defer rows.Close()
	stops := make(map[string]gtfs.Stop)
	for rows.Next() {
		var s gtfs.Stop
		if err := rows.Scan(&s.StopID, &s.Lat, &s.Lon); err != nil {
			return nil, err
		}
		stops[s.StopID] = s
	}
	return stops, rows.Err()
}

func fetchActiveServiceIDs(ctx context.Context, db *sql.DB, day time.Time) ([]string, error) {
	date := day.Format("2006-01-02")
	dow := int(day.Weekday()) // 0=Sunday

	// calendar has booleans (0/1). calendar_dates has exception_type (1 add, 2 remove)
	// Assume these columns are of standard types created by postgis-gtfs-importer.
	q := `
WITH base AS (
  SELECT service_id
  FROM calendar
  WHERE start_date <= $1::date AND end_date >= $1::date
    AND (
      ($2 = 0 AND (sunday::text IN ('1','t','true','available'))) OR
      ($2 = 1 AND (monday::text IN ('1','t','true','available'))) OR
      ($2 = 2 AND (tuesday::text IN ('1','t','true','available'))) OR
      ($2 = 3 AND (wednesday::text IN ('1','t','true','available'))) OR
      ($2 = 4 AND (thursday::text IN ('1','t','true','available'))) OR
      ($2 = 5 AND (friday::text IN ('1','t','true','available'))) OR
      ($2 = 6 AND (saturday::text IN ('1','t','true','available')))
    )
), add_exc AS (
  SELECT service_id FROM calendar_dates WHERE date = $1::date AND (exception_type::text IN ('1','added'))
), rm_exc AS (
  SELECT service_id FROM calendar_dates WHERE date = $1::date AND (exception_type::text IN ('2','removed'))
), merged AS (
  SELECT service_id FROM base
  UNION
  SELECT service_id FROM add_exc
)
SELECT DISTINCT service_id FROM merged
WHERE service_id NOT IN (SELECT service_id FROM rm_exc)
`

	rows, err := db.QueryContext(ctx, q, date, dow)
	if err != nil {
		return nil, fmt.Errorf("query active services: %w", err)
	}
	defer rows.Close()
	var svc []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		svc = append(svc, s)
	}
	return svc, rows.Err()
}

// parseDaySeconds parses HH:MM:SS possibly with hours >= 24. A Postgres
// interval rendered with a day part ("1 day 01:00:00") is also accepted.
func parseDaySeconds(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	days := 0
	if i := strings.Index(s, " day"); i > 0 {
		days, _ = strconv.Atoi(s[:i])
		if j := strings.LastIndex(s, " "); j > i {
			s = s[j+1:]
		} else {
			s = ""
		}
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return days * 86400
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	sec := 0
	if len(parts) > 2 {
		sec, _ = strconv.Atoi(parts[2])
	}
	total := days*86400 + h*3600 + m*60 + sec
	if total < 0 {
		total = 0
	}
	return total
}

// hasColumns returns a map of requested column names to existence for the given table.
func hasColumns(ctx context.Context, db *sql.DB, schema, table string, cols ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(cols))
	if len(cols) == 0 {
		return res, nil
	}
	// Initialize to false
	for _, c := range cols {
		res[c] = false
	}
	q := `SELECT column_name FROM information_schema.columns
          WHERE table_schema = $1 AND table_name = $2 AND column_name = ANY($3)`
	rows, err := db.QueryContext(ctx, q, schema, table, cols)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}
