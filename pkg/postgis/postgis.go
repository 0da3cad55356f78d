// Package postgis stores city models in PostgreSQL with PostGIS geometry
// columns, so that zone tables can be edited and shared outside the binary.
package postgis

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kass/go-eco-route/pkg/citymodel"
	"github.com/kass/go-eco-route/pkg/models"
	"github.com/lib/pq"
)

// ErrCityNotFound is returned when no model is stored for a city
var ErrCityNotFound = errors.New("city not found")

// ZoneStore loads and saves city zones in PostGIS
type ZoneStore struct {
	db *sql.DB
}

// NewZoneStore creates a new PostGIS connection
func NewZoneStore(host, user, password, dbname string, port int) (*ZoneStore, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
	return Open(connStr)
}

// Open connects using a lib/pq connection string or URL
func Open(connStr string) (*ZoneStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &ZoneStore{db: db}, nil
}

// InitSchema creates the city model tables and their spatial indexes
func (s *ZoneStore) InitSchema(ctx context.Context) error {
	queries := []string{
		`CREATE EXTENSION IF NOT EXISTS postgis;`,

		`CREATE TABLE IF NOT EXISTS city_models (
			city TEXT PRIMARY KEY,
			traffic_floor DOUBLE PRECISION NOT NULL,
			air_floor DOUBLE PRECISION NOT NULL,
			peak_hours INTEGER[] NOT NULL,
			grid_min_lat DOUBLE PRECISION NOT NULL,
			grid_max_lat DOUBLE PRECISION NOT NULL,
			grid_min_lng DOUBLE PRECISION NOT NULL,
			grid_max_lng DOUBLE PRECISION NOT NULL,
			grid_step DOUBLE PRECISION NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,

		`CREATE TABLE IF NOT EXISTS city_traffic_zones (
			city TEXT NOT NULL REFERENCES city_models(city) ON DELETE CASCADE,
			ord INTEGER NOT NULL,
			name TEXT NOT NULL,
			center GEOMETRY(POINT, 4326) NOT NULL,
			radius_m DOUBLE PRECISION NOT NULL,
			base_congestion DOUBLE PRECISION NOT NULL,
			peak_multiplier DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (city, ord)
		);`,

		`CREATE TABLE IF NOT EXISTS city_air_zones (
			city TEXT NOT NULL REFERENCES city_models(city) ON DELETE CASCADE,
			ord INTEGER NOT NULL,
			name TEXT NOT NULL,
			center GEOMETRY(POINT, 4326) NOT NULL,
			radius_m DOUBLE PRECISION NOT NULL,
			base_aqi DOUBLE PRECISION NOT NULL,
			traffic_impact DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (city, ord)
		);`,

		`CREATE TABLE IF NOT EXISTS city_places (
			city TEXT NOT NULL REFERENCES city_models(city) ON DELETE CASCADE,
			ord INTEGER NOT NULL,
			key TEXT NOT NULL,
			name TEXT NOT NULL,
			location GEOMETRY(POINT, 4326) NOT NULL,
			PRIMARY KEY (city, ord)
		);`,

		`CREATE INDEX IF NOT EXISTS idx_city_places_location ON city_places USING GIST(location);`,
		`CREATE INDEX IF NOT EXISTS idx_city_traffic_zones_center ON city_traffic_zones USING GIST(center);`,
		`CREATE INDEX IF NOT EXISTS idx_city_air_zones_center ON city_air_zones USING GIST(center);`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}

	return nil
}

// SaveModel replaces the stored model of m.City in a single transaction
func (s *ZoneStore) SaveModel(ctx context.Context, m *citymodel.Model) error {
	if err := m.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Child rows go with the cascade
	if _, err := tx.ExecContext(ctx, `DELETE FROM city_models WHERE city = $1`, m.City); err != nil {
		return fmt.Errorf("failed to clear city %s: %w", m.City, err)
	}

	peakHours := make([]int64, len(m.PeakHours))
	for i, h := range m.PeakHours {
		peakHours[i] = int64(h)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO city_models (city, traffic_floor, air_floor, peak_hours,
			grid_min_lat, grid_max_lat, grid_min_lng, grid_max_lng, grid_step, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
	`, m.City, m.TrafficFloor, m.AirFloor, pq.Array(peakHours),
		m.Heatmap.MinLat, m.Heatmap.MaxLat, m.Heatmap.MinLng, m.Heatmap.MaxLng, m.Heatmap.Step)
	if err != nil {
		return fmt.Errorf("failed to insert city %s: %w", m.City, err)
	}

	trafficStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO city_traffic_zones (city, ord, name, center, radius_m, base_congestion, peak_multiplier)
		VALUES ($1, $2, $3, ST_SetSRID(ST_MakePoint($4, $5), 4326), $6, $7, $8)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer trafficStmt.Close()

	for i, z := range m.TrafficZones {
		_, err := trafficStmt.ExecContext(ctx, m.City, i, z.Name, z.Center.Lng, z.Center.Lat,
			z.RadiusM, z.BaseCongestion, z.PeakMultiplier)
		if err != nil {
			return fmt.Errorf("failed to insert traffic zone %s: %w", z.Name, err)
		}
	}

	airStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO city_air_zones (city, ord, name, center, radius_m, base_aqi, traffic_impact)
		VALUES ($1, $2, $3, ST_SetSRID(ST_MakePoint($4, $5), 4326), $6, $7, $8)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer airStmt.Close()

	for i, z := range m.AirZones {
		_, err := airStmt.ExecContext(ctx, m.City, i, z.Name, z.Center.Lng, z.Center.Lat,
			z.RadiusM, z.BaseAQI, z.TrafficImpact)
		if err != nil {
			return fmt.Errorf("failed to insert air zone %s: %w", z.Name, err)
		}
	}

	placeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO city_places (city, ord, key, name, location)
		VALUES ($1, $2, $3, $4, ST_SetSRID(ST_MakePoint($5, $6), 4326))
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer placeStmt.Close()

	for i, p := range m.Places {
		if _, err := placeStmt.ExecContext(ctx, m.City, i, p.Key, p.Name, p.Location.Lng, p.Location.Lat); err != nil {
			return fmt.Errorf("failed to insert place %s: %w", p.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit city %s: %w", m.City, err)
	}
	return nil
}

// LoadModel reads the stored model of a city
func (s *ZoneStore) LoadModel(ctx context.Context, city string) (*citymodel.Model, error) {
	m := &citymodel.Model{City: city}

	var peakHours []int64
	err := s.db.QueryRowContext(ctx, `
		SELECT traffic_floor, air_floor, peak_hours,
			grid_min_lat, grid_max_lat, grid_min_lng, grid_max_lng, grid_step
		FROM city_models WHERE city = $1
	`, city).Scan(&m.TrafficFloor, &m.AirFloor, pq.Array(&peakHours),
		&m.Heatmap.MinLat, &m.Heatmap.MaxLat, &m.Heatmap.MinLng, &m.Heatmap.MaxLng, &m.Heatmap.Step)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCityNotFound, city)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load city %s: %w", city, err)
	}

	m.PeakHours = make([]int, len(peakHours))
	for i, h := range peakHours {
		m.PeakHours[i] = int(h)
	}

	if m.TrafficZones, err = s.loadTrafficZones(ctx, city); err != nil {
		return nil, err
	}
	if m.AirZones, err = s.loadAirZones(ctx, city); err != nil {
		return nil, err
	}
	if m.Places, err = s.loadPlaces(ctx, city, ""); err != nil {
		return nil, err
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("stored city %s: %w", city, err)
	}
	return m, nil
}

func (s *ZoneStore) loadTrafficZones(ctx context.Context, city string) ([]citymodel.TrafficZone, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, ST_Y(center) AS lat, ST_X(center) AS lng, radius_m, base_congestion, peak_multiplier
		FROM city_traffic_zones WHERE city = $1 ORDER BY ord
	`, city)
	if err != nil {
		return nil, fmt.Errorf("failed to query traffic zones: %w", err)
	}
	defer rows.Close()

	var zones []citymodel.TrafficZone
	for rows.Next() {
		var z citymodel.TrafficZone
		if err := rows.Scan(&z.Name, &z.Center.Lat, &z.Center.Lng, &z.RadiusM, &z.BaseCongestion, &z.PeakMultiplier); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		zones = append(zones, z)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return zones, nil
}

func (s *ZoneStore) loadAirZones(ctx context.Context, city string) ([]citymodel.AirZone, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, ST_Y(center) AS lat, ST_X(center) AS lng, radius_m, base_aqi, traffic_impact
		FROM city_air_zones WHERE city = $1 ORDER BY ord
	`, city)
	if err != nil {
		return nil, fmt.Errorf("failed to query air zones: %w", err)
	}
	defer rows.Close()

	var zones []citymodel.AirZone
	for rows.Next() {
		var z citymodel.AirZone
		if err := rows.Scan(&z.Name, &z.Center.Lat, &z.Center.Lng, &z.RadiusM, &z.BaseAQI, &z.TrafficImpact); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		zones = append(zones, z)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return zones, nil
}

// loadPlaces reads the gazetteer of a city, optionally restricted by a WHERE fragment
func (s *ZoneStore) loadPlaces(ctx context.Context, city, filter string, args ...any) ([]citymodel.Place, error) {
	query := `SELECT key, name, ST_Y(location) AS lat, ST_X(location) AS lng
		FROM city_places WHERE city = $1` + filter + ` ORDER BY ord`

	rows, err := s.db.QueryContext(ctx, query, append([]any{city}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query places: %w", err)
	}
	defer rows.Close()

	var places []citymodel.Place
	for rows.Next() {
		var p citymodel.Place
		if err := rows.Scan(&p.Key, &p.Name, &p.Location.Lat, &p.Location.Lng); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		places = append(places, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return places, nil
}

// PlacesInBox performs a bounding box query over a city's gazetteer
func (s *ZoneStore) PlacesInBox(ctx context.Context, city string, box models.BoundingBox) ([]citymodel.Place, error) {
	return s.loadPlaces(ctx, city,
		` AND location && ST_MakeEnvelope($2, $3, $4, $5, 4326)`,
		box.BottomLeft.Lng, box.BottomLeft.Lat,
		box.TopRight.Lng, box.TopRight.Lat)
}

// Cities lists the stored city names
func (s *ZoneStore) Cities(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT city FROM city_models ORDER BY city`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cities: %w", err)
	}
	defer rows.Close()

	var cities []string
	for rows.Next() {
		var city string
		if err := rows.Scan(&city); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		cities = append(cities, city)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return cities, nil
}

// Stats returns row counts and on-disk sizes of the city model tables
func (s *ZoneStore) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	for _, table := range []string{"city_models", "city_traffic_zones", "city_air_zones", "city_places"} {
		var count int64
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats[table+"_rows"] = count
	}

	var totalSize string
	err := s.db.QueryRowContext(ctx, `
		SELECT pg_size_pretty(
			pg_total_relation_size('city_models') +
			pg_total_relation_size('city_traffic_zones') +
			pg_total_relation_size('city_air_zones') +
			pg_total_relation_size('city_places'))
	`).Scan(&totalSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get table sizes: %w", err)
	}
	stats["total_size"] = totalSize

	return stats, nil
}

// Close closes the database connection
func (s *ZoneStore) Close() error {
	return s.db.Close()
}
