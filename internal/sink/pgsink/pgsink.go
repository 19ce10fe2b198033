// Package pgsink keeps the latest observation of every vehicle in a
// Postgres table, one row per train.
package pgsink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/traintracker-data/internal/common/db"
	"github.com/traintracker-data/internal/common/logger"
	"github.com/traintracker-data/internal/observation"
)

// columns mirror observation.Schema, followed by the point geometry.
var columns = []string{
	"train_id",
	"timestamp",
	"route_id",
	"trip_id",
	"origin",
	"destination",
	"status",
	"stop_id",
	"stop_name",
	"stop_sequence",
	"number_of_stops",
	"arrive_or_depart_time",
	"bearing",
	"route_color",
	"delay",
	"lon",
	"lat",
}

var sqlTypes = map[observation.FieldType]string{
	observation.Text:    "TEXT NOT NULL DEFAULT ''",
	observation.Int32:   "INTEGER NOT NULL DEFAULT 0",
	observation.Int64:   "BIGINT NOT NULL DEFAULT 0",
	observation.Float64: "DOUBLE PRECISION NOT NULL DEFAULT 0",
}

type Sink struct {
	db     *db.DB
	table  string
	logger logger.Logger

	upsert string
	remove string
}

func New(database *db.DB, table string, log logger.Logger) *Sink {
	quoted := pq.QuoteIdentifier(table)

	placeholders := make([]string, len(columns))
	updates := make([]string, 0, len(columns)-1)
	for i, c := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if i > 0 {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
	}

	return &Sink{
		db:     database,
		table:  table,
		logger: log,
		upsert: fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (train_id) DO UPDATE SET %s, updated_at = now()",
			quoted, strings.Join(columns, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "),
		),
		remove: fmt.Sprintf("DELETE FROM %s WHERE train_id = ANY($1)", quoted),
	}
}

// CreateTableSQL returns the DDL for the observation table.
func (s *Sink) CreateTableSQL() string {
	defs := make([]string, 0, len(columns)+1)
	for i, f := range observation.Schema {
		def := columns[i] + " " + sqlTypes[f.Type]
		if i == 0 {
			def = columns[i] + " TEXT PRIMARY KEY"
		}
		defs = append(defs, def)
	}
	defs = append(defs,
		"lon DOUBLE PRECISION",
		"lat DOUBLE PRECISION",
		"updated_at TIMESTAMPTZ NOT NULL DEFAULT now()",
	)
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", pq.QuoteIdentifier(s.table), strings.Join(defs, ",\n\t"))
}

// EnsureSchema creates the table when it does not exist.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB().ExecContext(ctx, s.CreateTableSQL()); err != nil {
		return fmt.Errorf("creating table %s: %w", s.table, err)
	}
	s.logger.Info("Observation table ready", "table", s.table)
	return nil
}

// Append upserts the observation keyed by train id.
func (s *Sink) Append(ctx context.Context, obs observation.Observation) error {
	args := obs.Values()
	var lon, lat sql.NullFloat64
	if obs.Geometry != nil {
		lon = sql.NullFloat64{Float64: obs.Geometry.Lon, Valid: true}
		lat = sql.NullFloat64{Float64: obs.Geometry.Lat, Valid: true}
	}
	args = append(args, lon, lat)

	if _, err := s.db.DB().ExecContext(ctx, s.upsert, args...); err != nil {
		return fmt.Errorf("upserting observation for %s: %w", obs.TrainID, err)
	}
	return nil
}

// Remove deletes the rows of evicted trains.
func (s *Sink) Remove(ctx context.Context, trainIDs ...string) error {
	if len(trainIDs) == 0 {
		return nil
	}
	res, err := s.db.DB().ExecContext(ctx, s.remove, pq.Array(trainIDs))
	if err != nil {
		return fmt.Errorf("deleting observations: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		s.logger.Debug("Deleted observations", "table", s.table, "rows", n)
	}
	return nil
}
