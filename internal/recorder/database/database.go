// Package database provides the PostgreSQL connection and storage for the
// recorder service.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	ecotrend "github.com/ecotrend/go-ecotrend-ista"
)

// Config holds the configuration for connecting to the PostgreSQL database.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN returns the connection string of the configuration.
func (cfg Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)
}

type dbPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Close()
}

// Manager manages the PostgreSQL database connection pool.
type Manager struct {
	dbpool dbPool
	now    func() time.Time
}

type options struct {
	newPool func(ctx context.Context, dsn string) (dbPool, error)
	now     func() time.Time
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// Connect establishes a connection to the PostgreSQL database using the
// provided configuration.
func Connect(ctx context.Context, cfg Config, args ...Options) (*Manager, error) {
	opts := options{
		newPool: func(ctx context.Context, dsn string) (dbPool, error) {
			return pgxpool.New(ctx, dsn)
		},
		now: time.Now,
	}

	for _, opt := range args {
		opt(&opts)
	}

	dbpool, err := opts.newPool(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	slog.Info("Connected to PostgreSQL database", "host", cfg.Host, "port", cfg.Port)
	return &Manager{dbpool: dbpool, now: opts.now}, nil
}

// StoreReadings upserts the readings of a consumption unit.
//
// The API republishes past months whenever estimates get replaced by real
// values, so an existing row is updated instead of duplicated.
func (db Manager) StoreReadings(ctx context.Context, unitUUID string, readings ecotrend.FlatReadings) error {
	const query = `INSERT INTO readings (
			entity_id,
			unit_uuid,
			support_code,
			reading_type,
			period_year,
			period_month,
			value,
			unit,
			energy_value,
			energy_unit,
			estimated,
			recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (unit_uuid, reading_type, period_year, period_month)
		DO UPDATE SET
			value = EXCLUDED.value,
			unit = EXCLUDED.unit,
			energy_value = EXCLUDED.energy_value,
			energy_unit = EXCLUDED.energy_unit,
			estimated = EXCLUDED.estimated,
			recorded_at = EXCLUDED.recorded_at`

	for _, r := range readings {
		_, err := db.dbpool.Exec(
			ctx,
			query,
			r.EntityID,    // entity_id
			unitUUID,      // unit_uuid
			r.SupportCode, // support_code
			r.Type,        // reading_type
			r.Year,        // period_year
			r.Month,       // period_month
			r.Value,       // value
			r.Unit,        // unit
			r.EnergyValue, // energy_value
			r.EnergyUnit,  // energy_unit
			r.Estimated,   // estimated
			db.now(),      // recorded_at
		)
		if err != nil {
			return fmt.Errorf("failed to store reading %s: %w", r.EntityID, err)
		}
	}
	return nil
}

// Close closes the database connection pool.
func (db Manager) Close() error {
	if db.dbpool != nil {
		db.dbpool.Close()
	}
	return nil
}
