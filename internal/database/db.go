package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/Alias1177/MerchantScope/internal/analysis/filter"
	"github.com/Alias1177/MerchantScope/internal/model"
)

const sourceName = "warehouse"

// DB represents a transaction warehouse connection. It implements both
// model.StatisticsSource and model.DetailSource.
type DB struct {
	*sqlx.DB
	queries Queries
	logger  zerolog.Logger
}

// ConnectionParams holds PostgreSQL connection parameters
type ConnectionParams struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders the lib/pq connection string
func (p ConnectionParams) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode,
	)
}

// New connects to PostgreSQL and checks the connection
func New(ctx context.Context, params ConnectionParams) (*DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", params.DSN())
	if err != nil {
		return nil, classify(fmt.Errorf("connecting to warehouse: %w", err))
	}

	return Open(db, PostgresQueries()), nil
}

// NewSQLite opens a SQLite warehouse, mainly for local runs
func NewSQLite(ctx context.Context, dsn string) (*DB, error) {
	// times must be stored in a sortable text format for window queries
	if !strings.Contains(dsn, "_time_format=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_time_format=sqlite"
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, classify(fmt.Errorf("opening sqlite warehouse: %w", err))
	}
	// a single connection keeps in-memory databases shared
	db.SetMaxOpenConns(1)

	return Open(db, SQLiteQueries()), nil
}

// Open wraps an existing connection
func Open(db *sqlx.DB, queries Queries) *DB {
	return &DB{
		DB:      db,
		queries: queries,
		logger:  log.With().Str("component", "warehouse").Logger(),
	}
}

// EnsureSchema creates the transactions table if it doesn't exist
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return classify(fmt.Errorf("creating schema: %w", err))
	}
	if _, err := db.ExecContext(ctx, schemaIndex); err != nil {
		return classify(fmt.Errorf("creating index: %w", err))
	}
	return nil
}

// InsertRecords stores transactions, replacing rows with the same id
func (db *DB) InsertRecords(ctx context.Context, records []model.TransactionRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("starting transaction: %w", err))
	}
	defer tx.Rollback()

	for _, r := range records {
		r.Timestamp = r.Timestamp.UTC()
		if _, err := tx.NamedExecContext(ctx, db.queries.Insert, r); err != nil {
			return classify(fmt.Errorf("inserting %s: %w", r.TransactionID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("committing records: %w", err))
	}

	db.logger.Debug().Int("count", len(records)).Msg("Stored transactions")
	return nil
}

type statisticsRow struct {
	EntityID         string  `db:"entity_id"`
	MedianAmount     float64 `db:"median_amount"`
	AverageAmount    float64 `db:"average_amount"`
	TransactionCount int64   `db:"transaction_count"`
}

// FetchAggregates computes median, average and count of positive amounts per merchant
func (db *DB) FetchAggregates(ctx context.Context, window model.Window, f model.StatsFilter) ([]model.EntityStatistics, error) {
	minCount := f.MinTransactionCount
	if minCount < 1 {
		minCount = 1
	}

	var rows []statisticsRow
	query := db.Rebind(db.queries.Statistics)
	if err := db.SelectContext(ctx, &rows, query, window.Start.UTC(), window.End.UTC(), minCount); err != nil {
		return nil, classify(fmt.Errorf("querying statistics: %w", err))
	}

	stats := make([]model.EntityStatistics, 0, len(rows))
	for _, row := range rows {
		stats = append(stats, model.NewEntityStatistics(row.EntityID, row.MedianAmount, row.AverageAmount, row.TransactionCount))
	}

	// highest ratio first, so the limit keeps the most skewed merchants
	filter.SortByRatio(stats)
	if f.Limit > 0 && len(stats) > f.Limit {
		stats = stats[:f.Limit]
	}

	db.logger.Debug().Int("count", len(stats)).Msg("Fetched merchant statistics")
	return stats, nil
}

// FetchRecords returns a merchant's transactions inside the window, oldest first
func (db *DB) FetchRecords(ctx context.Context, entityID string, window model.Window) ([]model.TransactionRecord, error) {
	records := []model.TransactionRecord{}
	query := db.Rebind(db.queries.Records)
	if err := db.SelectContext(ctx, &records, query, entityID, window.Start.UTC(), window.End.UTC()); err != nil {
		return nil, classify(fmt.Errorf("querying transactions of %s: %w", entityID, err))
	}
	return records, nil
}

// classify wraps driver errors into a DataSourceError. Context errors are
// returned untouched so they keep their timeout or cancelled kind.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	kind := model.KindQuery
	var pqErr *pq.Error
	var netErr net.Error
	switch {
	case errors.As(err, &pqErr):
		kind = pqKind(pqErr)
	case errors.Is(err, driver.ErrBadConn):
		kind = model.KindConnection
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			kind = model.KindTimeout
		} else {
			kind = model.KindConnection
		}
	}
	return model.NewDataSourceError(sourceName, kind, err)
}

func pqKind(err *pq.Error) model.ErrorKind {
	switch err.Code {
	case "57014": // query_canceled, statement timeout
		return model.KindTimeout
	case "57P01", "57P03": // admin shutdown, cannot connect now
		return model.KindConnection
	}

	switch err.Code.Class() {
	case "28": // invalid authorization
		return model.KindAuth
	case "08", "53": // connection exception, insufficient resources
		return model.KindConnection
	default:
		return model.KindQuery
	}
}

// connMaxLifetime bounds pooled connections in long-lived processes
const connMaxLifetime = 30 * time.Minute

// Configure applies pool limits
func (db *DB) Configure(maxOpen int) {
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen)
	}
	db.SetConnMaxLifetime(connMaxLifetime)
}
