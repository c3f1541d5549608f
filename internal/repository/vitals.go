package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"patientvitals/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var columnTypes = map[models.ColumnType]string{
	models.ColumnTimestamp: "TIMESTAMPTZ",
	models.ColumnInteger:   "INTEGER",
	models.ColumnFloat:     "DOUBLE PRECISION",
}

// QuoteTable validates "table" or "schema.table" and returns it quoted
func QuoteTable(name string) (string, error) {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("invalid table identifier %q: expected table or schema.table", name)
	}
	for i, part := range parts {
		if !identPattern.MatchString(part) {
			return "", fmt.Errorf("invalid table identifier %q", name)
		}
		parts[i] = pq.QuoteIdentifier(part)
	}
	return strings.Join(parts, "."), nil
}

// VitalsRepository append-only vitals table in Postgres.
// Rows are only ever inserted.
type VitalsRepository struct {
	db     *sql.DB
	table  string
	logger *zap.Logger

	createSQL string
	insertSQL string

	mu    sync.Mutex
	ready bool
}

// NewVitalsRepository creates the repository for table
func NewVitalsRepository(db *sql.DB, table string, logger *zap.Logger) (*VitalsRepository, error) {
	quoted, err := QuoteTable(table)
	if err != nil {
		return nil, err
	}

	columns := make([]string, 0, len(models.TableSchema))
	defs := make([]string, 0, len(models.TableSchema))
	params := make([]string, 0, len(models.TableSchema))
	for i, col := range models.TableSchema {
		columns = append(columns, col.Name)
		defs = append(defs, fmt.Sprintf("%s %s NOT NULL", col.Name, columnTypes[col.Type]))
		params = append(params, fmt.Sprintf("$%d", i+1))
	}

	return &VitalsRepository{
		db:        db,
		table:     table,
		logger:    logger,
		createSQL: fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoted, strings.Join(defs, ", ")),
		insertSQL: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoted, strings.Join(columns, ", "), strings.Join(params, ", ")),
	}, nil
}

// EnsureTable creates the table when it does not exist yet
func (r *VitalsRepository) EnsureTable(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureLocked(ctx)
}

func (r *VitalsRepository) ensureLocked(ctx context.Context) error {
	if r.ready {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, r.createSQL); err != nil {
		return fmt.Errorf("failed to create table %s: %w", r.table, err)
	}
	r.ready = true
	r.logger.Info("Vitals table ready", zap.String("table", r.table))
	return nil
}

// Append inserts one record, creating the table on first use
func (r *VitalsRepository) Append(ctx context.Context, rec models.VitalsRecord) error {
	r.mu.Lock()
	err := r.ensureLocked(ctx)
	r.mu.Unlock()
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, r.insertSQL, rec.Values()...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", r.table, err)
	}
	return nil
}

// Ping checks the database connection
func (r *VitalsRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
