package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/orian/trendlabel/models"
)

// warehouseRow is one saved ledger row as stored in ClickHouse.
type warehouseRow struct {
	DataFile   string
	ItemNumber uint32
	StartIndex string
	EndIndex   string
	Label      string
	Color      string
	SavedAt    time.Time
}

// ClickHousePublisher copies saved ledgers into a ClickHouse table.
type ClickHousePublisher struct {
	conn     driver.Conn
	database string
	table    string
	log      *slog.Logger
}

// NewClickHousePublisher creates a publisher writing to database.table.
func NewClickHousePublisher(conn driver.Conn, database, table string, logger *slog.Logger) *ClickHousePublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClickHousePublisher{conn: conn, database: database, table: table, log: logger}
}

// EnsureTable creates the annotations table when missing.
func (p *ClickHousePublisher) EnsureTable(ctx context.Context) error {
	if err := p.conn.Exec(ctx, tableDDL(p.qualifiedTable())); err != nil {
		return fmt.Errorf("create %s: %w", p.qualifiedTable(), err)
	}
	return nil
}

// Publish appends the rows of one saved ledger as a single batch.
func (p *ClickHousePublisher) Publish(ctx context.Context, identifier string, rows []models.AnnotationRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := p.conn.PrepareBatch(ctx, "INSERT INTO "+p.qualifiedTable())
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer batch.Abort()

	for _, r := range toWarehouseRows(identifier, rows, time.Now().UTC()) {
		if err := batch.Append(r.DataFile, r.ItemNumber, r.StartIndex, r.EndIndex, r.Label, r.Color, r.SavedAt); err != nil {
			return fmt.Errorf("append row %d: %w", r.ItemNumber, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	p.log.Info("saved ledger published", "file", identifier, "rows", len(rows), "table", p.qualifiedTable())
	return nil
}

// Ping checks the connection.
func (p *ClickHousePublisher) Ping(ctx context.Context) error {
	return p.conn.Ping(ctx)
}

func (p *ClickHousePublisher) qualifiedTable() string {
	return qualifiedTable(p.database, p.table)
}

func qualifiedTable(database, table string) string {
	if database == "" {
		return quoteIdent(table)
	}
	return quoteIdent(database) + "." + quoteIdent(table)
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func tableDDL(qualified string) string {
	return `CREATE TABLE IF NOT EXISTS ` + qualified + ` (
		data_file String,
		item_number UInt32,
		start_index String,
		end_index String,
		label LowCardinality(String),
		color LowCardinality(String),
		saved_at DateTime64(3, 'UTC')
	) ENGINE = MergeTree
	ORDER BY (data_file, saved_at, item_number)`
}

func toWarehouseRows(identifier string, rows []models.AnnotationRow, savedAt time.Time) []warehouseRow {
	out := make([]warehouseRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, warehouseRow{
			DataFile:   identifier,
			ItemNumber: uint32(r.ItemNumber),
			StartIndex: r.StartIndex,
			EndIndex:   r.EndIndex,
			Label:      r.Label,
			Color:      r.Color,
			SavedAt:    savedAt,
		})
	}
	return out
}

// openClickHouse connects to the configured server and logs the
// connection details with the password masked.
func openClickHouse(cfg ClickHouseConfig, logger *slog.Logger) (driver.Conn, error) {
	logger.Info("connecting to ClickHouse",
		"host", cfg.Host,
		"database", cfg.Database,
		"user", cfg.User,
		"password", maskPassword(cfg.Password),
		"secure", cfg.Secure)

	options := &clickhouse.Options{
		Addr: []string{cfg.Host},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{
				{Name: "trendlabel", Version: "1.0"},
			},
		},
		Settings: clickhouse.Settings{
			"send_logs_level": "none",
		},
	}
	if cfg.Secure {
		options.TLS = &tls.Config{InsecureSkipVerify: true}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	return conn, nil
}

func maskPassword(password string) string {
	if password == "" {
		return "<empty>"
	}
	if len(password) <= 2 {
		return strings.Repeat("*", len(password))
	}
	return string(password[0]) + strings.Repeat("*", len(password)-2) + string(password[len(password)-1])
}
