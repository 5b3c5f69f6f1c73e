// Package postgres loads schema catalog metadata from the warehouse's
// information_schema views over the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/claimscope/claimscope/internal/schema"
)

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("warehouse dsn is required")
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open warehouse db: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping warehouse db: %w", err)
	}

	return db, nil
}

// Source reads table and column metadata for one database schema, along with
// planner row estimates used to flag high-cardinality tables.
type Source struct {
	db                  *sql.DB
	schemaName          string
	highCardinalityRows int64
}

func NewSource(db *sql.DB, schemaName string, highCardinalityRows int64) *Source {
	if schemaName == "" {
		schemaName = "public"
	}
	if highCardinalityRows <= 0 {
		highCardinalityRows = 100000
	}
	return &Source{db: db, schemaName: schemaName, highCardinalityRows: highCardinalityRows}
}

func (s *Source) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping warehouse db: %w", err)
	}
	return nil
}

const loadColumnsQuery = `
SELECT c.table_name,
       c.column_name,
       c.data_type,
       c.is_nullable,
       COALESCE(obj_description(pc.oid), '') AS table_comment,
       COALESCE(pc.reltuples, 0)::bigint AS estimated_rows
FROM information_schema.columns c
JOIN pg_class pc ON pc.relname = c.table_name
JOIN pg_namespace pn ON pn.oid = pc.relnamespace AND pn.nspname = c.table_schema
WHERE c.table_schema = $1
ORDER BY c.table_name ASC, c.ordinal_position ASC`

func (s *Source) Load(ctx context.Context) ([]schema.Table, error) {
	rows, err := s.db.QueryContext(ctx, loadColumnsQuery, s.schemaName)
	if err != nil {
		return nil, fmt.Errorf("query schema metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		tables  []schema.Table
		current *schema.Table
	)
	for rows.Next() {
		var (
			tableName     string
			columnName    string
			dataType      string
			isNullable    string
			tableComment  string
			estimatedRows int64
		)
		if err := rows.Scan(&tableName, &columnName, &dataType, &isNullable, &tableComment, &estimatedRows); err != nil {
			return nil, fmt.Errorf("scan schema metadata row: %w", err)
		}

		if current == nil || current.Name != tableName {
			tables = append(tables, schema.Table{
				Name:            tableName,
				Description:     tableComment,
				HighCardinality: estimatedRows >= s.highCardinalityRows,
				EstimatedRows:   estimatedRows,
			})
			current = &tables[len(tables)-1]
		}
		current.Columns = append(current.Columns, schema.Column{
			Name:     columnName,
			Type:     mapColumnType(dataType),
			Nullable: strings.EqualFold(isNullable, "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema metadata rows: %w", err)
	}
	return tables, nil
}

func mapColumnType(dataType string) schema.ColumnType {
	switch strings.ToLower(dataType) {
	case "text", "character varying", "character", "varchar", "char", "uuid":
		return schema.TypeText
	case "smallint", "integer", "bigint", "numeric", "decimal", "real", "double precision", "money":
		return schema.TypeNumber
	case "date", "timestamp without time zone", "timestamp with time zone", "time without time zone", "time with time zone", "interval":
		return schema.TypeDate
	case "boolean":
		return schema.TypeBoolean
	default:
		return schema.TypeOther
	}
}
