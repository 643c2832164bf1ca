package db

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// SchemaFor renders the price table DDL for the given table name.
func SchemaFor(table string) string {
	r := strings.NewReplacer(
		"{{table}}", pgx.Identifier{table}.Sanitize(),
		"{{index}}", pgx.Identifier{table + "_ts_idx"}.Sanitize(),
	)
	return r.Replace(schemaSQL)
}

// Migrate creates the price table if it does not exist.
func Migrate(ctx context.Context, p *pgxpool.Pool, table string) error {
	if _, err := p.Exec(ctx, SchemaFor(table)); err != nil {
		return fmt.Errorf("migrate %s: %w", table, err)
	}
	return nil
}
