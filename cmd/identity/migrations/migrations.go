// Package migrations embeds the account schema and applies it with goose.
//
// The SQL is not schema-qualified: Up runs it with search_path pinned to the
// target schema, so one migration set serves the default schema and
// throwaway test schemas alike.
package migrations

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var FS embed.FS

// goose configuration is package-global.
var mu sync.Mutex

// Up creates schema if needed and applies every pending migration inside it.
// The goose version table lives in the same schema. It returns the resulting
// schema version.
func Up(ctx context.Context, pool *pgxpool.Pool, schema string) (int64, error) {
	schema = strings.TrimSpace(schema)
	if pool == nil || schema == "" {
		return 0, errors.New("migrations: nil pool or empty schema")
	}
	ident := pgx.Identifier{schema}.Sanitize()

	if _, err := pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+ident); err != nil {
		return 0, fmt.Errorf("migrations: create schema: %w", err)
	}

	cc := pool.Config().ConnConfig.Copy()
	if cc.RuntimeParams == nil {
		cc.RuntimeParams = map[string]string{}
	}
	cc.RuntimeParams["search_path"] = ident
	db := stdlib.OpenDB(*cc)
	defer func() { _ = db.Close() }()

	mu.Lock()
	defer mu.Unlock()

	goose.SetBaseFS(FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("pgx"); err != nil {
		return 0, fmt.Errorf("migrations: dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return 0, fmt.Errorf("migrations: up: %w", err)
	}
	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("migrations: version: %w", err)
	}
	return version, nil
}
