package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ResolveLatestImportDBName returns the db_name with the most recent imported_at
// from public.latest_successful_imports where db_name ILIKE '%city%'.
func ResolveLatestImportDBName(ctx context.Context, meta *sql.DB, city string) (string, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return "", fmt.Errorf("city is required")
	}
	// Fully qualified to the public schema (assumes we are connected to the 'postgres' database)
	q := `
SELECT db_name
FROM public.latest_successful_imports
WHERE db_name ILIKE '%' || $1 || '%'
ORDER BY imported_at DESC
LIMIT 1`
	var dbName sql.NullString
	if err := meta.QueryRowContext(ctx, q, city).Scan(&dbName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("no database found for city like %q", city)
		}
		return "", err
	}
	if !dbName.Valid || dbName.String == "" {
		return "", fmt.Errorf("empty db_name for city like %q", city)
	}
	return dbName.String, nil
}

// ConnectCity opens the GTFS import database for city. With an empty city
// it opens baseDSN as is. The returned name is the resolved database, or
// empty when no resolution happened.
func ConnectCity(ctx context.Context, baseDSN, city string) (*sql.DB, string, error) {
	finalDSN := baseDSN
	var name string
	if city != "" {
		// Connect to the cluster's 'postgres' database to read latest_successful_imports
		rootDSN, err := WithDBName(baseDSN, "postgres")
		if err != nil {
			return nil, "", fmt.Errorf("invalid base DSN: %w", err)
		}
		meta, err := Open(rootDSN)
		if err != nil {
			return nil, "", fmt.Errorf("db open (meta): %w", err)
		}
		defer meta.Close()
		if err := Ping(ctx, meta); err != nil {
			return nil, "", fmt.Errorf("db ping (meta): %w", err)
		}
		name, err = ResolveLatestImportDBName(ctx, meta, city)
		if err != nil {
			return nil, "", fmt.Errorf("resolve latest import for city %q: %w", city, err)
		}
		finalDSN, err = WithDBName(baseDSN, name)
		if err != nil {
			return nil, "", fmt.Errorf("compose DSN: %w", err)
		}
	}
	conn, err := Open(finalDSN)
	if err != nil {
		return nil, "", fmt.Errorf("db open: %w", err)
	}
	if err := Ping(ctx, conn); err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("db ping: %w", err)
	}
	return conn, name, nil
}
