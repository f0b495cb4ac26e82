package db

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrEmptyDSN = errors.New("empty DSN")

// WithDBName returns a DSN identical to the input but with the database path replaced.
// Supports postgres:// and postgresql:// schemes; a DSN without a scheme is
// treated as postgres://.
func WithDBName(dsn, database string) (string, error) {
	if dsn == "" {
		return "", ErrEmptyDSN
	}
	if !strings.Contains(dsn, "://") {
		dsn = "postgres://" + dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse DSN: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("unsupported DSN scheme %q", u.Scheme)
	}
	u.Path = "/" + strings.TrimPrefix(database, "/")
	return u.String(), nil
}
