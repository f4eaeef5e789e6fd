package eod

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// requiredTables are the tables the pipeline reads and writes. Checked once
// at startup, not per call.
var requiredTables = [][2]string{
	{"canon", "runs"},
	{"canon", "raw_bars"},
	{"canon", "canonical_bars"},
	{"data", "daily_prices"},
	{"data", "tickers"},
}

// CheckSchema probes information_schema for the required tables and returns
// an error naming every missing one.
func CheckSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_schema IN ('canon', 'data')
	`

	rows, err := pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("probe schema: %w", err)
	}
	defer rows.Close()

	found := make(map[string]bool, len(requiredTables))
	for rows.Next() {
		var schema, name string
		if err := rows.Scan(&schema, &name); err != nil {
			return fmt.Errorf("scan schema probe: %w", err)
		}
		found[schema+"."+name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("probe schema: %w", err)
	}

	var missing []string
	for _, t := range requiredTables {
		qualified := t[0] + "." + t[1]
		if !found[qualified] {
			missing = append(missing, qualified)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tables: %s", strings.Join(missing, ", "))
	}
	return nil
}
