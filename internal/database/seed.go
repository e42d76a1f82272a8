package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// DefaultCategories are seeded when SEED_CATEGORIES is not set.
var DefaultCategories = []string{"Cat 1", "Cat 2", "Cat 3"}

// SeedCategories inserts every name that is not yet present.  Existing
// rows are left untouched, so running it on every start is safe.
func SeedCategories(ctx context.Context, db *sql.DB, names []string) (int, error) {
	inserted := 0
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		res, err := db.ExecContext(ctx, "INSERT IGNORE INTO event_categories (name) VALUES (?)", name)
		if err != nil {
			return inserted, fmt.Errorf("seed category %q: %w", name, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, nil
}
