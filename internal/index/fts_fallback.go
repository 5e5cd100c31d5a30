//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses a LIKE fallback on the symbols table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _ string, _ []Symbol) error {
	// Symbols are already stored in the symbols table; nothing extra to do.
	return nil
}

func ftsDelete(_ *sql.Tx, _ string) {}

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
func (db *DB) Search(query string, limit int) ([]Symbol, error) {
	if limit <= 0 {
		limit = 50
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT path, name, kind, line, col
		FROM symbols
		WHERE name LIKE ? OR path LIKE ?
		ORDER BY length(name), name
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []Symbol
	for rows.Next() {
		var s Symbol
		if err := rows.Scan(&s.Path, &s.Name, &s.Kind, &s.Line, &s.Col); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
