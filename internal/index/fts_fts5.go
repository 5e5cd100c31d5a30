//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS symbols_fts USING fts5(
			path UNINDEXED,
			name,
			kind UNINDEXED,
			line UNINDEXED,
			col UNINDEXED,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, path string, symbols []Symbol) error {
	stmt, err := tx.Prepare(`INSERT INTO symbols_fts (path, name, kind, line, col) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare fts insert: %w", err)
	}
	defer stmt.Close()
	for _, s := range symbols {
		if _, err := stmt.Exec(path, s.Name, s.Kind, s.Line, s.Col); err != nil {
			return fmt.Errorf("index: upsert fts: %w", err)
		}
	}
	return nil
}

func ftsDelete(tx *sql.Tx, path string) {
	_, _ = tx.Exec(`DELETE FROM symbols_fts WHERE path = ?`, path)
}

// Search performs an FTS5 prefix search over symbol names.
func (db *DB) Search(query string, limit int) ([]Symbol, error) {
	if limit <= 0 {
		limit = 50
	}
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	rows, err := db.conn.Query(`
		SELECT path, name, kind, line, col
		FROM symbols_fts
		WHERE symbols_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, match, limit)
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

// ftsQuery quotes each term and adds a prefix wildcard so partial symbol
// names match while FTS5 operators in user input stay inert.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		terms = append(terms, `"`+f+`"*`)
	}
	return strings.Join(terms, " ")
}
