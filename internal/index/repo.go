package index

import "fmt"

// Symbol is one workspace symbol row.
type Symbol struct {
	Path string
	Name string
	Kind string
	Line int
	Col  int
}

// ReplaceDoc replaces every symbol of a document within a transaction.
func (db *DB) ReplaceDoc(path string, symbols []Symbol) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM symbols WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: clear doc: %w", err)
	}
	ftsDelete(tx, path)

	if len(symbols) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO symbols (path, name, kind, line, col) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare insert: %w", err)
		}
		defer stmt.Close()
		for _, s := range symbols {
			if _, err := stmt.Exec(path, s.Name, s.Kind, s.Line, s.Col); err != nil {
				return fmt.Errorf("index: insert symbol: %w", err)
			}
		}
		if err := ftsUpsert(tx, path, symbols); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// DeleteDoc removes every symbol of a document.
func (db *DB) DeleteDoc(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	if _, err := tx.Exec(`DELETE FROM symbols WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete doc: %w", err)
	}
	return tx.Commit()
}
