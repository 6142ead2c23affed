package database

import (
	"fmt"
	"io/fs"
	"path"
	"sort"

	dbsql "bursar/pkg/database/sql"
	"bursar/pkg/logging"
)

// ApplySchema executes the embedded schema files against db. Every
// statement in the schema is written to be re-runnable, so this is safe on
// every boot.
func ApplySchema(db PostgresConn, logger logging.Logger) error {
	entries, err := fs.ReadDir(dbsql.Content, "schema")
	if err != nil {
		return fmt.Errorf("failed to read embedded schema: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && path.Ext(e.Name()) == ".sql" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		content, err := dbsql.Content.ReadFile(path.Join("schema", name))
		if err != nil {
			return fmt.Errorf("failed to read schema file %s: %w", name, err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to apply schema file %s: %w", name, err)
		}
		logger.WithField("file", name).Info("Applied schema file")
	}

	return nil
}
