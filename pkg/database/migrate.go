package database

import (
	"context"
	"fmt"
	"io/fs"
	"sort"

	schemafs "github.com/rashenal/navigator/pkg/database/sql"
	"github.com/rashenal/navigator/pkg/logging"
)

// ApplySchema executes the embedded schema files against the database in
// lexical order. Every statement is written to be idempotent, so this runs
// at each service start.
func ApplySchema(ctx context.Context, db PostgresConn, logger logging.Logger) error {
	files, err := fs.Glob(schemafs.Content, "schema/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list schema files: %w", err)
	}
	sort.Strings(files)

	for _, name := range files {
		content, err := fs.ReadFile(schemafs.Content, name)
		if err != nil {
			return fmt.Errorf("failed to read schema file %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to apply schema file %s: %w", name, err)
		}
		logger.WithField("file", name).Debug("Schema file applied")
	}

	logger.WithField("files", len(files)).Info("Database schema up to date")
	return nil
}
