package database

import (
	"context"
	"fmt"

	schemasql "github.com/fhmmla/oee-be/pkg/database/sql"
	"github.com/fhmmla/oee-be/pkg/logging"
)

// ApplySchema executes the embedded schema files in lexical order. All
// statements are idempotent, so re-running on an existing database is safe.
func ApplySchema(ctx context.Context, db PostgresConn, logger logging.Logger) error {
	entries, err := schemasql.Content.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("failed to read embedded schema: %w", err)
	}

	for _, entry := range entries {
		content, err := schemasql.Content.ReadFile("schema/" + entry.Name())
		if err != nil {
			return fmt.Errorf("failed to read schema file %s: %w", entry.Name(), err)
		}
		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to apply schema file %s: %w", entry.Name(), err)
		}
		logger.WithField("file", entry.Name()).Info("Schema applied")
	}
	return nil
}
