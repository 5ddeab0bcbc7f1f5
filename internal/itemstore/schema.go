package itemstore

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS work_items (
        correlation_id TEXT PRIMARY KEY,
        cataloger TEXT,
        o_cataloger_in TEXT,
        operation TEXT NOT NULL,
        settings_json TEXT NOT NULL DEFAULT '{}',
        content_type TEXT,
        record_load_params_json TEXT,
        state TEXT NOT NULL,
        import_job_state TEXT,
        created_at TEXT NOT NULL,
        updated_at TEXT NOT NULL,
        handled_ids_json TEXT NOT NULL DEFAULT '[]',
        rejected_ids_json TEXT NOT NULL DEFAULT '[]',
        error_message TEXT,
        error_status INTEGER NOT NULL DEFAULT 0,
        blob_size INTEGER NOT NULL DEFAULT 0
    )`,
	`CREATE INDEX IF NOT EXISTS idx_work_items_state ON work_items (state, created_at)`,
	`CREATE TABLE IF NOT EXISTS work_item_messages (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        correlation_id TEXT NOT NULL,
        field TEXT NOT NULL DEFAULT 'messages',
        time TEXT NOT NULL,
        level TEXT,
        text TEXT NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_work_item_messages_id ON work_item_messages (correlation_id, field, seq)`,
}

func (s *Store) initSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
