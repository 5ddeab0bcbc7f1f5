package logstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"recload/internal/config"
	"recload/internal/faults"
	"recload/internal/logging"
)

// Store archives per-record processing artifacts so an import can be audited
// after its work item is gone. Protected items survive bulk expiry.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS log_items (
        correlation_id TEXT NOT NULL,
        item_type TEXT NOT NULL,
        blob_sequence INTEGER NOT NULL,
        cataloger TEXT,
        created_at TEXT NOT NULL,
        protected INTEGER NOT NULL DEFAULT 0,
        payload_json TEXT,
        PRIMARY KEY (correlation_id, item_type, blob_sequence)
    )`,
	`CREATE INDEX IF NOT EXISTS idx_log_items_id ON log_items (correlation_id, blob_sequence)`,
}

// Open initializes or connects to the log database in the shared data dir.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(cfg.Store.DataDir, "logs.db"))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout = 5000"} {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	for _, stmt := range schemaStatements {
		if _, execErr := db.Exec(stmt); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply schema: %w", execErr)
		}
	}

	return &Store{db: db, logger: logging.NewComponentLogger(logger, "logstore")}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Add archives one log item. Re-adding the same (id, type, sequence) replaces
// the payload so retried processing stays idempotent.
func (s *Store) Add(ctx context.Context, item LogItem) (*LogItem, error) {
	ctx = ensureContext(ctx)
	if item.CorrelationID == "" {
		return nil, faults.Wrap(faults.ErrInvalidArgument, "logstore", "add", "empty correlation id", nil)
	}
	if _, ok := ParseItemType(string(item.ItemType)); !ok {
		return nil, faults.Wrap(faults.ErrInvalidArgument, "logstore", "add", "unknown item type "+string(item.ItemType), nil)
	}
	if item.BlobSequence < 0 {
		return nil, faults.Wrap(faults.ErrInvalidArgument, "logstore", "add", "negative blob sequence", nil)
	}

	when := item.CreationTime
	if when.IsZero() {
		when = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO log_items (correlation_id, item_type, blob_sequence, cataloger, created_at, protected, payload_json)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (correlation_id, item_type, blob_sequence)
         DO UPDATE SET payload_json = excluded.payload_json, created_at = excluded.created_at`,
		item.CorrelationID, string(item.ItemType), item.BlobSequence,
		nullableString(item.Cataloger), when.Format(time.RFC3339Nano),
		boolToInt(item.Protected), nullableString(string(item.Payload)))
	if err != nil {
		return nil, faults.Wrap(faults.ErrUpstream, "logstore", "add", "insert log item", err)
	}

	stored := item
	stored.CreationTime = when
	s.logger.Debug("log item archived",
		logging.CorrelationID(item.CorrelationID),
		logging.String("itemType", string(item.ItemType)),
		logging.Int("blobSequence", item.BlobSequence))
	return &stored, nil
}

// Query returns the log items matching params ordered by sequence.
func (s *Store) Query(ctx context.Context, params QueryParams) ([]*LogItem, error) {
	ctx = ensureContext(ctx)

	query := `SELECT correlation_id, item_type, blob_sequence, cataloger, created_at, protected, payload_json FROM log_items`
	conditions, args := buildConditions(params)
	if conditions != "" {
		query += " WHERE " + conditions
	}
	query += " ORDER BY correlation_id, item_type, blob_sequence"
	if params.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", params.Limit)
		if params.Skip > 0 {
			query += fmt.Sprintf(" OFFSET %d", params.Skip)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, faults.Wrap(faults.ErrUpstream, "logstore", "query", "select log items", err)
	}
	defer rows.Close()

	var items []*LogItem
	for rows.Next() {
		item, err := scanLogItem(rows)
		if err != nil {
			return nil, faults.Wrap(faults.ErrUpstream, "logstore", "query", "scan log item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Wrap(faults.ErrUpstream, "logstore", "query", "iterate log items", err)
	}
	return items, nil
}

// Catalog lists which correlation ids have archived items and of which
// types, oldest first.
func (s *Store) Catalog(ctx context.Context) ([]*CatalogEntry, error) {
	ctx = ensureContext(ctx)

	rows, err := s.db.QueryContext(ctx,
		`SELECT correlation_id, COALESCE(cataloger, ''), item_type, COUNT(*), MIN(created_at)
         FROM log_items GROUP BY correlation_id, item_type ORDER BY MIN(created_at), correlation_id`)
	if err != nil {
		return nil, faults.Wrap(faults.ErrUpstream, "logstore", "catalog", "aggregate", err)
	}
	defer rows.Close()

	byID := make(map[string]*CatalogEntry)
	var ordered []*CatalogEntry
	for rows.Next() {
		var (
			correlationID string
			cataloger     string
			itemType      string
			count         int
			firstSeen     string
		)
		if err := rows.Scan(&correlationID, &cataloger, &itemType, &count, &firstSeen); err != nil {
			return nil, faults.Wrap(faults.ErrUpstream, "logstore", "catalog", "scan", err)
		}
		entry, ok := byID[correlationID]
		if !ok {
			parsed, err := parseTime(firstSeen)
			if err != nil {
				return nil, faults.Wrap(faults.ErrUpstream, "logstore", "catalog", "parse time", err)
			}
			entry = &CatalogEntry{CorrelationID: correlationID, Cataloger: cataloger, FirstSeen: parsed}
			byID[correlationID] = entry
			ordered = append(ordered, entry)
		}
		entry.ItemTypes = append(entry.ItemTypes, ItemType(itemType))
		entry.Count += count
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Wrap(faults.ErrUpstream, "logstore", "catalog", "iterate", err)
	}
	return ordered, nil
}

// Protect flips the protected flag on a correlation id's items: protected
// items become unprotected and vice versa. With a sequence it touches only
// that sequence; without, the whole id. It returns the number of items
// flipped.
func (s *Store) Protect(ctx context.Context, correlationID string, blobSequence *int) (int, error) {
	ctx = ensureContext(ctx)
	if correlationID == "" {
		return 0, faults.Wrap(faults.ErrInvalidArgument, "logstore", "protect", "empty correlation id", nil)
	}

	query := `UPDATE log_items SET protected = 1 - protected WHERE correlation_id = ?`
	args := []any{correlationID}
	if blobSequence != nil {
		query += ` AND blob_sequence = ?`
		args = append(args, *blobSequence)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, faults.Wrap(faults.ErrUpstream, "logstore", "protect", "update", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, faults.Wrap(faults.ErrUpstream, "logstore", "protect", "rows affected", err)
	}
	if affected == 0 {
		return 0, faults.Wrap(faults.ErrNotFound, "logstore", "protect", "no log items for "+correlationID, nil)
	}
	return int(affected), nil
}

// Remove deletes the matching log items, skipping protected ones unless
// force is set. It returns the number of items removed.
func (s *Store) Remove(ctx context.Context, params QueryParams, force bool) (int, error) {
	ctx = ensureContext(ctx)
	if params.CorrelationID == "" {
		return 0, faults.Wrap(faults.ErrInvalidArgument, "logstore", "remove", "empty correlation id", nil)
	}

	query := `DELETE FROM log_items`
	conditions, args := buildConditions(params)
	query += " WHERE " + conditions
	if !force {
		query += " AND protected = 0"
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, faults.Wrap(faults.ErrUpstream, "logstore", "remove", "delete", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, faults.Wrap(faults.ErrUpstream, "logstore", "remove", "rows affected", err)
	}
	return int(affected), nil
}

// Expire deletes unprotected items of a correlation id within an inclusive
// sequence range. Both bounds must be positive integers.
func (s *Store) Expire(ctx context.Context, correlationID string, sequenceStart, sequenceEnd int, force bool) (int, error) {
	ctx = ensureContext(ctx)
	if correlationID == "" {
		return 0, faults.Wrap(faults.ErrInvalidArgument, "logstore", "expire", "empty correlation id", nil)
	}
	if sequenceStart <= 0 || sequenceEnd <= 0 {
		return 0, faults.Wrap(faults.ErrUnsupported, "logstore", "expire",
			fmt.Sprintf("sequence bounds must be positive, got %d..%d", sequenceStart, sequenceEnd), nil)
	}
	if sequenceEnd < sequenceStart {
		return 0, faults.Wrap(faults.ErrInvalidArgument, "logstore", "expire",
			fmt.Sprintf("inverted sequence range %d..%d", sequenceStart, sequenceEnd), nil)
	}

	query := `DELETE FROM log_items WHERE correlation_id = ? AND blob_sequence BETWEEN ? AND ?`
	args := []any{correlationID, sequenceStart, sequenceEnd}
	if !force {
		query += ` AND protected = 0`
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, faults.Wrap(faults.ErrUpstream, "logstore", "expire", "delete", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, faults.Wrap(faults.ErrUpstream, "logstore", "expire", "rows affected", err)
	}

	s.logger.Info("log items expired",
		logging.CorrelationID(correlationID),
		logging.Int("removed", int(affected)))
	return int(affected), nil
}

func buildConditions(params QueryParams) (string, []any) {
	var (
		conditions string
		args       []any
	)
	add := func(cond string, value any) {
		if conditions != "" {
			conditions += " AND "
		}
		conditions += cond
		args = append(args, value)
	}
	if params.CorrelationID != "" {
		add("correlation_id = ?", params.CorrelationID)
	}
	if params.ItemType != "" {
		add("item_type = ?", string(params.ItemType))
	}
	if params.BlobSequence != nil {
		add("blob_sequence = ?", *params.BlobSequence)
	}
	return conditions, args
}

func scanLogItem(rows *sql.Rows) (*LogItem, error) {
	var (
		item      LogItem
		cataloger sql.NullString
		createdAt string
		protected int
		payload   sql.NullString
	)
	if err := rows.Scan(&item.CorrelationID, (*string)(&item.ItemType), &item.BlobSequence,
		&cataloger, &createdAt, &protected, &payload); err != nil {
		return nil, err
	}
	item.Cataloger = cataloger.String
	item.Protected = protected != 0
	if payload.Valid && payload.String != "" {
		item.Payload = []byte(payload.String)
	}
	parsed, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	item.CreationTime = parsed
	return &item, nil
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty time")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
