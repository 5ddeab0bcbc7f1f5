package itemstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"recload/internal/faults"
	"recload/internal/logging"
)

const itemColumns = `correlation_id, cataloger, o_cataloger_in, operation, settings_json,
    content_type, record_load_params_json, state, import_job_state, created_at, updated_at,
    handled_ids_json, rejected_ids_json, error_message, error_status, blob_size`

// CreateParams carries the caller-supplied attributes of a new work item.
type CreateParams struct {
	CorrelationID    string
	Cataloger        string
	OCatalogerIn     string
	Operation        Operation
	Settings         Settings
	ContentType      string
	RecordLoadParams json.RawMessage
}

// CreatePrio creates a priority work item with no streamed content. Prio
// items carry their payload in the message itself, so they skip UPLOADING
// and start in PENDING_VALIDATION.
func (s *Store) CreatePrio(ctx context.Context, params CreateParams) (*Item, error) {
	return s.create(ctx, params, StatePendingValidation)
}

// CreateBulk creates a bulk work item in UPLOADING and then streams its
// content into the blob bucket. A stream failure is propagated but the item
// row is kept, so callers observe an item whose upload failed rather than no
// item at all.
func (s *Store) CreateBulk(ctx context.Context, params CreateParams, content io.Reader) (*Item, error) {
	item, err := s.create(ctx, params, StateUploading)
	if err != nil {
		return nil, err
	}
	if content == nil {
		return item, nil
	}

	blobSize, err := s.blobs.Write(item.CorrelationID, content)
	if err != nil {
		return nil, faults.Wrap(faults.ErrUpstream, "itemstore", "createBulk", "store content", err)
	}
	if _, err := s.execWithRetry(ctx, `UPDATE work_items SET blob_size = ?, updated_at = ? WHERE correlation_id = ?`,
		blobSize, time.Now().UTC().Format(time.RFC3339Nano), item.CorrelationID); err != nil {
		return nil, faults.Wrap(faults.ErrUpstream, "itemstore", "createBulk", "record blob size", err)
	}
	return s.getByID(ensureContext(ctx), item.CorrelationID)
}

func (s *Store) create(ctx context.Context, params CreateParams, initial State) (*Item, error) {
	ctx = ensureContext(ctx)
	correlationID, err := SanitizeCorrelationID(params.CorrelationID)
	if err != nil {
		return nil, err
	}
	if _, ok := ParseOperation(string(params.Operation)); !ok {
		return nil, faults.Wrap(faults.ErrInvalidArgument, "itemstore", "create", "unknown operation "+string(params.Operation), nil)
	}

	settingsJSON, err := json.Marshal(params.Settings)
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	_, err = s.execWithRetry(ctx, `INSERT INTO work_items (
        correlation_id, cataloger, o_cataloger_in, operation, settings_json,
        content_type, record_load_params_json, state, created_at, updated_at, blob_size
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		correlationID,
		nullableString(params.Cataloger),
		nullableString(params.OCatalogerIn),
		string(params.Operation),
		string(settingsJSON),
		nullableString(params.ContentType),
		nullableString(string(params.RecordLoadParams)),
		string(initial),
		timestamp,
		timestamp,
		int64(0),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, faults.Wrap(faults.ErrInvalidArgument, "itemstore", "create", "duplicate correlation id "+correlationID, nil)
		}
		return nil, faults.Wrap(faults.ErrUpstream, "itemstore", "create", "insert work item", err)
	}

	s.logger.Info("work item created",
		logging.CorrelationID(correlationID),
		logging.String("operation", string(params.Operation)),
		logging.String("state", string(initial)))

	return s.getByID(ctx, correlationID)
}

// Query returns the items matching params, trimmed by the projection, in
// creation order.
func (s *Store) Query(ctx context.Context, params QueryParams, projection Projection) ([]*Item, error) {
	ctx = ensureContext(ctx)

	conditions := make([]string, 0, 4)
	args := make([]any, 0, 8)
	if params.CorrelationID != "" {
		conditions = append(conditions, "correlation_id = ?")
		args = append(args, params.CorrelationID)
	}
	if params.Cataloger != "" {
		conditions = append(conditions, "cataloger = ?")
		args = append(args, params.Cataloger)
	}
	if params.Operation != "" {
		if _, ok := ParseOperation(string(params.Operation)); !ok {
			return nil, faults.Wrap(faults.ErrInvalidArgument, "itemstore", "query", "unknown operation "+string(params.Operation), nil)
		}
		conditions = append(conditions, "operation = ?")
		args = append(args, string(params.Operation))
	}
	if len(params.States) > 0 {
		for _, state := range params.States {
			if _, ok := ParseState(string(state)); !ok {
				return nil, faults.Wrap(faults.ErrInvalidArgument, "itemstore", "query", "unknown state "+string(state), nil)
			}
			args = append(args, string(state))
		}
		conditions = append(conditions, fmt.Sprintf("state IN (%s)", makePlaceholders(len(params.States))))
	}

	query := "SELECT " + itemColumns + " FROM work_items"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at, correlation_id"
	if params.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", params.Limit)
		if params.Skip > 0 {
			query += fmt.Sprintf(" OFFSET %d", params.Skip)
		}
	} else if params.Skip > 0 {
		query += fmt.Sprintf(" LIMIT -1 OFFSET %d", params.Skip)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, faults.Wrap(faults.ErrUpstream, "itemstore", "query", "select work items", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, faults.Wrap(faults.ErrUpstream, "itemstore", "query", "scan work item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Wrap(faults.ErrUpstream, "itemstore", "query", "iterate work items", err)
	}

	for _, item := range items {
		if err := s.loadMessages(ctx, item); err != nil {
			return nil, err
		}
		projection.apply(item)
	}
	return items, nil
}

// QueryByID returns one item by correlation id. When checkModTime is set and
// the item has gone stale mid-flight, the staleness guard aborts it first and
// the aborted form is returned.
func (s *Store) QueryByID(ctx context.Context, correlationID string, checkModTime bool) (*Item, error) {
	ctx = ensureContext(ctx)
	correlationID, err := SanitizeCorrelationID(correlationID)
	if err != nil {
		return nil, err
	}
	if checkModTime {
		if _, err := s.CheckTimeout(ctx, correlationID); err != nil {
			return nil, err
		}
	}
	return s.getByID(ctx, correlationID)
}

// GetOne returns the oldest item matching operation and states, or (nil, nil)
// when none does. Callers poll with it, so an empty result is not an error.
func (s *Store) GetOne(ctx context.Context, operation Operation, states []State) (*Item, error) {
	items, err := s.Query(ctx, QueryParams{Operation: operation, States: states, Limit: 1}, Projection{All: true})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// Remove deletes an item, its messages and its blob. The blob goes first so a
// half-finished removal never leaves orphaned content behind a missing row.
func (s *Store) Remove(ctx context.Context, correlationID string) error {
	ctx = ensureContext(ctx)
	correlationID, err := SanitizeCorrelationID(correlationID)
	if err != nil {
		return err
	}
	if err := s.blobs.Remove(correlationID); err != nil {
		return faults.Wrap(faults.ErrUpstream, "itemstore", "remove", "remove content", err)
	}
	if _, err := s.execWithRetry(ctx, `DELETE FROM work_item_messages WHERE correlation_id = ?`, correlationID); err != nil {
		return faults.Wrap(faults.ErrUpstream, "itemstore", "remove", "delete messages", err)
	}
	res, err := s.execWithRetry(ctx, `DELETE FROM work_items WHERE correlation_id = ?`, correlationID)
	if err != nil {
		return faults.Wrap(faults.ErrUpstream, "itemstore", "remove", "delete work item", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return faults.Wrap(faults.ErrUpstream, "itemstore", "remove", "rows affected", err)
	}
	if affected == 0 {
		return faults.Wrap(faults.ErrNotFound, "itemstore", "remove", "no work item "+correlationID, nil)
	}
	s.logger.Info("work item removed", logging.CorrelationID(correlationID))
	return nil
}

// ReadContent opens the streamed content of an item. The item row must
// exist; a row without a blob reads as not found too.
func (s *Store) ReadContent(ctx context.Context, correlationID string) (io.ReadCloser, *Item, error) {
	ctx = ensureContext(ctx)
	correlationID, err := SanitizeCorrelationID(correlationID)
	if err != nil {
		return nil, nil, err
	}
	item, err := s.getByID(ctx, correlationID)
	if err != nil {
		return nil, nil, err
	}
	reader, err := s.blobs.Open(correlationID)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, faults.Wrap(faults.ErrNotFound, "itemstore", "readContent", "no content for "+correlationID, nil)
		}
		return nil, nil, faults.Wrap(faults.ErrUpstream, "itemstore", "readContent", "open content", err)
	}
	return reader, item, nil
}

// GetStream opens an item's stored content directly, without requiring the
// item row to exist. ReadContent is the row-checked variant.
func (s *Store) GetStream(correlationID string) (io.ReadCloser, error) {
	correlationID, err := SanitizeCorrelationID(correlationID)
	if err != nil {
		return nil, err
	}
	reader, err := s.blobs.Open(correlationID)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, faults.Wrap(faults.ErrNotFound, "itemstore", "getStream", "no content for "+correlationID, nil)
		}
		return nil, faults.Wrap(faults.ErrUpstream, "itemstore", "getStream", "open content", err)
	}
	return reader, nil
}

// RemoveContent drops an item's blob without touching the row.
func (s *Store) RemoveContent(ctx context.Context, correlationID string) error {
	correlationID, err := SanitizeCorrelationID(correlationID)
	if err != nil {
		return err
	}
	if _, err := s.getByID(ensureContext(ctx), correlationID); err != nil {
		return err
	}
	if err := s.blobs.Remove(correlationID); err != nil {
		return faults.Wrap(faults.ErrUpstream, "itemstore", "removeContent", "remove content", err)
	}
	if _, err := s.execWithRetry(ctx, `UPDATE work_items SET blob_size = 0, updated_at = ? WHERE correlation_id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), correlationID); err != nil {
		return faults.Wrap(faults.ErrUpstream, "itemstore", "removeContent", "reset blob size", err)
	}
	return nil
}

// Stats summarizes the store for diagnostics.
type Stats struct {
	Total    int
	ByState  map[State]int
	BlobSize int64
}

// GetStats counts items per state and sums stored content.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	stats := Stats{ByState: make(map[State]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*), COALESCE(SUM(blob_size), 0) FROM work_items GROUP BY state`)
	if err != nil {
		return Stats{}, faults.Wrap(faults.ErrUpstream, "itemstore", "stats", "aggregate", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			state string
			count int
			size  int64
		)
		if err := rows.Scan(&state, &count, &size); err != nil {
			return Stats{}, faults.Wrap(faults.ErrUpstream, "itemstore", "stats", "scan", err)
		}
		stats.ByState[State(state)] = count
		stats.Total += count
		stats.BlobSize += size
	}
	if err := rows.Err(); err != nil {
		return Stats{}, faults.Wrap(faults.ErrUpstream, "itemstore", "stats", "iterate", err)
	}
	return stats, nil
}

// CheckHealth verifies the database answers a trivial query.
func (s *Store) CheckHealth(ctx context.Context) error {
	ctx = ensureContext(ctx)
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return faults.Wrap(faults.ErrUpstream, "itemstore", "health", "ping", err)
	}
	return nil
}

func (s *Store) getByID(ctx context.Context, correlationID string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM work_items WHERE correlation_id = ?", correlationID)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, faults.Wrap(faults.ErrNotFound, "itemstore", "get", "no work item "+correlationID, nil)
		}
		return nil, faults.Wrap(faults.ErrUpstream, "itemstore", "get", "scan work item", err)
	}
	if err := s.loadMessages(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Store) loadMessages(ctx context.Context, item *Item) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT time, level, text FROM work_item_messages WHERE correlation_id = ? AND field = ? ORDER BY seq`,
		item.CorrelationID, messageFieldDefault)
	if err != nil {
		return faults.Wrap(faults.ErrUpstream, "itemstore", "get", "select messages", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			timeValue string
			level     sql.NullString
			text      string
		)
		if err := rows.Scan(&timeValue, &level, &text); err != nil {
			return faults.Wrap(faults.ErrUpstream, "itemstore", "get", "scan message", err)
		}
		parsed, err := parseTimeString(timeValue)
		if err != nil {
			return faults.Wrap(faults.ErrUpstream, "itemstore", "get", "parse message time", err)
		}
		item.Messages = append(item.Messages, Message{Time: parsed, Level: level.String, Text: text})
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var (
		item             Item
		cataloger        sql.NullString
		oCatalogerIn     sql.NullString
		settingsJSON     string
		contentType      sql.NullString
		recordLoadParams sql.NullString
		importJobState   sql.NullString
		createdAt        string
		updatedAt        string
		handledJSON      string
		rejectedJSON     string
		errorMessage     sql.NullString
	)

	if err := row.Scan(
		&item.CorrelationID,
		&cataloger,
		&oCatalogerIn,
		(*string)(&item.Operation),
		&settingsJSON,
		&contentType,
		&recordLoadParams,
		(*string)(&item.State),
		&importJobState,
		&createdAt,
		&updatedAt,
		&handledJSON,
		&rejectedJSON,
		&errorMessage,
		&item.ErrorStatus,
		&item.BlobSize,
	); err != nil {
		return nil, err
	}

	item.Cataloger = cataloger.String
	item.OCatalogerIn = oCatalogerIn.String
	item.ContentType = contentType.String
	item.ImportJobState = ImportJobState(importJobState.String)
	item.ErrorMessage = errorMessage.String
	if recordLoadParams.Valid && recordLoadParams.String != "" {
		item.RecordLoadParams = json.RawMessage(recordLoadParams.String)
	}

	if err := json.Unmarshal([]byte(settingsJSON), &item.Settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if err := json.Unmarshal([]byte(handledJSON), &item.HandledIDs); err != nil {
		return nil, fmt.Errorf("decode handled ids: %w", err)
	}
	if err := json.Unmarshal([]byte(rejectedJSON), &item.RejectedIDs); err != nil {
		return nil, fmt.Errorf("decode rejected ids: %w", err)
	}

	var err error
	if item.CreationTime, err = parseTimeString(createdAt); err != nil {
		return nil, fmt.Errorf("parse creation time: %w", err)
	}
	if item.ModificationTime, err = parseTimeString(updatedAt); err != nil {
		return nil, fmt.Errorf("parse modification time: %w", err)
	}
	return &item, nil
}
