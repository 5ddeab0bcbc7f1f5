package itemstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"recload/internal/faults"
	"recload/internal/logging"
)

const messageFieldDefault = "messages"

// PushIDs appends handled and rejected record ids to an item. The append is
// atomic against concurrent writers, so two pushes never lose each other.
func (s *Store) PushIDs(ctx context.Context, correlationID string, handled, rejected []string) (*Item, error) {
	ctx = ensureContext(ctx)
	correlationID, err := SanitizeCorrelationID(correlationID)
	if err != nil {
		return nil, err
	}
	if len(handled) == 0 && len(rejected) == 0 {
		return s.getByID(ctx, correlationID)
	}

	err = s.withImmediateTx(ctx, func(tx *sql.Tx) error {
		var handledJSON, rejectedJSON string
		row := tx.QueryRowContext(ctx,
			`SELECT handled_ids_json, rejected_ids_json FROM work_items WHERE correlation_id = ?`, correlationID)
		if err := row.Scan(&handledJSON, &rejectedJSON); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return faults.Wrap(faults.ErrNotFound, "itemstore", "pushIds", "no work item "+correlationID, nil)
			}
			return err
		}

		var handledIDs, rejectedIDs []string
		if err := json.Unmarshal([]byte(handledJSON), &handledIDs); err != nil {
			return fmt.Errorf("decode handled ids: %w", err)
		}
		if err := json.Unmarshal([]byte(rejectedJSON), &rejectedIDs); err != nil {
			return fmt.Errorf("decode rejected ids: %w", err)
		}
		handledIDs = append(handledIDs, handled...)
		rejectedIDs = append(rejectedIDs, rejected...)

		newHandled, err := json.Marshal(handledIDs)
		if err != nil {
			return fmt.Errorf("encode handled ids: %w", err)
		}
		newRejected, err := json.Marshal(rejectedIDs)
		if err != nil {
			return fmt.Errorf("encode rejected ids: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE work_items SET handled_ids_json = ?, rejected_ids_json = ?, updated_at = ? WHERE correlation_id = ?`,
			string(newHandled), string(newRejected), time.Now().UTC().Format(time.RFC3339Nano), correlationID)
		return err
	})
	if err != nil {
		if faults.Classified(err) {
			return nil, err
		}
		return nil, faults.Wrap(faults.ErrUpstream, "itemstore", "pushIds", "append ids", err)
	}

	s.logger.Debug("ids pushed",
		logging.CorrelationID(correlationID),
		logging.Int("handled", len(handled)),
		logging.Int("rejected", len(rejected)))
	return s.getByID(ctx, correlationID)
}

// PushMessages appends log messages to an item. The field defaults to
// "messages"; the child table keeps the append atomic and ordered.
func (s *Store) PushMessages(ctx context.Context, correlationID, field string, messages []Message) (*Item, error) {
	ctx = ensureContext(ctx)
	correlationID, err := SanitizeCorrelationID(correlationID)
	if err != nil {
		return nil, err
	}
	if field == "" {
		field = messageFieldDefault
	}
	if len(messages) == 0 {
		return s.getByID(ctx, correlationID)
	}

	err = s.withImmediateTx(ctx, func(tx *sql.Tx) error {
		var exists int
		row := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM work_items WHERE correlation_id = ?`, correlationID)
		if err := row.Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return faults.Wrap(faults.ErrNotFound, "itemstore", "pushMessages", "no work item "+correlationID, nil)
		}

		for _, msg := range messages {
			when := msg.Time
			if when.IsZero() {
				when = time.Now().UTC()
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO work_item_messages (correlation_id, field, time, level, text) VALUES (?, ?, ?, ?, ?)`,
				correlationID, field, when.UTC().Format(time.RFC3339Nano), nullableString(msg.Level), msg.Text); err != nil {
				return err
			}
		}

		_, err := tx.ExecContext(ctx, `UPDATE work_items SET updated_at = ? WHERE correlation_id = ?`,
			time.Now().UTC().Format(time.RFC3339Nano), correlationID)
		return err
	})
	if err != nil {
		if faults.Classified(err) {
			return nil, err
		}
		return nil, faults.Wrap(faults.ErrUpstream, "itemstore", "pushMessages", "append messages", err)
	}
	return s.getByID(ctx, correlationID)
}

// StateChange carries the optional error outcome recorded with a state.
type StateChange struct {
	State        State
	ErrorMessage string
	ErrorStatus  int
	ImportJob    ImportJobState
}

// SetState moves an item to a new state unconditionally and returns its
// updated form. The error outcome is an unconditional set too: a change
// without one clears any earlier error, so a retried item that completes
// does not keep a stale status.
func (s *Store) SetState(ctx context.Context, correlationID string, change StateChange) (*Item, error) {
	ctx = ensureContext(ctx)
	correlationID, err := SanitizeCorrelationID(correlationID)
	if err != nil {
		return nil, err
	}
	if _, ok := ParseState(string(change.State)); !ok {
		return nil, faults.Wrap(faults.ErrInvalidArgument, "itemstore", "setState", "unknown state "+string(change.State), nil)
	}

	res, err := s.execWithRetry(ctx,
		`UPDATE work_items SET state = ?, import_job_state = COALESCE(?, import_job_state),
            error_message = ?, error_status = ?, updated_at = ?
         WHERE correlation_id = ?`,
		string(change.State),
		nullableString(string(change.ImportJob)),
		nullableString(change.ErrorMessage),
		change.ErrorStatus,
		time.Now().UTC().Format(time.RFC3339Nano),
		correlationID)
	if err != nil {
		return nil, faults.Wrap(faults.ErrUpstream, "itemstore", "setState", "update state", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, faults.Wrap(faults.ErrUpstream, "itemstore", "setState", "rows affected", err)
	}
	if affected == 0 {
		return nil, faults.Wrap(faults.ErrNotFound, "itemstore", "setState", "no work item "+correlationID, nil)
	}

	s.logger.Info("state changed",
		logging.CorrelationID(correlationID),
		logging.String("state", string(change.State)))
	return s.getByID(ctx, correlationID)
}

// CheckAndSetState runs the staleness guard and, only when the item is still
// fresh, applies the requested change. It reports false without error when
// the guard aborted the item or it was already failed or aborted; the change
// is not applied in that case.
//
// The guard and the update are separate statements, so a writer between them
// can still slip in. That window is the documented benign race: the change
// is applied regardless, and every transition routed through here moves the
// lifecycle forward only.
func (s *Store) CheckAndSetState(ctx context.Context, correlationID string, change StateChange) (bool, error) {
	ctx = ensureContext(ctx)
	correlationID, err := SanitizeCorrelationID(correlationID)
	if err != nil {
		return false, err
	}

	fresh, err := s.CheckTimeout(ctx, correlationID)
	if err != nil {
		return false, err
	}
	if !fresh {
		return false, nil
	}

	if _, err := s.SetState(ctx, correlationID, change); err != nil {
		return false, err
	}
	return true, nil
}

// CheckTimeout applies the staleness guard to one item. An item in ERROR or
// ABORT reports false. An in-flight item untouched for longer than the
// staleness window is aborted with status 408 and reports false. Anything
// else reports true.
func (s *Store) CheckTimeout(ctx context.Context, correlationID string) (bool, error) {
	ctx = ensureContext(ctx)
	correlationID, err := SanitizeCorrelationID(correlationID)
	if err != nil {
		return false, err
	}

	item, err := s.getByID(ctx, correlationID)
	if err != nil {
		return false, err
	}

	switch item.State {
	case StateError, StateAbort:
		return false, nil
	case StateDone:
		return true, nil
	}

	age := time.Since(item.ModificationTime)
	if age <= s.stale {
		return true, nil
	}

	message := fmt.Sprintf("Stuck in state %s for %s, aborting", item.State, age.Round(time.Second))
	if _, err := s.PushMessages(ctx, correlationID, messageFieldDefault, []Message{{
		Time:  time.Now().UTC(),
		Level: "warn",
		Text:  message,
	}}); err != nil {
		return false, err
	}
	if _, err := s.SetState(ctx, correlationID, StateChange{
		State:        StateAbort,
		ErrorMessage: message,
		ErrorStatus:  faults.StatusFor(faults.ErrTimeout),
	}); err != nil {
		return false, err
	}

	s.logger.Warn("stale work item aborted",
		logging.CorrelationID(correlationID),
		logging.String("state", string(item.State)),
		logging.Duration("age", age))
	return false, nil
}
