package itemstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"testing/iotest"
	"time"

	"recload/internal/config"
	"recload/internal/faults"
	"recload/internal/logging"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Broker.URL = "amqp://127.0.0.1:5672"
	cfg.Store.DataDir = filepath.Join(base, "data")
	cfg.Store.BlobDir = filepath.Join(base, "blobs")
	cfg.Logging.Dir = filepath.Join(base, "logs")
	cfg.Pump.LockPath = filepath.Join(base, "pump.lock")

	store, err := Open(&cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mustCreate(t *testing.T, store *Store, correlationID string) *Item {
	t.Helper()
	item, err := store.CreatePrio(context.Background(), CreateParams{
		CorrelationID: correlationID,
		Cataloger:     "LOAD-TEST",
		Operation:     OperationCreate,
		Settings:      Settings{Unique: true},
	})
	if err != nil {
		t.Fatalf("create %s: %v", correlationID, err)
	}
	return item
}

// backdate rewrites an item's modification time directly, bypassing the
// monotonic bump every mutation performs.
func backdate(t *testing.T, store *Store, correlationID string, age time.Duration) {
	t.Helper()
	when := time.Now().UTC().Add(-age).Format(time.RFC3339Nano)
	if _, err := store.db.Exec(
		`UPDATE work_items SET updated_at = ? WHERE correlation_id = ?`, when, correlationID); err != nil {
		t.Fatalf("backdate: %v", err)
	}
}

func TestCreatePrioAndGet(t *testing.T) {
	store := newTestStore(t)
	created := mustCreate(t, store, "prio-1")

	// Prio items carry their payload in the message: no upload phase.
	if created.State != StatePendingValidation {
		t.Fatalf("state = %s, want PENDING_VALIDATION", created.State)
	}
	if created.CreationTime.IsZero() || created.ModificationTime.IsZero() {
		t.Fatal("timestamps not set")
	}

	got, err := store.QueryByID(context.Background(), "prio-1", false)
	if err != nil {
		t.Fatalf("QueryByID: %v", err)
	}
	if got.Cataloger != "LOAD-TEST" || !got.Settings.Unique || got.Settings.Merge {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	store := newTestStore(t)

	_, err := store.CreatePrio(context.Background(), CreateParams{CorrelationID: "../escape", Operation: OperationCreate})
	if !errors.Is(err, faults.ErrInvalidArgument) {
		t.Fatalf("path-traversal id: got %v", err)
	}
	_, err = store.CreatePrio(context.Background(), CreateParams{CorrelationID: "ok-1", Operation: "DESTROY"})
	if !errors.Is(err, faults.ErrInvalidArgument) {
		t.Fatalf("unknown operation: got %v", err)
	}

	mustCreate(t, store, "dup-1")
	_, err = store.CreatePrio(context.Background(), CreateParams{CorrelationID: "dup-1", Operation: OperationCreate})
	if !errors.Is(err, faults.ErrInvalidArgument) {
		t.Fatalf("duplicate id: got %v", err)
	}
}

func TestCreateBulkStreamsContent(t *testing.T) {
	store := newTestStore(t)
	payload := []byte("record content stream")

	item, err := store.CreateBulk(context.Background(), CreateParams{
		CorrelationID: "bulk-1",
		Operation:     OperationUpdate,
		ContentType:   "application/json",
	}, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("CreateBulk: %v", err)
	}
	if item.BlobSize != int64(len(payload)) {
		t.Fatalf("blob size = %d, want %d", item.BlobSize, len(payload))
	}

	reader, got, err := store.ReadContent(context.Background(), "bulk-1")
	if err != nil {
		t.Fatalf("ReadContent: %v", err)
	}
	defer reader.Close()
	content, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if !bytes.Equal(content, payload) {
		t.Fatalf("content = %q, want %q", content, payload)
	}
	if got.ContentType != "application/json" {
		t.Fatalf("content type = %q", got.ContentType)
	}
}

func TestCreateBulkKeepsRowOnStreamError(t *testing.T) {
	store := newTestStore(t)

	_, err := store.CreateBulk(context.Background(), itemParamsForBulk("bulk-broken"),
		iotest.ErrReader(errors.New("stream reset")))
	if err == nil {
		t.Fatal("stream failure must surface")
	}

	// The row survives the failed upload so callers can see what happened.
	item, getErr := store.QueryByID(context.Background(), "bulk-broken", false)
	if getErr != nil {
		t.Fatalf("item row gone after stream failure: %v", getErr)
	}
	if item.State != StateUploading || item.BlobSize != 0 {
		t.Fatalf("item after failed upload = %+v", item)
	}
	if _, _, readErr := store.ReadContent(context.Background(), "bulk-broken"); !errors.Is(readErr, faults.ErrNotFound) {
		t.Fatalf("expected no content, got %v", readErr)
	}
}

func itemParamsForBulk(correlationID string) CreateParams {
	return CreateParams{
		CorrelationID: correlationID,
		Operation:     OperationUpdate,
		ContentType:   "application/json",
	}
}

func TestGetStreamWithoutItemRow(t *testing.T) {
	store := newTestStore(t)

	// Content can outlive its row; getStream reads it without the row check.
	if _, err := store.blobs.Write("orphan-1", bytes.NewReader([]byte("leftover"))); err != nil {
		t.Fatalf("write blob: %v", err)
	}

	reader, err := store.GetStream("orphan-1")
	if err != nil {
		t.Fatalf("GetStream: %v", err)
	}
	defer reader.Close()
	content, err := io.ReadAll(reader)
	if err != nil || string(content) != "leftover" {
		t.Fatalf("content = %q err = %v", content, err)
	}

	if _, _, err := store.ReadContent(context.Background(), "orphan-1"); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("ReadContent without row: got %v", err)
	}
	if _, err := store.GetStream("no-such-blob"); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("GetStream missing blob: got %v", err)
	}
}

func TestReadContentMissing(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, "no-blob")

	if _, _, err := store.ReadContent(context.Background(), "no-blob"); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("item without blob: got %v", err)
	}
	if _, _, err := store.ReadContent(context.Background(), "no-row"); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("missing item: got %v", err)
	}
}

func TestQueryFiltersAndProjection(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, "q-1")
	mustCreate(t, store, "q-2")
	if _, err := store.SetState(context.Background(), "q-2", StateChange{State: StateDone}); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	items, err := store.Query(context.Background(), QueryParams{States: []State{StateDone}}, Projection{All: true})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(items) != 1 || items[0].CorrelationID != "q-2" {
		t.Fatalf("state filter returned %+v", items)
	}

	items, err = store.Query(context.Background(), QueryParams{CorrelationID: "q-1"}, Projection{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("id filter returned %d items", len(items))
	}
	if items[0].Operation != "" || items[0].Settings.Unique {
		t.Fatalf("empty projection kept optional groups: %+v", items[0])
	}

	if _, err := store.Query(context.Background(), QueryParams{States: []State{"BOGUS"}}, Projection{}); !errors.Is(err, faults.ErrInvalidArgument) {
		t.Fatalf("unknown state filter: got %v", err)
	}
}

func TestGetOneEmptyIsNotAnError(t *testing.T) {
	store := newTestStore(t)

	item, err := store.GetOne(context.Background(), OperationCreate, []State{StatePendingQueuing})
	if err != nil {
		t.Fatalf("GetOne: %v", err)
	}
	if item != nil {
		t.Fatalf("expected nil item, got %+v", item)
	}

	mustCreate(t, store, "one-1")
	item, err = store.GetOne(context.Background(), OperationCreate, []State{StatePendingValidation})
	if err != nil {
		t.Fatalf("GetOne: %v", err)
	}
	if item == nil || item.CorrelationID != "one-1" {
		t.Fatalf("GetOne returned %+v", item)
	}
}

func TestRemoveWithAndWithoutBlob(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.CreateBulk(context.Background(), CreateParams{
		CorrelationID: "rm-blob",
		Operation:     OperationCreate,
	}, bytes.NewReader([]byte("x"))); err != nil {
		t.Fatalf("CreateBulk: %v", err)
	}
	if err := store.Remove(context.Background(), "rm-blob"); err != nil {
		t.Fatalf("Remove with blob: %v", err)
	}

	mustCreate(t, store, "rm-bare")
	if err := store.Remove(context.Background(), "rm-bare"); err != nil {
		t.Fatalf("Remove without blob: %v", err)
	}

	if err := store.Remove(context.Background(), "rm-bare"); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("second remove: got %v", err)
	}
}

func TestPushIDsAppends(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, "push-1")

	item, err := store.PushIDs(context.Background(), "push-1", []string{"000001", "000002"}, nil)
	if err != nil {
		t.Fatalf("PushIDs: %v", err)
	}
	item, err = store.PushIDs(context.Background(), "push-1", []string{"000003"}, []string{"000099"})
	if err != nil {
		t.Fatalf("PushIDs: %v", err)
	}
	if len(item.HandledIDs) != 3 || item.HandledIDs[2] != "000003" {
		t.Fatalf("handled ids = %v", item.HandledIDs)
	}
	if len(item.RejectedIDs) != 1 || item.RejectedIDs[0] != "000099" {
		t.Fatalf("rejected ids = %v", item.RejectedIDs)
	}

	if _, err := store.PushIDs(context.Background(), "absent", []string{"x"}, nil); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("missing item: got %v", err)
	}
}

func TestPushMessagesKeepsOrder(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, "msg-1")

	base := time.Now().UTC()
	item, err := store.PushMessages(context.Background(), "msg-1", "", []Message{
		{Time: base, Level: "info", Text: "queued"},
		{Time: base.Add(time.Second), Text: "processing"},
	})
	if err != nil {
		t.Fatalf("PushMessages: %v", err)
	}
	if len(item.Messages) != 2 || item.Messages[0].Text != "queued" || item.Messages[1].Text != "processing" {
		t.Fatalf("messages = %+v", item.Messages)
	}
	if item.Messages[1].Level != "" {
		t.Fatalf("level should round trip empty, got %q", item.Messages[1].Level)
	}
}

func TestSetStateRecordsError(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, "err-1")

	item, err := store.SetState(context.Background(), "err-1", StateChange{
		State:        StateError,
		ErrorMessage: "conversion failed",
		ErrorStatus:  422,
	})
	if err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if item.State != StateError || item.ErrorMessage != "conversion failed" || item.ErrorStatus != 422 {
		t.Fatalf("error outcome not recorded: %+v", item)
	}
}

func TestSetStateClearsErrorOutcome(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, "retry-1")
	if _, err := store.SetState(context.Background(), "retry-1", StateChange{
		State:        StateError,
		ErrorMessage: "upstream unavailable",
		ErrorStatus:  502,
	}); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	// A retried item that completes must not keep the old failure.
	item, err := store.SetState(context.Background(), "retry-1", StateChange{State: StateDone})
	if err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if item.State != StateDone || item.ErrorMessage != "" || item.ErrorStatus != 0 {
		t.Fatalf("stale error outcome kept: %+v", item)
	}
}

func TestCheckAndSetState(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, "cas-1")

	ok, err := store.CheckAndSetState(context.Background(), "cas-1", StateChange{State: StatePendingQueuing})
	if err != nil || !ok {
		t.Fatalf("fresh transition: ok=%v err=%v", ok, err)
	}
	item, _ := store.QueryByID(context.Background(), "cas-1", false)
	if item.State != StatePendingQueuing {
		t.Fatalf("state = %s, want PENDING_QUEUING", item.State)
	}

	if _, err := store.CheckAndSetState(context.Background(), "absent", StateChange{State: StatePendingQueuing}); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("missing item: got %v", err)
	}
}

func TestCheckAndSetStateAbortsStaleItem(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, "cas-stale")
	if _, err := store.SetState(context.Background(), "cas-stale", StateChange{State: StateInQueue}); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	backdate(t, store, "cas-stale", 2*time.Minute)

	ok, err := store.CheckAndSetState(context.Background(), "cas-stale", StateChange{State: StateInProcess})
	if err != nil {
		t.Fatalf("CheckAndSetState: %v", err)
	}
	if ok {
		t.Fatal("stale item must not be transitioned")
	}

	item, _ := store.QueryByID(context.Background(), "cas-stale", false)
	if item.State != StateAbort || item.ErrorStatus != 408 {
		t.Fatalf("staleness guard did not abort: %+v", item)
	}
}

func TestCheckAndSetStateRefusesFailedItem(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, "cas-err")
	if _, err := store.SetState(context.Background(), "cas-err", StateChange{State: StateError, ErrorStatus: 502}); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	ok, err := store.CheckAndSetState(context.Background(), "cas-err", StateChange{State: StateInProcess})
	if err != nil {
		t.Fatalf("CheckAndSetState: %v", err)
	}
	if ok {
		t.Fatal("failed item must not be transitioned")
	}
	item, _ := store.QueryByID(context.Background(), "cas-err", false)
	if item.State != StateError {
		t.Fatalf("state = %s, want ERROR untouched", item.State)
	}
}

func TestCheckTimeoutAbortsStaleItem(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, "stale-1")
	if _, err := store.SetState(context.Background(), "stale-1", StateChange{State: StateInProcess}); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	backdate(t, store, "stale-1", 61*time.Second)

	ok, err := store.CheckTimeout(context.Background(), "stale-1")
	if err != nil {
		t.Fatalf("CheckTimeout: %v", err)
	}
	if ok {
		t.Fatal("stale item must report false")
	}

	item, err := store.QueryByID(context.Background(), "stale-1", false)
	if err != nil {
		t.Fatalf("QueryByID: %v", err)
	}
	if item.State != StateAbort {
		t.Fatalf("state = %s, want ABORT", item.State)
	}
	if item.ErrorStatus != 408 {
		t.Fatalf("error status = %d, want 408", item.ErrorStatus)
	}
	found := false
	for _, msg := range item.Messages {
		if msg.Text != "" && msg.Level == "warn" {
			found = true
		}
	}
	if !found {
		t.Fatalf("abort message missing: %+v", item.Messages)
	}
}

func TestCheckTimeoutFreshItemPasses(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, "fresh-1")
	if _, err := store.SetState(context.Background(), "fresh-1", StateChange{State: StateInProcess}); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	backdate(t, store, "fresh-1", 10*time.Second)

	ok, err := store.CheckTimeout(context.Background(), "fresh-1")
	if err != nil {
		t.Fatalf("CheckTimeout: %v", err)
	}
	if !ok {
		t.Fatal("fresh item must report true")
	}

	item, _ := store.QueryByID(context.Background(), "fresh-1", false)
	if item.State != StateInProcess {
		t.Fatalf("fresh item moved to %s", item.State)
	}
}

func TestCheckTimeoutLeavesTerminalAlone(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, "term-1")
	if _, err := store.SetState(context.Background(), "term-1", StateChange{State: StateError, ErrorStatus: 500}); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	backdate(t, store, "term-1", time.Hour)

	ok, err := store.CheckTimeout(context.Background(), "term-1")
	if err != nil {
		t.Fatalf("CheckTimeout: %v", err)
	}
	if ok {
		t.Fatal("ERROR item must report false")
	}
	item, _ := store.QueryByID(context.Background(), "term-1", false)
	if item.State != StateError || item.ErrorStatus != 500 {
		t.Fatalf("terminal item mutated: %+v", item)
	}
}

func TestQueryByIDAppliesStalenessGuard(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, "guard-1")
	if _, err := store.SetState(context.Background(), "guard-1", StateChange{State: StateInQueue}); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	backdate(t, store, "guard-1", 2*time.Minute)

	item, err := store.QueryByID(context.Background(), "guard-1", true)
	if err != nil {
		t.Fatalf("QueryByID: %v", err)
	}
	if item.State != StateAbort || item.ErrorStatus != 408 {
		t.Fatalf("guard did not abort: %+v", item)
	}
}

func TestGetStats(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, "stat-1")
	mustCreate(t, store, "stat-2")
	if _, err := store.SetState(context.Background(), "stat-2", StateChange{State: StateDone}); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	stats, err := store.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Total != 2 || stats.ByState[StatePendingValidation] != 1 || stats.ByState[StateDone] != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}
