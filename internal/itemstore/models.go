package itemstore

import (
	"encoding/json"
	"strings"
	"time"
)

// State represents the lifecycle of a work item.
type State string

const (
	StateUploading         State = "UPLOADING"
	StatePendingValidation State = "PENDING_VALIDATION"
	StatePendingQueuing    State = "PENDING_QUEUING"
	StateQueuingInProgress State = "QUEUING_IN_PROGRESS"
	StateInQueue           State = "IN_QUEUE"
	StateInProcess         State = "IN_PROCESS"
	StateDone              State = "DONE"
	StateError             State = "ERROR"
	StateAbort             State = "ABORT"
)

var allStates = []State{
	StateUploading,
	StatePendingValidation,
	StatePendingQueuing,
	StateQueuingInProgress,
	StateInQueue,
	StateInProcess,
	StateDone,
	StateError,
	StateAbort,
}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

var terminalStates = map[State]struct{}{
	StateDone:  {},
	StateError: {},
	StateAbort: {},
}

// AllStates returns the ordered list of known states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToUpper(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stateSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a state ends the lifecycle.
func (s State) IsTerminal() bool {
	_, ok := terminalStates[s]
	return ok
}

// Operation is the kind of import a work item performs.
type Operation string

const (
	OperationCreate Operation = "CREATE"
	OperationUpdate Operation = "UPDATE"
)

// ParseOperation converts a string into a known Operation.
func ParseOperation(value string) (Operation, bool) {
	normalized := Operation(strings.ToUpper(strings.TrimSpace(value)))
	switch normalized {
	case OperationCreate, OperationUpdate:
		return normalized, true
	}
	return "", false
}

// ImportJobState is the optional sub-state of a bulk import job.
type ImportJobState string

const (
	ImportJobQueuing    ImportJobState = "QUEUING"
	ImportJobProcessing ImportJobState = "PROCESSING"
	ImportJobDone       ImportJobState = "DONE"
	ImportJobError      ImportJobState = "ERROR"
	ImportJobAborted    ImportJobState = "ABORTED"
)

// Settings are the per-item operation flags.
type Settings struct {
	Prio   bool `json:"prio"`
	Unique bool `json:"unique"`
	Noop   bool `json:"noop"`
	Merge  bool `json:"merge"`
}

// Message is one structured log entry appended to a work item.
type Message struct {
	Time  time.Time `json:"time"`
	Level string    `json:"level,omitempty"`
	Text  string    `json:"text"`
}

// Item is one persisted unit of import work.
//
// CorrelationID is globally unique and immutable after creation.
// ModificationTime is monotonically non-decreasing and bumps on every
// mutation. HandledIDs, RejectedIDs and Messages are append-only.
type Item struct {
	CorrelationID    string
	Cataloger        string
	OCatalogerIn     string
	Operation        Operation
	Settings         Settings
	ContentType      string
	RecordLoadParams json.RawMessage
	State            State
	ImportJobState   ImportJobState
	CreationTime     time.Time
	ModificationTime time.Time
	HandledIDs       []string
	RejectedIDs      []string
	Messages         []Message
	ErrorMessage     string
	ErrorStatus      int
	BlobSize         int64
}

// Projection toggles inclusion of optional field groups in query results.
type Projection struct {
	All               bool
	Operations        bool
	OperationSettings bool
	RecordLoadParams  bool
	ImportJobState    bool
}

// apply trims an item down to the projected field groups.
func (p Projection) apply(item *Item) {
	if p.All {
		return
	}
	if !p.Operations {
		item.Operation = ""
	}
	if !p.OperationSettings {
		item.Settings = Settings{}
	}
	if !p.RecordLoadParams {
		item.RecordLoadParams = nil
	}
	if !p.ImportJobState {
		item.ImportJobState = ""
	}
}

// QueryParams filters a store query. Zero values mean "any".
type QueryParams struct {
	CorrelationID string
	Cataloger     string
	Operation     Operation
	States        []State
	Skip          int
	Limit         int
}
