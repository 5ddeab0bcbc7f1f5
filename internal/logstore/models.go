package logstore

import (
	"encoding/json"
	"strings"
	"time"
)

// ItemType labels what one log item captures.
type ItemType string

const (
	TypeInputRecord   ItemType = "INPUT_RECORD"
	TypeResultRecord  ItemType = "RESULT_RECORD"
	TypeMergeLog      ItemType = "MERGE_LOG"
	TypeMatchLog      ItemType = "MATCH_LOG"
	TypeMatchValidLog ItemType = "MATCH_VALIDATION_LOG"
)

var itemTypeSet = map[ItemType]struct{}{
	TypeInputRecord:   {},
	TypeResultRecord:  {},
	TypeMergeLog:      {},
	TypeMatchLog:      {},
	TypeMatchValidLog: {},
}

// ParseItemType converts a string into a known ItemType.
func ParseItemType(value string) (ItemType, bool) {
	normalized := ItemType(strings.ToUpper(strings.TrimSpace(value)))
	_, ok := itemTypeSet[normalized]
	return normalized, ok
}

// LogItem is one archived processing artifact tied to a work item. Items of
// the same correlation id and type are ordered by BlobSequence.
type LogItem struct {
	CorrelationID string
	ItemType      ItemType
	BlobSequence  int
	Cataloger     string
	CreationTime  time.Time
	Protected     bool
	Payload       json.RawMessage
}

// QueryParams filters log-item queries. Zero values mean "any"; BlobSequence
// uses a pointer because sequence 0 is not a wildcard for callers that set it.
type QueryParams struct {
	CorrelationID string
	ItemType      ItemType
	BlobSequence  *int
	Skip          int
	Limit         int
}

// CatalogEntry is one row of the aggregate listing: which correlation ids
// have archived items, of which types, and when they started.
type CatalogEntry struct {
	CorrelationID string
	Cataloger     string
	ItemTypes     []ItemType
	Count         int
	FirstSeen     time.Time
}
