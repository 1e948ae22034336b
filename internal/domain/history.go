package domain

import "time"

// Record types stored in the history ledger.
const (
	RecordTypeImage = "image"
	RecordTypeVideo = "video"
)

// HistoryRecord describes one successfully produced artifact. Params is a
// schema-less bag of generation parameters; its entries vary by record type
// and only need to round-trip for display.
type HistoryRecord struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Prompt    string         `json:"prompt"`
	Filename  string         `json:"filename"`
	CreatedAt time.Time      `json:"created_at"`
	Params    map[string]any `json:"params"`
}
