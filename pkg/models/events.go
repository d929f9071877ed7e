package models

// ChangeKind discriminates inventory change events.
type ChangeKind string

const (
	// ChangeUpsert signals a record was created or fully replaced.
	ChangeUpsert ChangeKind = "upsert"
	// ChangeTombstone signals a record was deleted.
	ChangeTombstone ChangeKind = "tombstone"
)

// ChangeEvent is one entry in the inventory change feed. Record is a snapshot
// taken at publication time; for tombstones it is the last live state of the
// record, so filtered watchers can still match deletions.
type ChangeEvent struct {
	Kind    ChangeKind      `json:"kind"`
	ID      string          `json:"id"`
	Version uint64          `json:"version"`
	Record  *HardwareRecord `json:"record,omitempty"`
}
