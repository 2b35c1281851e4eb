package events

import "time"

// BatchStart is emitted before a plan is executed. BatchID is unique per
// Execute call within the process and is repeated on the batch's other events.
type BatchStart struct {
	BatchID   uint64
	Requested []string
	Order     []string
}

// BatchFinish is emitted after a plan finished or aborted.
type BatchFinish struct {
	BatchID   uint64
	Requested []string
	Records   int
	Dropped   int
	Err       error
	Duration  time.Duration
}

// NodeStart is emitted before one plan node runs across the batch.
type NodeStart struct {
	BatchID uint64
	Field   string
	Kind    string
	Records int
}

// NodeFinish is emitted after one plan node ran across the batch.
type NodeFinish struct {
	BatchID  uint64
	Field    string
	Kind     string
	Records  int
	Keys     int
	Err      error
	Duration time.Duration
}
