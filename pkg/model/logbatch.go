// pkg/model/logbatch.go
package model

import "time"

// LogBatch is one time-ordered log file submitted for reconciliation:
// the records it carries, the timestamp extracted from its source file
// name, and the owner it belongs to. One file is one batch.
type LogBatch struct {
	OwnerID        string
	BatchTimestamp int64
	SourceName     string
	Columns        []string
	Records        []Row
}

// LogRecord is one persisted log record, tagged with the identity of
// the batch it arrived in. CompositeKey is the content hash of every
// record field except the batch timestamp, so the same underlying event
// is recognized across files submitted at different times.
type LogRecord struct {
	OwnerID        string
	BatchTimestamp int64
	SourceName     string
	CompositeKey   string
	Payload        Row
	UploadedAt     time.Time
}
