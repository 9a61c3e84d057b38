// Package eventlog keeps the bounded, user-visible reactor log.
package eventlog

import (
	"os"
	"time"

	"github.com/google/uuid"
)

// Severity classifies a log entry for display.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"
)

// DefaultCapacity is the number of entries retained.
const DefaultCapacity = 50

// TimestampLayout is the 24-hour local clock format shown next to entries.
const TimestampLayout = "15:04:05"

// TableName is the GreptimeDB table for log entries, overridable via
// GREPTIMEDB_LOG_TABLE.
var TableName = func() string {
	if env := os.Getenv("GREPTIMEDB_LOG_TABLE"); env != "" {
		return env
	}
	return "reactor_logs"
}()

// Entry is one immutable log line.
type Entry struct {
	ClusterID string    `json:"cluster_id,omitempty"`
	ID        string    `json:"id"`
	Timestamp string    `json:"timestamp"`
	Time      time.Time `json:"ts"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
}

// Stream is an append-only FIFO holding at most capacity entries.
// It is not safe for concurrent use; the reactor engine owns it.
type Stream struct {
	clusterID string
	capacity  int
	entries   []Entry
	now       func() time.Time
	newID     func() string
}

// NewStream creates a stream. A nil clock uses time.Now.
func NewStream(clusterID string, capacity int, now func() time.Time) *Stream {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &Stream{
		clusterID: clusterID,
		capacity:  capacity,
		entries:   make([]Entry, 0, capacity),
		now:       now,
		newID:     func() string { return uuid.New().String() },
	}
}

// Append records a message and evicts the oldest entries beyond capacity.
func (s *Stream) Append(message string, severity Severity) Entry {
	ts := s.now()
	e := Entry{
		ClusterID: s.clusterID,
		ID:        s.newID(),
		Timestamp: ts.Local().Format(TimestampLayout),
		Time:      ts.UTC(),
		Message:   message,
		Severity:  severity,
	}
	s.entries = append(s.entries, e)
	if over := len(s.entries) - s.capacity; over > 0 {
		// shift in place so the backing array does not grow unbounded
		n := copy(s.entries, s.entries[over:])
		s.entries = s.entries[:n]
	}
	return e
}

// Entries returns a copy of all entries, oldest first.
func (s *Stream) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of retained entries.
func (s *Stream) Len() int { return len(s.entries) }

// Capacity returns the retention limit.
func (s *Stream) Capacity() int { return s.capacity }
