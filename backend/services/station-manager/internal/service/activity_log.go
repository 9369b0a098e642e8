package service

import (
	"time"

	"stationmgr/backend/services/station-manager/internal/models"
)

const defaultMaxLogLength = 100

// LogSink receives every appended activity log entry. Append must not block.
type LogSink interface {
	Append(entry models.LogEntry)
}

// ActivityLog is a capped, in-memory log of station events. Entry ids start at 1 and
// are never reused, even after old entries are dropped. Not safe for concurrent use;
// the Manager serializes access.
type ActivityLog struct {
	entries []models.LogEntry
	lastID  uint64
	max     int
	sink    LogSink
	now     func() time.Time
}

// NewActivityLog returns a log keeping at most max entries. sink may be nil.
func NewActivityLog(max int, sink LogSink) *ActivityLog {
	if max <= 0 {
		max = defaultMaxLogLength
	}
	return &ActivityLog{max: max, sink: sink, now: time.Now}
}

// Append records an event, optionally scoped to a station, and drops the oldest entries
// beyond the cap.
func (l *ActivityLog) Append(typ models.LogType, station *Station, message string) models.LogEntry {
	l.lastID++
	entry := models.LogEntry{
		ID:      l.lastID,
		Time:    l.now().UTC().Format(time.RFC3339Nano),
		Type:    typ,
		Message: message,
	}
	if station != nil {
		entry.StationID = station.ID()
		entry.StationName = station.Name()
	}

	l.entries = append(l.entries, entry)
	if over := len(l.entries) - l.max; over > 0 {
		l.entries = append(l.entries[:0:0], l.entries[over:]...)
	}

	if l.sink != nil {
		l.sink.Append(entry)
	}
	return entry
}

// Entries returns a copy of the retained entries, oldest first.
func (l *ActivityLog) Entries() []models.LogEntry {
	out := make([]models.LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
