package models

// LogType classifies activity log entries.
type LogType string

const (
	LogMessage LogType = "message"
	LogWarning LogType = "warning"
	LogError   LogType = "error"
)

// LogEntry is one line of the station activity log.
type LogEntry struct {
	ID          uint64  `json:"id"`
	Time        string  `json:"time"`
	Type        LogType `json:"type"`
	Message     string  `json:"message"`
	StationID   string  `json:"station_id,omitempty"`
	StationName string  `json:"station_name,omitempty"`
}
