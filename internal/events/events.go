// Package events publishes a record of every completed analysis to Kafka
// and aggregates the stream into service-wide statistics.
package events

import "time"

type EventType string

const (
	EventAnalysisCompleted EventType = "analysis_completed"
	EventAnalysisFailed    EventType = "analysis_failed"
)

// AnalysisEvent describes one analysis run.
type AnalysisEvent struct {
	Type       EventType `json:"type"`
	AnalysisID string    `json:"analysis_id,omitempty"`
	Platform   string    `json:"platform"`
	Query      string    `json:"query"`
	Yield      int       `json:"yield"`
	Range      string    `json:"range,omitempty"`
	Nodes      int       `json:"nodes"`
	LatencyMs  int64     `json:"latency_ms"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}
