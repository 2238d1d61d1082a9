package models

import "time"

// EventType identifies a structured observability event.
type EventType string

const (
	EventSignalEmitted  EventType = "signal_emitted"
	EventSignalRejected EventType = "signal_rejected"
	EventConsensus      EventType = "consensus_computed"
	EventPositionOpened EventType = "position_opened"
	EventExitRequested  EventType = "exit_requested"
	EventPositionClosed EventType = "position_closed"
	EventPositionFailed EventType = "position_failed"
	EventEntryRejected  EventType = "entry_rejected"
	EventDailyReset     EventType = "daily_reset"
	EventLoopHalted     EventType = "loop_halted"
)

// Event is the transport-neutral observability record the core emits on
// every state transition and consensus computation.
type Event struct {
	Type      EventType              `json:"type"`
	Symbol    string                 `json:"symbol,omitempty"`
	Component string                 `json:"component"`
	Reason    string                 `json:"reason,omitempty"`
	Before    string                 `json:"before,omitempty"`
	After     string                 `json:"after,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
