// ABOUTME: TurnState enumerates the phases of a single chat turn
package models

// TurnState is the orchestrator's per-turn phase
type TurnState int32

const (
	StateIdle TurnState = iota
	StateRetrieving
	StateStreaming
	StateCommitting
	StateFailed
)

func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRetrieving:
		return "RETRIEVING"
	case StateStreaming:
		return "STREAMING"
	case StateCommitting:
		return "COMMITTING"
	case StateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}
