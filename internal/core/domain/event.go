package domain

import "time"

type LifecycleEventType string

const (
	EventDocumentUploaded LifecycleEventType = "document.uploaded"
	EventDocumentReady    LifecycleEventType = "document.ready"
	EventDocumentFailed   LifecycleEventType = "document.failed"
	EventAnalysisStarted  LifecycleEventType = "analysis.started"
	EventAnalysisReady    LifecycleEventType = "analysis.ready"
)

// LifecycleEvent is published on every lifecycle transition. Driven marks an
// upload whose origin session runs the analysis itself.
type LifecycleEvent struct {
	Type       LifecycleEventType `json:"type"`
	SessionID  string             `json:"session_id"`
	DocumentID string             `json:"document_id"`
	AnalysisID string             `json:"analysis_id,omitempty"`
	Message    string             `json:"message,omitempty"`
	Driven     bool               `json:"driven,omitempty"`
	At         time.Time          `json:"at"`
}

type LoopState string

const (
	LoopIdle      LoopState = "idle"
	LoopPolling   LoopState = "polling"
	LoopSucceeded LoopState = "succeeded"
	LoopFailed    LoopState = "failed"
	LoopCancelled LoopState = "cancelled"
)

func (s LoopState) Finished() bool {
	return s == LoopSucceeded || s == LoopFailed || s == LoopCancelled
}

// SessionSnapshot is the externally visible state of one client session.
type SessionSnapshot struct {
	SessionID      string    `json:"session_id"`
	DocumentID     string    `json:"document_id,omitempty"`
	AnalysisID     string    `json:"analysis_id,omitempty"`
	Progress       Progress  `json:"progress"`
	StatusLoop     LoopState `json:"status_loop"`
	ReadinessLoop  LoopState `json:"readiness_loop"`
	LastError      string    `json:"last_error,omitempty"`
	ActiveInWorker bool      `json:"active"`
}
