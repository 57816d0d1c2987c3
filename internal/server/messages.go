package server

import (
	"github.com/GriffinCanCode/resource-overlay/internal/ocr"
	"github.com/GriffinCanCode/resource-overlay/internal/orchestrator"
)

// Inbound message types.
const (
	MsgCapture = "capture"
	MsgResolve = "resolve"
)

// Message is the envelope every inbound message shares.
type Message struct {
	Type    string `json:"type"`
	TraceID string `json:"trace_id,omitempty"`
}

// ReadingsMessage carries one snapshot.
type ReadingsMessage struct {
	Type string `json:"type"`
	orchestrator.Snapshot
}

// EngineMessage answers a resolve request.
type EngineMessage struct {
	Type       string          `json:"type"`
	Executable *ocr.Executable `json:"executable,omitempty"`
	Error      string          `json:"error,omitempty"`
	orchestrator.EngineStatus
}

// ErrorMessage reports a rejected inbound message.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func readingsMessage(s orchestrator.Snapshot) ReadingsMessage {
	return ReadingsMessage{Type: "readings", Snapshot: s}
}
