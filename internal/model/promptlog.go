package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Document is an open-ended JSON object stored verbatim (context, modelParams, ...).
type Document map[string]any

// NilCorrelationID is stored when a client does not send a correlationId.
const NilCorrelationID = "00000000-0000-0000-0000-000000000000"

// PromptLog is one immutable prompt/response telemetry record.
// JSON names follow the client payload so archived batches can be replayed.
// The max tags mirror the prompt_logs column widths.
type PromptLog struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	Type             string          `json:"type" db:"type" validate:"required,max=50"`
	Timestamp        time.Time       `json:"timestamp" db:"timestamp"`
	Category         string          `json:"category" db:"category" validate:"max=100"`
	ClientDateTime   *time.Time      `json:"dateTime,omitempty" db:"date_time"`
	UserID           string          `json:"userId" db:"user_id" validate:"max=100"`
	ProjectID        string          `json:"projectId" db:"project_id" validate:"max=100"`
	SessionID        string          `json:"sessionId" db:"session_id" validate:"max=100"`
	CorrelationID    string          `json:"correlationId" db:"correlation_id" validate:"max=36"`
	Environment      string          `json:"environment" db:"environment" validate:"max=50"`
	ErrorDetails     Document        `json:"errorDetails" db:"error_details"`
	InputSize        int64           `json:"inputSize" db:"input_size" validate:"min=0,max=2147483647"`
	OutputSize       int64           `json:"outputSize" db:"output_size" validate:"min=0,max=2147483647"`
	LatencyBreakdown Document        `json:"latencyBreakdown" db:"latency_breakdown"`
	ModelParams      Document        `json:"modelParams" db:"model_params"`
	User             string          `json:"user" db:"user_name" validate:"max=100"`
	Version          string          `json:"version" db:"version" validate:"max=20"`
	LLM              string          `json:"llm" db:"llm" validate:"max=50"`
	Prompt           string          `json:"prompt" db:"prompt"`
	Response         string          `json:"response" db:"response"`
	Tokens           int64           `json:"tokens" db:"tokens" validate:"min=0,max=2147483647"`
	Cost             decimal.Decimal `json:"cost" db:"cost"`
	Context          Document        `json:"context" db:"context"`
}
