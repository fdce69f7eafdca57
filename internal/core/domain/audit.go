package domain

import "time"

// AuditEvent is one append-only row of audit_log.
type AuditEvent struct {
	AgentName  AgentName
	EventType  AuditEventType
	Status     AuditStatus
	CustomerID *int64
	Details    string
	CreatedAt  time.Time
}

type AuditEventType string

const (
	EventDBConnect         AuditEventType = "DB_CONNECT"
	EventBatchStart        AuditEventType = "BATCH_START"
	EventBatchEnd          AuditEventType = "BATCH_END"
	EventDBFetch           AuditEventType = "DB_FETCH"
	EventDBSave            AuditEventType = "DB_SAVE"
	EventProcessingStart   AuditEventType = "PROCESSING_START"
	EventProcessingEnd     AuditEventType = "PROCESSING_END"
	EventLLMCallStart      AuditEventType = "LLM_CALL_START"
	EventLLMCallEnd        AuditEventType = "LLM_CALL_END"
	EventAnalysisGenerated AuditEventType = "ANALYSIS_GENERATED"
	EventSegmentation      AuditEventType = "SEGMENTATION"
	EventActionGenerated   AuditEventType = "ACTION_GENERATED"
	EventModelLoadStart    AuditEventType = "MODEL_LOAD_START"
	EventModelLoadEnd      AuditEventType = "MODEL_LOAD_END"
	EventPredictionStart   AuditEventType = "PREDICTION_START"
	EventPredictionEnd     AuditEventType = "PREDICTION_END"
	EventUnexpectedError   AuditEventType = "UNEXPECTED_ERROR"
)

type AuditStatus string

const (
	StatusInfo        AuditStatus = "INFO"
	StatusSuccess     AuditStatus = "SUCCESS"
	StatusWarning     AuditStatus = "WARNING"
	StatusFailure     AuditStatus = "FAILURE"
	StatusError       AuditStatus = "ERROR"
	StatusInterrupted AuditStatus = "INTERRUPTED"
)
