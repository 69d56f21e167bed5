// Package errors provides standardized error handling for the allocation
// and QC workflow integration.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Configuration
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"

	// Allocation
	ErrCodeCapacityExhausted  ErrorCode = "CAPACITY_EXHAUSTED"
	ErrCodeStaleDecision      ErrorCode = "STALE_DECISION"
	ErrCodeWaveAlreadyDecided ErrorCode = "WAVE_ALREADY_DECIDED"
	ErrCodeCaseNotFound       ErrorCode = "CASE_NOT_FOUND"
	ErrCodeCandidateNotFound  ErrorCode = "CANDIDATE_NOT_FOUND"
	ErrCodeInvalidTransition  ErrorCode = "INVALID_STATUS_TRANSITION"
	ErrCodePreviewStale       ErrorCode = "PREVIEW_STALE"

	// QC
	ErrCodeConcurrentReviewClaim ErrorCode = "CONCURRENT_REVIEW_CLAIM"
	ErrCodeReviewValidation      ErrorCode = "REVIEW_VALIDATION_FAILED"
	ErrCodeSubmissionNotFound    ErrorCode = "SUBMISSION_NOT_FOUND"

	// Persistence
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeLogWriteFailed           ErrorCode = "LOG_WRITE_FAILED"

	// Notifications
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Describe renders an error for operator-facing text, keeping the details a
// StandardError carries (the bare Error() string drops them).
func Describe(err error) string {
	var stdErr *StandardError
	if errors.As(err, &stdErr) && stdErr.Details != "" {
		return stdErr.Message + ": " + stdErr.Details
	}
	return err.Error()
}

// HasCode reports whether err is a StandardError carrying the given code.
func HasCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code == code
	}
	return false
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewConfigInvalidError creates a non-retryable configuration error.
// The update is rejected; in-flight allocations keep the previous settings.
func NewConfigInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConfigInvalid,
		Message:   "Allocation configuration rejected",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCapacityExhaustedError signals that a candidate has no capacity left.
// The scheduler skips the candidate and tries the next ranked one.
func NewCapacityExhaustedError(candidateID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCapacityExhausted,
		Message:   "Candidate has no available capacity today",
		Details:   fmt.Sprintf("candidateId: %s", candidateID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStaleDecisionError marks a decision that arrived after the wave latch
// was already set. It is logged and discarded, never applied.
func NewStaleDecisionError(caseID string, wave int) *StandardError {
	return &StandardError{
		Code:      ErrCodeStaleDecision,
		Message:   "Decision arrived after the wave was already settled",
		Details:   fmt.Sprintf("caseId: %s, wave: %d", caseID, wave),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewConcurrentReviewClaimError surfaces a reviewer conflict to the UI.
func NewConcurrentReviewClaimError(submissionID, holderID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConcurrentReviewClaim,
		Message:   "Submission is already claimed by another reviewer",
		Details:   fmt.Sprintf("submissionId: %s, claimedBy: %s", submissionID, holderID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewReviewValidationError creates a non-retryable QC validation error.
func NewReviewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeReviewValidation,
		Message:   "QC review payload validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCaseNotFoundError creates a non-retryable lookup error.
func NewCaseNotFoundError(caseID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCaseNotFound,
		Message:   "Case not found",
		Details:   fmt.Sprintf("caseId: %s", caseID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCandidateNotFoundError creates a non-retryable lookup error.
func NewCandidateNotFoundError(candidateID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCandidateNotFound,
		Message:   "Candidate not found",
		Details:   fmt.Sprintf("candidateId: %s", candidateID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSubmissionNotFoundError creates a non-retryable lookup error.
func NewSubmissionNotFoundError(submissionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSubmissionNotFound,
		Message:   "QC submission not found",
		Details:   fmt.Sprintf("submissionId: %s", submissionID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidTransitionError creates a non-retryable state machine error.
func NewInvalidTransitionError(caseID, from, to string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidTransition,
		Message:   "Case status transition not allowed",
		Details:   fmt.Sprintf("caseId: %s, from: %s, to: %s", caseID, from, to),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPreviewStaleError signals that state changed between preview and commit.
func NewPreviewStaleError(caseID, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodePreviewStale,
		Message:   "Previewed allocation no longer matches current state",
		Details:   fmt.Sprintf("caseId: %s, %s", caseID, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewLogWriteFailedError creates a retryable allocation log write error.
// The caller must reconcile any capacity mutation that preceded it.
func NewLogWriteFailedError(caseID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLogWriteFailed,
		Message:   "Allocation log write failed",
		Details:   fmt.Sprintf("caseId: %s, error: %s", caseID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(notificationType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("type: %s, error: %s", notificationType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// Generic constructors

func NewBusinessRuleError(message, details string) *StandardError {
	return &StandardError{
		Code:      "BUSINESS_RULE_VIOLATION",
		Message:   message,
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// GetRetryCount returns the recommended retry count per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeLogWriteFailed,
		ErrCodeNotificationSendFailed:
		return 3 // Retryable technical errors

	default:
		return 0 // Business errors: no retry
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for the engine.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "CONFIG"):
		return "CONFIGURATION"
	case strings.Contains(codeStr, "CAPACITY") || strings.Contains(codeStr, "WAVE") || strings.Contains(codeStr, "DECISION") || strings.Contains(codeStr, "PREVIEW"):
		return "ALLOCATION"
	case strings.Contains(codeStr, "REVIEW") || strings.Contains(codeStr, "SUBMISSION"):
		return "QC"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY") || strings.Contains(codeStr, "LOG_WRITE"):
		return "DATABASE"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	default:
		return "OTHER"
	}
}
