// Package errors provides standardized run-level errors and their mapping
// onto BPMN job failures.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

type ErrorCode string

const (
	ErrCodeTemplateNotFound         ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeTemplateValidationFailed ErrorCode = "TEMPLATE_VALIDATION_FAILED"
	ErrCodeTemplateChannelMismatch  ErrorCode = "TEMPLATE_CHANNEL_MISMATCH"

	ErrCodeTargetsUnavailable ErrorCode = "TARGETS_UNAVAILABLE"
	ErrCodeNoPendingTargets   ErrorCode = "NO_PENDING_TARGETS"

	ErrCodeChannelNotConfigured   ErrorCode = "CHANNEL_NOT_CONFIGURED"
	ErrCodeCampaignInProgress     ErrorCode = "CAMPAIGN_IN_PROGRESS"
	ErrCodeSchedulerMisconfigured ErrorCode = "SCHEDULER_MISCONFIGURED"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeQueryTimeout             ErrorCode = "QUERY_TIMEOUT"

	ErrCodeElasticsearchConnectionFailed ErrorCode = "ELASTICSEARCH_CONNECTION_FAILED"
	ErrCodeAuditWriteFailed              ErrorCode = "AUDIT_WRITE_FAILED"

	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
	ErrCodeBusinessRule     ErrorCode = "BUSINESS_RULE_VIOLATION"
	ErrCodeExternalService  ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout          ErrorCode = "TIMEOUT_ERROR"
	ErrCodeResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeAuthentication   ErrorCode = "AUTHENTICATION_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches another StandardError by code, so errors.Is works against the
// sentinel-style values returned by the constructors.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	return ok && t.Code == e.Code
}

// WithMetadata returns e after merging kv into its metadata.
func (e *StandardError) WithMetadata(kv map[string]interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{}, len(kv))
	}
	for k, v := range kv {
		e.Metadata[k] = v
	}
	return e
}

// CodeOf returns the code of the first StandardError in err's chain, or
// INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// AsStandard returns err's StandardError or wraps it as an internal error.
func AsStandard(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
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

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
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

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func NewTemplateNotFoundError(templateID string) *StandardError {
	return newError(ErrCodeTemplateNotFound, "Template not found",
		fmt.Sprintf("templateId: %s", templateID), false, nil)
}

func NewTemplateValidationFailedError(err error) *StandardError {
	return newError(ErrCodeTemplateValidationFailed, "Template failed validation", err.Error(), false, err)
}

func NewTemplateChannelMismatchError(templateID, templateChannel, runChannel string) *StandardError {
	return newError(ErrCodeTemplateChannelMismatch, "Template belongs to a different channel",
		fmt.Sprintf("templateId: %s, templateChannel: %s, runChannel: %s", templateID, templateChannel, runChannel), false, nil)
}

// NewTargetsUnavailableError is retryable: the target source is usually a
// database that may come back.
func NewTargetsUnavailableError(channel string, err error) *StandardError {
	return newError(ErrCodeTargetsUnavailable, "Pending targets could not be loaded",
		fmt.Sprintf("channel: %s, error: %s", channel, err.Error()), true, err)
}

func NewNoPendingTargetsError(channel string) *StandardError {
	return newError(ErrCodeNoPendingTargets, "No pending targets for channel",
		fmt.Sprintf("channel: %s", channel), false, nil)
}

func NewChannelNotConfiguredError(channel string) *StandardError {
	return newError(ErrCodeChannelNotConfigured, "Channel has no configured adapter",
		fmt.Sprintf("channel: %s", channel), false, nil)
}

func NewCampaignInProgressError(channel string) *StandardError {
	return newError(ErrCodeCampaignInProgress, "A campaign is already running on this channel",
		fmt.Sprintf("channel: %s", channel), true, nil)
}

func NewSchedulerMisconfiguredError(channel string, err error) *StandardError {
	return newError(ErrCodeSchedulerMisconfigured, "Channel scheduler is misconfigured",
		fmt.Sprintf("channel: %s, error: %s", channel, err.Error()), false, err)
}

func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", err.Error(), true, err)
}

func NewQueryExecutionFailedError(queryType string, err error) *StandardError {
	return newError(ErrCodeQueryExecutionFailed, "Database query execution error",
		fmt.Sprintf("queryType: %s, error: %s", queryType, err.Error()), true, err)
}

func NewQueryTimeoutError(queryType string) *StandardError {
	return newError(ErrCodeQueryTimeout, "Database query timeout",
		fmt.Sprintf("queryType: %s", queryType), true, nil)
}

func NewElasticsearchConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeElasticsearchConnectionFailed, "Elasticsearch connection error", err.Error(), true, err)
}

func NewAuditWriteFailedError(sink string, err error) *StandardError {
	return newError(ErrCodeAuditWriteFailed, "Audit entry could not be written",
		fmt.Sprintf("sink: %s, error: %s", sink, err.Error()), true, err)
}

func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "Invalid input", details, false, nil)
}

// Generic constructors

func NewBusinessRuleError(message, details string) *StandardError {
	return newError(ErrCodeBusinessRule, message, details, false, nil)
}

func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalService, fmt.Sprintf("External service '%s' error", service), err.Error(), true, err)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("Service '%s' timeout", service), err.Error(), true, err)
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return newError(ErrCodeResourceNotFound, fmt.Sprintf("Resource not found in %s", service), details, false, nil)
}

func NewAuthenticationError(details string) *StandardError {
	return newError(ErrCodeAuthentication, "Authentication failed", details, false, nil)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal codes to the error codes modelled on the
// BPMN boundary events. Unmapped codes pass through unchanged.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeTemplateNotFound:         "TEMPLATE_NOT_FOUND",
	ErrCodeTemplateValidationFailed: "TEMPLATE_INVALID",
	ErrCodeTemplateChannelMismatch:  "TEMPLATE_INVALID",
	ErrCodeTargetsUnavailable:       "TARGETS_UNAVAILABLE",
	ErrCodeNoPendingTargets:         "NO_PENDING_TARGETS",
	ErrCodeChannelNotConfigured:     "CHANNEL_NOT_CONFIGURED",
	ErrCodeCampaignInProgress:       "CAMPAIGN_IN_PROGRESS",
	ErrCodeSchedulerMisconfigured:   "CHANNEL_NOT_CONFIGURED",
	ErrCodeInvalidInput:             "INVALID_INPUT",
}

// GetRetryCount returns the recommended retry count for a job failing with code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeTargetsUnavailable,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeElasticsearchConnectionFailed,
		ErrCodeExternalService:
		return 3

	case ErrCodeQueryTimeout,
		ErrCodeTimeout,
		ErrCodeCampaignInProgress:
		return 2

	case ErrCodeAuditWriteFailed:
		return 1

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "TEMPLATE"):
		return "TEMPLATE"
	case strings.Contains(codeStr, "TARGETS"):
		return "TARGETS"
	case strings.Contains(codeStr, "CHANNEL") || strings.Contains(codeStr, "SCHEDULER") || strings.Contains(codeStr, "CAMPAIGN"):
		return "CAMPAIGN"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY"):
		return "DATABASE"
	case strings.Contains(codeStr, "ELASTICSEARCH") || strings.Contains(codeStr, "AUDIT"):
		return "AUDIT"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
