package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"standard", NewNoPendingTargetsError("email"), ErrCodeNoPendingTargets},
		{"wrapped", fmt.Errorf("run: %w", NewCampaignInProgressError("sms")), ErrCodeCampaignInProgress},
		{"plain", stderrors.New("boom"), ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestStandardError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NewTemplateNotFoundError("t-1"))
	assert.True(t, stderrors.Is(err, NewTemplateNotFoundError("other")))
	assert.False(t, stderrors.Is(err, NewNoPendingTargetsError("email")))
}

func TestStandardError_UnwrapsCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewTargetsUnavailableError("email", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, err.Retryable)
	assert.Contains(t, err.Error(), "TARGETS_UNAVAILABLE")
	assert.Contains(t, err.Details, "connection refused")
}

func TestAsStandard_WrapsPlainErrors(t *testing.T) {
	err := AsStandard(stderrors.New("boom"))
	require.NotNil(t, err)
	assert.Equal(t, ErrCodeInternal, err.Code)
	assert.Equal(t, "boom", err.Details)
	assert.False(t, err.Retryable)
}

func TestConvertToBPMNError(t *testing.T) {
	tests := []struct {
		name        string
		err         *StandardError
		wantCode    string
		wantRetries int
	}{
		{"template mismatch maps to template invalid", NewTemplateChannelMismatchError("t", "email", "sms"), "TEMPLATE_INVALID", 0},
		{"targets unavailable is retried", NewTargetsUnavailableError("email", stderrors.New("x")), "TARGETS_UNAVAILABLE", 3},
		{"unmapped code passes through", NewAuditWriteFailedError("sql", stderrors.New("x")), "AUDIT_WRITE_FAILED", 1},
		{"non-retryable never retried", NewInvalidInputError("limit"), "INVALID_INPUT", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bpmn := ConvertToBPMNError(tt.err)
			assert.Equal(t, tt.wantCode, bpmn.Code)
			assert.Equal(t, tt.wantRetries, bpmn.Retries)
			assert.Equal(t, string(tt.err.Code), bpmn.ErrorVariables["originalErrorCode"])

			vars := bpmn.ToErrorVariables()
			assert.Equal(t, tt.wantCode, vars["errorCode"])
			assert.Equal(t, tt.err.Retryable, vars["retryable"])
		})
	}
}

func TestWithMetadata_FlowsIntoBPMNVariables(t *testing.T) {
	err := NewCampaignInProgressError("email").WithMetadata(map[string]interface{}{"channel": "email"})
	vars := ConvertToBPMNError(err).ToErrorVariables()
	assert.Equal(t, "email", vars["channel"])
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, ShouldRetry(NewTargetsUnavailableError("email", stderrors.New("x")), 3))
	assert.False(t, ShouldRetry(NewTargetsUnavailableError("email", stderrors.New("x")), 0))
	assert.False(t, ShouldRetry(NewNoPendingTargetsError("email"), 3))
}

func TestRetriesFor(t *testing.T) {
	assert.Equal(t, int32(3), RetriesFor(ErrCodeTargetsUnavailable, 10))
	assert.Equal(t, int32(1), RetriesFor(ErrCodeTargetsUnavailable, 2))
	assert.Equal(t, int32(0), RetriesFor(ErrCodeTargetsUnavailable, 1))
	assert.Equal(t, int32(0), RetriesFor(ErrCodeInvalidInput, 5))
}

func TestGetErrorCategory(t *testing.T) {
	tests := map[ErrorCode]string{
		ErrCodeTemplateNotFound:     "TEMPLATE",
		ErrCodeTargetsUnavailable:   "TARGETS",
		ErrCodeChannelNotConfigured: "CAMPAIGN",
		ErrCodeCampaignInProgress:   "CAMPAIGN",
		ErrCodeQueryTimeout:         "DATABASE",
		ErrCodeAuditWriteFailed:     "AUDIT",
		ErrCodeInvalidInput:         "VALIDATION",
		ErrCodeExternalService:      "OTHER",
	}
	for code, want := range tests {
		assert.Equal(t, want, GetErrorCategory(code), string(code))
	}
}

func TestIsRetryableErrorCode(t *testing.T) {
	assert.True(t, IsRetryableErrorCode(ErrCodeCampaignInProgress))
	assert.True(t, IsRetryableErrorCode(ErrCodeQueryTimeout))
	assert.False(t, IsRetryableErrorCode(ErrCodeTemplateNotFound))
	assert.False(t, IsRetryableErrorCode(ErrCodeInternal))
}
