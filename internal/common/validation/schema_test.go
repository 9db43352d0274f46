package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCampaignSchema(t *testing.T) {
	schema := MustCompile(RunCampaignSchema)

	tests := []struct {
		name       string
		doc        string
		wantValid  bool
		wantFields []string
	}{
		{
			name:      "minimal",
			doc:       `{"templateId":"welcome","channel":"email"}`,
			wantValid: true,
		},
		{
			name:      "full",
			doc:       `{"templateId":"welcome","channel":"reddit","limit":10,"dryRun":true,"variables":{"company":"Acme"}}`,
			wantValid: true,
		},
		{
			name:       "missing template",
			doc:        `{"channel":"email"}`,
			wantFields: []string{"templateId"},
		},
		{
			name:       "unknown channel",
			doc:        `{"templateId":"welcome","channel":"fax"}`,
			wantFields: []string{"channel"},
		},
		{
			name:       "negative limit",
			doc:        `{"templateId":"welcome","channel":"email","limit":-1}`,
			wantFields: []string{"limit"},
		},
		{
			name:       "non-string variable",
			doc:        `{"templateId":"welcome","channel":"email","variables":{"n":3}}`,
			wantFields: []string{"variables.n"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := schema.ValidateJSON([]byte(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, result.Valid, result.Error())
			for _, f := range tt.wantFields {
				assert.True(t, result.HasErrors(f), "expected error on %s, got %v", f, result.Errors)
			}
		})
	}
}

func TestSchema_ValidateInput(t *testing.T) {
	schema := MustCompile(RunCampaignSchema)

	result, err := schema.ValidateInput(map[string]interface{}{
		"templateId": "",
		"channel":    "sms",
	})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Len(t, result.GetErrorsForField("templateId"), 1)
	assert.Contains(t, result.Error(), "templateId")
}

func TestSchema_MalformedDocument(t *testing.T) {
	schema := MustCompile(RunCampaignSchema)
	_, err := schema.ValidateJSON([]byte(`{not json`))
	assert.Error(t, err)
}

func TestCompile_InvalidSchema(t *testing.T) {
	_, err := Compile(`{"type": 12}`)
	assert.Error(t, err)
}

func TestValidatePhone(t *testing.T) {
	assert.True(t, ValidatePhone("+14155550123"))
	assert.False(t, ValidatePhone("4155550123"))
	assert.False(t, ValidatePhone("+0123456789"))
	assert.False(t, ValidatePhone("+1 415 555"))
}
