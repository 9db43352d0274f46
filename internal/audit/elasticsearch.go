package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"

	apperrors "outreach-engine/internal/common/errors"
	"outreach-engine/internal/models"
)

// ElasticsearchSink indexes each entry as a document keyed by its ID.
type ElasticsearchSink struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchSink(client *elasticsearch.Client, index string) *ElasticsearchSink {
	return &ElasticsearchSink{client: client, index: index}
}

type auditDocument struct {
	ID           string                 `json:"id"`
	RunID        string                 `json:"run_id"`
	Channel      string                 `json:"channel"`
	Action       string                 `json:"action"`
	Succeeded    bool                   `json:"succeeded"`
	TargetRef    *string                `json:"target_ref,omitempty"`
	Metadata     map[string]interface{} `json:"metadata"`
	ErrorMessage *string                `json:"error_message,omitempty"`
	Timestamp    string                 `json:"@timestamp"`
}

func (s *ElasticsearchSink) LogAction(ctx context.Context, entry models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(auditDocument{
		ID:           entry.ID,
		RunID:        entry.RunID,
		Channel:      string(entry.Channel),
		Action:       string(entry.Action),
		Succeeded:    entry.Succeeded,
		TargetRef:    entry.TargetRef,
		Metadata:     entry.Metadata.Map(),
		ErrorMessage: entry.ErrorMessage,
		Timestamp:    entry.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("encode audit document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: entry.ID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return apperrors.NewElasticsearchConnectionFailedError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return apperrors.NewAuditWriteFailedError("elasticsearch", fmt.Errorf("index %s: %s", s.index, res.String()))
	}
	return nil
}
