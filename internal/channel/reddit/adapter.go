// Package reddit delivers posts, comments and private messages through the
// Reddit OAuth API.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"outreach-engine/internal/channel"
	commonhttp "outreach-engine/internal/common/http"
	"outreach-engine/internal/common/logger"
	"outreach-engine/internal/models"
)

type Config struct {
	BaseURL      string
	AuthURL      string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// Action is what a handle addresses on Reddit.
type Action string

const (
	ActionSubmit  Action = "submit"
	ActionComment Action = "comment"
	ActionCompose Action = "compose"
)

// ActionFor selects the API call from the handle shape: "r/<sub>" submits a
// self post, a t1_/t3_ fullname gets a reply, anything else is a user.
func ActionFor(handle string) Action {
	switch {
	case strings.HasPrefix(handle, "r/"):
		return ActionSubmit
	case strings.HasPrefix(handle, "t1_"), strings.HasPrefix(handle, "t3_"):
		return ActionComment
	default:
		return ActionCompose
	}
}

type Adapter struct {
	http   *commonhttp.Client
	config Config
	logger logger.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	now         func() time.Time
}

func NewAdapter(client *commonhttp.Client, cfg Config, log logger.Logger) *Adapter {
	return &Adapter{
		http:   client,
		config: cfg,
		logger: log.WithFields(map[string]interface{}{"adapter": "reddit"}),
		now:    time.Now,
	}
}

type apiResponse struct {
	JSON struct {
		Errors [][]interface{} `json:"errors"`
		Data   struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"data"`
	} `json:"json"`
}

func (a *Adapter) Send(ctx context.Context, target models.Target, subject *string, body string) models.SendOutcome {
	if target.Handle == "" {
		return models.Failed(models.ErrorKindRecipientInvalid, "empty handle")
	}

	token, err := a.accessToken(ctx)
	if err != nil {
		return a.fail(target, channel.FailureFromError(err))
	}

	path, form := a.request(target.Handle, subject, body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return models.Failed(models.ErrorKindUnknown, err.Error())
	}
	req.Header.Set("Authorization", "bearer "+token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.http.Do(req)
	if err != nil {
		return a.fail(target, channel.FailureFromError(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return a.fail(target, channel.FailureFromError(err))
	}

	if resp.StatusCode == http.StatusUnauthorized {
		a.invalidateToken()
	}
	if outcome, failed := classifyStatus(resp.StatusCode, raw); failed {
		return a.fail(target, outcome)
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return a.fail(target, models.Failed(models.ErrorKindUnknown, fmt.Sprintf("decode response: %v", err)))
	}
	if len(parsed.JSON.Errors) > 0 {
		return a.fail(target, classifyAPIErrors(parsed.JSON.Errors))
	}

	id := parsed.JSON.Data.Name
	if id == "" {
		id = parsed.JSON.Data.ID
	}
	return models.Sent(id)
}

func (a *Adapter) request(handle string, subject *string, body string) (string, url.Values) {
	form := url.Values{"api_type": {"json"}}

	switch ActionFor(handle) {
	case ActionSubmit:
		form.Set("sr", strings.TrimPrefix(handle, "r/"))
		form.Set("kind", "self")
		form.Set("title", titleFor(subject, body))
		form.Set("text", body)
		return "/api/submit", form
	case ActionComment:
		form.Set("thing_id", handle)
		form.Set("text", body)
		return "/api/comment", form
	default:
		form.Set("to", strings.TrimPrefix(handle, "u/"))
		form.Set("subject", titleFor(subject, body))
		form.Set("text", body)
		return "/api/compose", form
	}
}

const maxTitleRunes = 300

// titleFor falls back to the first body line when the template has no
// subject, since posts and messages require one.
func titleFor(subject *string, body string) string {
	if subject != nil && *subject != "" {
		return *subject
	}
	title, _, _ := strings.Cut(body, "\n")
	if r := []rune(title); len(r) > maxTitleRunes {
		title = string(r[:maxTitleRunes])
	}
	return title
}

func (a *Adapter) fail(target models.Target, outcome models.SendOutcome) models.SendOutcome {
	a.logger.Warn("reddit send failed", map[string]interface{}{
		"targetId":  target.ID,
		"handle":    target.Handle,
		"errorKind": string(outcome.ErrorKind),
		"error":     outcome.ErrorMessage,
	})
	return outcome
}
