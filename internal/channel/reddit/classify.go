package reddit

import (
	"fmt"
	"net/http"
	"strings"

	"outreach-engine/internal/models"
)

var errorKinds = map[string]models.ErrorKind{
	"RATELIMIT":                       models.ErrorKindRateLimited,
	"USER_DOESNT_EXIST":               models.ErrorKindRecipientInvalid,
	"SUBREDDIT_NOEXIST":               models.ErrorKindRecipientInvalid,
	"NO_THING_ID":                     models.ErrorKindRecipientInvalid,
	"DELETED_COMMENT":                 models.ErrorKindRecipientInvalid,
	"USER_BLOCKED":                    models.ErrorKindRecipientBlocked,
	"NOT_WHITELISTED_BY_USER_MESSAGE": models.ErrorKindRecipientBlocked,
	"SUBREDDIT_NOTALLOWED":            models.ErrorKindRecipientBlocked,
	"THREAD_LOCKED":                   models.ErrorKindRecipientBlocked,
	"TOO_OLD":                         models.ErrorKindRecipientBlocked,
	"USER_BLOCKED_MESSAGE":            models.ErrorKindRecipientBlocked,
}

// classifyStatus handles failures visible from the status line alone.
func classifyStatus(status int, body []byte) (models.SendOutcome, bool) {
	msg := fmt.Sprintf("reddit: HTTP %d: %s", status, strings.TrimSpace(string(body)))
	switch {
	case status == http.StatusTooManyRequests:
		return models.Failed(models.ErrorKindRateLimited, msg), true
	case status == http.StatusForbidden:
		return models.Failed(models.ErrorKindRecipientBlocked, msg), true
	case status == http.StatusNotFound:
		return models.Failed(models.ErrorKindRecipientInvalid, msg), true
	case status >= 500:
		return models.Failed(models.ErrorKindTransport, msg), true
	case status >= 400:
		return models.Failed(models.ErrorKindUnknown, msg), true
	}
	return models.SendOutcome{}, false
}

// classifyAPIErrors maps the first recognised entry of the api_type=json
// error list, which reddit reports as [code, message, field] triples.
func classifyAPIErrors(errs [][]interface{}) models.SendOutcome {
	var messages []string
	kind := models.ErrorKindUnknown
	for _, e := range errs {
		if len(e) == 0 {
			continue
		}
		code, _ := e[0].(string)
		text := code
		if len(e) > 1 {
			if m, ok := e[1].(string); ok {
				text = code + ": " + m
			}
		}
		messages = append(messages, text)
		if k, ok := errorKinds[code]; ok && kind == models.ErrorKindUnknown {
			kind = k
		}
	}
	return models.Failed(kind, strings.Join(messages, "; "))
}
