package linkedin

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"outreach-engine/internal/common/logger"
	"outreach-engine/internal/models"
)

type fakeMessenger struct {
	SendMessageFunc func(ctx context.Context, profileURL, text string) (string, error)
	calls           []string
}

func (f *fakeMessenger) SendMessage(ctx context.Context, profileURL, text string) (string, error) {
	f.calls = append(f.calls, profileURL)
	return f.SendMessageFunc(ctx, profileURL, text)
}

func TestProfileURL(t *testing.T) {
	tests := []struct {
		handle string
		want   string
	}{
		{"jane-doe", "https://www.linkedin.com/in/jane-doe/"},
		{"in/jane-doe/", "https://www.linkedin.com/in/jane-doe/"},
		{" jane-doe ", "https://www.linkedin.com/in/jane-doe/"},
		{"https://www.linkedin.com/in/jane-doe/", "https://www.linkedin.com/in/jane-doe/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ProfileURL(tt.handle), tt.handle)
	}
}

func TestAdapter_Send(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantOK   bool
		wantKind models.ErrorKind
	}{
		{name: "delivered", wantOK: true},
		{name: "missing profile", err: ErrProfileNotFound, wantKind: models.ErrorKindRecipientInvalid},
		{name: "no message button", err: ErrMessagingUnavailable, wantKind: models.ErrorKindRecipientBlocked},
		{name: "checkpoint", err: fmt.Errorf("%w: redirected", ErrCheckpoint), wantKind: models.ErrorKindRateLimited},
		{name: "deadline", err: fmt.Errorf("load profile: %w", context.DeadlineExceeded), wantKind: models.ErrorKindTransport},
		{name: "anything else", err: errors.New("cdp: target closed"), wantKind: models.ErrorKindTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeMessenger{SendMessageFunc: func(_ context.Context, _ string, text string) (string, error) {
				assert.Equal(t, "Hi Jane", text)
				if tt.err != nil {
					return "", tt.err
				}
				return "https://www.linkedin.com/messaging/thread/1/", nil
			}}
			a := NewAdapter(fake, logger.NewTestLogger(t))

			subject := "ignored"
			out := a.Send(context.Background(), models.Target{ID: "t1", Channel: models.ChannelLinkedIn, Handle: "jane-doe"}, &subject, "Hi Jane")

			assert.Equal(t, tt.wantOK, out.Succeeded)
			assert.Equal(t, tt.wantKind, out.ErrorKind)
			if tt.wantOK {
				assert.Equal(t, "https://www.linkedin.com/messaging/thread/1/", out.ExternalID)
			}
			assert.Equal(t, []string{"https://www.linkedin.com/in/jane-doe/"}, fake.calls)
		})
	}
}

func TestAdapter_Send_EmptyHandle(t *testing.T) {
	fake := &fakeMessenger{}
	a := NewAdapter(fake, logger.NewNoOpLogger())

	out := a.Send(context.Background(), models.Target{ID: "t1", Handle: "  "}, nil, "Hi")
	assert.Equal(t, models.ErrorKindRecipientInvalid, out.ErrorKind)
	assert.Empty(t, fake.calls)
}
