// internal/models/channel.go
package models

import "fmt"

// Channel is a communication medium with its own rate limits and failure modes.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelLinkedIn Channel = "linkedin"
	ChannelReddit   Channel = "reddit"
	ChannelTwitter  Channel = "twitter"
)

var knownChannels = map[Channel]struct{}{
	ChannelEmail:    {},
	ChannelSMS:      {},
	ChannelLinkedIn: {},
	ChannelReddit:   {},
	ChannelTwitter:  {},
}

func (c Channel) Valid() bool {
	_, ok := knownChannels[c]
	return ok
}

func (c Channel) String() string {
	return string(c)
}

// ParseChannel normalizes user input ("Email", " reddit ") into a Channel.
func ParseChannel(s string) (Channel, error) {
	c := Channel(normalize(s))
	if !c.Valid() {
		return "", fmt.Errorf("unknown channel %q", s)
	}
	return c, nil
}

// TemplateKind describes what a template produces on its channel.
type TemplateKind string

const (
	KindDirectMessage TemplateKind = "direct-message"
	KindPost          TemplateKind = "post"
	KindComment       TemplateKind = "comment"
)

func (k TemplateKind) Valid() bool {
	switch k {
	case KindDirectMessage, KindPost, KindComment:
		return true
	}
	return false
}
