package teams

import (
	"strings"
	"time"
)

// Activity is the subset of the Bot Framework activity schema this bot
// consumes. The adapter protocol itself is an external collaborator; only the
// fields used by the handlers are modeled.
type Activity struct {
	Type         string               `json:"type"`
	ID           string               `json:"id,omitempty"`
	Timestamp    time.Time            `json:"timestamp,omitempty"`
	ServiceURL   string               `json:"serviceUrl,omitempty"`
	ChannelID    string               `json:"channelId,omitempty"`
	From         ChannelAccount       `json:"from,omitempty"`
	Recipient    ChannelAccount       `json:"recipient,omitempty"`
	Conversation ConversationAccount  `json:"conversation,omitempty"`
	Text         string               `json:"text,omitempty"`
	TextFormat   string               `json:"textFormat,omitempty"`
	ReplyToID    string               `json:"replyToId,omitempty"`
}

// ChannelAccount identifies a user or bot on a channel
type ChannelAccount struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// ConversationAccount identifies the conversation an activity belongs to
type ConversationAccount struct {
	ID               string `json:"id,omitempty"`
	Name             string `json:"name,omitempty"`
	ConversationType string `json:"conversationType,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
}

// ConversationReference is the stored handle used for proactive messaging
type ConversationReference struct {
	ChannelID    string               `json:"channel_id"`
	User         *ChannelAccount      `json:"user,omitempty"`
	Bot          *ChannelAccount      `json:"bot,omitempty"`
	Conversation *ConversationAccount `json:"conversation,omitempty"`
	ActivityID   string               `json:"activity_id,omitempty"`
	ServiceURL   string               `json:"service_url,omitempty"`
}

// IsMessage reports whether the activity is a user message turn
func (a *Activity) IsMessage() bool {
	return strings.EqualFold(a.Type, "message")
}

// IsGroup reports whether the activity belongs to a group chat or channel,
// as opposed to a one-to-one personal chat
func (a *Activity) IsGroup() bool {
	t := strings.ToLower(a.Conversation.ConversationType)
	return t == "groupchat" || t == "channel"
}

// Reference builds the conversation reference for proactive messaging
func (a *Activity) Reference() ConversationReference {
	conv := a.Conversation
	from := a.From
	bot := a.Recipient
	return ConversationReference{
		ChannelID:    a.ChannelID,
		User:         &ChannelAccount{ID: from.ID, Name: from.Name},
		Bot:          &ChannelAccount{ID: bot.ID, Name: bot.Name},
		Conversation: &ConversationAccount{ID: conv.ID, Name: conv.Name, ConversationType: conv.ConversationType, TenantID: conv.TenantID},
		ActivityID:   a.ID,
		ServiceURL:   a.ServiceURL,
	}
}
