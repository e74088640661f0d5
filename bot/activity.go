// Package bot implements the task module bot: Bot Framework activities,
// channel token validation, connector replies and the dialogs.
package bot

import (
	"encoding/json"
	"strings"

	"taskmodule/cards"
)

// Activity types handled by the bot.
const (
	ActivityMessage = "message"
	ActivityInvoke  = "invoke"
)

// Invoke names carried in the value's "type" field.
const (
	InvokeTaskFetch  = "task/fetch"
	InvokeTaskSubmit = "task/submit"
)

// Activity is a Bot Framework activity as posted to /api/messages.
type Activity struct {
	Type           string              `json:"type"`
	ID             string              `json:"id,omitempty"`
	Timestamp      string              `json:"timestamp,omitempty"`
	LocalTimestamp string              `json:"localTimestamp,omitempty"`
	ServiceURL     string              `json:"serviceUrl,omitempty"`
	ChannelID      string              `json:"channelId,omitempty"`
	From           ChannelAccount      `json:"from"`
	Conversation   ConversationAccount `json:"conversation"`
	Recipient      ChannelAccount      `json:"recipient"`
	Text           string              `json:"text,omitempty"`
	TextFormat     string              `json:"textFormat,omitempty"`
	Locale         string              `json:"locale,omitempty"`
	Name           string              `json:"name,omitempty"`
	Value          any                 `json:"value,omitempty"`
	Entities       []Entity            `json:"entities,omitempty"`
	Attachments    []cards.Attachment  `json:"attachments,omitempty"`
	ChannelData    json.RawMessage     `json:"channelData,omitempty"`
	ReplyToID      string              `json:"replyToId,omitempty"`

	// OriginalInvoke is set on messages synthesized from an invoke.
	OriginalInvoke *Activity `json:"-"`
}

// ChannelAccount identifies a user or bot on a channel.
type ChannelAccount struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	AADObjectID string `json:"aadObjectId,omitempty"`
}

// ConversationAccount identifies a conversation.
type ConversationAccount struct {
	ID               string `json:"id"`
	Name             string `json:"name,omitempty"`
	ConversationType string `json:"conversationType,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
	IsGroup          bool   `json:"isGroup,omitempty"`
}

// Entity is a message entity; only mentions are interpreted.
type Entity struct {
	Type      string          `json:"type"`
	Mentioned *ChannelAccount `json:"mentioned,omitempty"`
	Text      string          `json:"text,omitempty"`
}

// InvokeResponse is written back synchronously for invoke activities.
type InvokeResponse struct {
	Status int
	Body   any
}

// TextWithoutMentions returns the activity text with every mention removed.
func (a *Activity) TextWithoutMentions() string {
	text := a.Text
	for _, e := range a.Entities {
		if e.Type == "mention" && e.Text != "" {
			text = strings.Replace(text, e.Text, "", 1)
		}
	}
	return strings.TrimSpace(text)
}

// Reply builds a message addressed back to the sender of a.
func (a *Activity) Reply(text string) *Activity {
	return &Activity{
		Type:         ActivityMessage,
		ServiceURL:   a.ServiceURL,
		ChannelID:    a.ChannelID,
		From:         a.Recipient,
		Recipient:    a.From,
		Conversation: a.Conversation,
		ReplyToID:    a.ID,
		Text:         text,
		TextFormat:   "markdown",
		Locale:       a.Locale,
	}
}

// valueMap returns the activity value as a JSON object, if it is one.
func (a *Activity) valueMap() map[string]any {
	m, _ := a.Value.(map[string]any)
	return m
}

// stateKey scopes stored state to one conversation on one channel.
func (a *Activity) stateKey() string {
	return a.ChannelID + ":" + a.Conversation.ID
}
