package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Client talks to the Bot Framework connector service. Token acquisition is
// out of scope here; the connector endpoint is trusted as configured.
type Client struct {
	botID      string
	botName    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a connector client
func NewClient(botID, botName string, logger *logrus.Logger) *Client {
	return &Client{
		botID:   botID,
		botName: botName,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

// BotID returns the configured bot app id
func (c *Client) BotID() string { return c.botID }

// BotName returns the bot display name used in activities
func (c *Client) BotName() string { return c.botName }

// ReplyToActivity sends text as a reply within the turn that produced the
// given activity
func (c *Client) ReplyToActivity(ctx context.Context, inbound *Activity, text string) error {
	reply := Activity{
		Type:         "message",
		ChannelID:    inbound.ChannelID,
		ServiceURL:   inbound.ServiceURL,
		From:         ChannelAccount{ID: c.botID, Name: c.botName},
		Recipient:    inbound.From,
		Conversation: inbound.Conversation,
		ReplyToID:    inbound.ID,
		Text:         text,
		Timestamp:    time.Now().UTC(),
	}

	endpoint := fmt.Sprintf("%s/v3/conversations/%s/activities/%s",
		strings.TrimSuffix(inbound.ServiceURL, "/"),
		url.PathEscape(inbound.Conversation.ID),
		url.PathEscape(inbound.ID))

	return c.post(ctx, endpoint, &reply)
}

// SendProactive delivers a message into a previously stored conversation
func (c *Client) SendProactive(ctx context.Context, ref *ConversationReference, text string) error {
	if ref == nil || ref.Conversation == nil || ref.ServiceURL == "" {
		return fmt.Errorf("conversation reference is incomplete")
	}

	activity := Activity{
		Type:         "message",
		ChannelID:    ref.ChannelID,
		ServiceURL:   ref.ServiceURL,
		From:         ChannelAccount{ID: c.botID, Name: c.botName},
		Conversation: *ref.Conversation,
		Text:         text,
		Timestamp:    time.Now().UTC(),
	}
	if ref.User != nil {
		activity.Recipient = *ref.User
	}

	endpoint := fmt.Sprintf("%s/v3/conversations/%s/activities",
		strings.TrimSuffix(ref.ServiceURL, "/"),
		url.PathEscape(ref.Conversation.ID))

	return c.post(ctx, endpoint, &activity)
}

func (c *Client) post(ctx context.Context, endpoint string, activity *Activity) error {
	payload, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.WithFields(logrus.Fields{
		"endpoint":        endpoint,
		"conversation_id": activity.Conversation.ID,
	}).Debug("Sending activity to connector")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send activity: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("connector returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return nil
}
