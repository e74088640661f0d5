package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Bot Framework token endpoint defaults.
const (
	DefaultTokenURL   = "https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token"
	DefaultTokenScope = "https://api.botframework.com/.default"
)

// Sender delivers outgoing activities.
type Sender interface {
	Send(ctx context.Context, activity *Activity) error
}

// ConnectorConfig configures the Bot Connector client.
type ConnectorConfig struct {
	AppID       string
	AppPassword string
	TokenURL    string
	TokenScope  string
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Connector posts replies to the conversation's service URL.
type Connector struct {
	client *http.Client
	logger *slog.Logger
}

// NewConnector builds a connector. Without an app password replies are sent
// unauthenticated, which only the local emulator accepts.
func NewConnector(cfg ConnectorConfig) *Connector {
	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.TokenScope == "" {
		cfg.TokenScope = DefaultTokenScope
	}

	client := base
	if cfg.AppID != "" && cfg.AppPassword != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.AppID,
			ClientSecret: cfg.AppPassword,
			TokenURL:     cfg.TokenURL,
			Scopes:       []string{cfg.TokenScope},
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		client = &http.Client{
			Timeout:   base.Timeout,
			Transport: &oauth2.Transport{Source: cc.TokenSource(ctx), Base: base.Transport},
		}
	}
	return &Connector{client: client, logger: logger}
}

// Send posts activity as a reply in its conversation. The activity must
// carry the service URL and conversation of the activity it answers.
func (c *Connector) Send(ctx context.Context, activity *Activity) error {
	if activity.ServiceURL == "" || activity.Conversation.ID == "" {
		return fmt.Errorf("bot: reply has no service url or conversation")
	}
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if activity.Timestamp == "" {
		activity.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	endpoint := fmt.Sprintf("%s/v3/conversations/%s/activities",
		strings.TrimSuffix(activity.ServiceURL, "/"),
		url.PathEscape(activity.Conversation.ID),
	)
	if activity.ReplyToID != "" {
		endpoint += "/" + url.PathEscape(activity.ReplyToID)
	}

	body, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("bot: encode reply: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("bot: send reply: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("bot: send reply: %d - %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	c.logger.Debug("bot.reply_sent", "conversation", activity.Conversation.ID, "reply_to", activity.ReplyToID, "id", activity.ID)
	return nil
}
