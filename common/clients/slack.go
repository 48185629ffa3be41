package clients

import (
	"context"

	"github.com/slack-go/slack"

	"github.com/aiwf/engine/common/config"
)

// SlackClient is the contract the act.slack handler expects. A nil client
// puts the handler into fallback mode.
type SlackClient interface {
	// PostMessage posts text to a channel and returns the message timestamp.
	PostMessage(ctx context.Context, channel, text string) (string, error)
}

// SlackAPIClient implements SlackClient on the Slack Web API.
type SlackAPIClient struct {
	api *slack.Client
}

// NewSlackClient creates a Slack client, or nil when no bot token is
// configured.
func NewSlackClient(cfg *config.Config) *SlackAPIClient {
	if cfg.Providers.SlackToken == "" {
		return nil
	}
	return &SlackAPIClient{api: slack.New(cfg.Providers.SlackToken)}
}

// PostMessage implements SlackClient.
func (c *SlackAPIClient) PostMessage(ctx context.Context, channel, text string) (string, error) {
	_, ts, err := c.api.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false))
	if err != nil {
		return "", err
	}
	return ts, nil
}
